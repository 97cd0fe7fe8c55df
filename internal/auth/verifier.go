package auth

import (
	"context"
	"regexp"
	"strings"

	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// Verifier is a tagged-variant provider: it tests whether it accepts a
// bearer token by prefix, then verifies it into a User. The router tries
// verifiers in priority order: first-party static -> GitHub -> Google
// (§9 Design Notes: "Dynamic token prefix dispatch").
type Verifier interface {
	Name() Provider
	Accepts(token string) bool
	Verify(ctx context.Context, token string) (User, error)
}

var userSubPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// StaticTokenVerifier verifies first-party tokens of the shape
// "getgather_{app_key}_{user_sub}", where app_key must be a configured
// allow-listed key mapping to an app name (§4.5 token taxonomy).
// Grounded on src/auth/getgather_oauth_token.py.
type StaticTokenVerifier struct {
	// Apps maps app_key -> app_name, the GETGATHER_APPS setting.
	Apps map[string]string
}

func (v *StaticTokenVerifier) Name() Provider { return ProviderGetgather }

func (v *StaticTokenVerifier) Accepts(token string) bool {
	return strings.HasPrefix(token, "getgather_")
}

func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (User, error) {
	rest := strings.TrimPrefix(token, "getgather_")
	appKey, userSub, ok := strings.Cut(rest, "_")
	if !ok || appKey == "" || userSub == "" {
		return User{}, gatewayerr.AuthTokenInvalid("malformed getgather token")
	}
	appName, known := v.Apps[appKey]
	if !known {
		return User{}, gatewayerr.AuthTokenInvalid("unknown app_key in getgather token")
	}
	if !userSubPattern.MatchString(userSub) {
		return User{}, gatewayerr.AuthTokenInvalid("user_sub is not DNS/filename safe")
	}
	return User{
		Sub:          userSub,
		AuthProvider: ProviderGetgather,
		AppName:      appName,
	}, nil
}

// githubTokenPrefixes are the prefixes GitHub issues for OAuth tokens,
// personal access tokens, and user-to-server tokens respectively.
var githubTokenPrefixes = []string{"gho_", "ghp_", "ghu_"}

// ThirdPartyVerifier delegates to an underlying OAuth provider's token
// introspection/userinfo call, normalizing the result into a User.
// Grounded on src/auth/multi_oauth_provider.py's MultiOAuthTokenVerifier.
type ThirdPartyVerifier struct {
	provider Provider
	prefixes []string
	verify   func(ctx context.Context, token string) (User, error)
}

func NewGitHubVerifier(verify func(ctx context.Context, token string) (User, error)) *ThirdPartyVerifier {
	return &ThirdPartyVerifier{provider: ProviderGitHub, prefixes: githubTokenPrefixes, verify: verify}
}

// NewGoogleVerifier has no prefix test: per §4.5 it is the catch-all
// ("other -> Google"), so it always Accepts and must be ordered last.
func NewGoogleVerifier(verify func(ctx context.Context, token string) (User, error)) *ThirdPartyVerifier {
	return &ThirdPartyVerifier{provider: ProviderGoogle, verify: verify}
}

func (v *ThirdPartyVerifier) Name() Provider { return v.provider }

func (v *ThirdPartyVerifier) Accepts(token string) bool {
	if len(v.prefixes) == 0 {
		return true
	}
	for _, p := range v.prefixes {
		if strings.HasPrefix(token, p) {
			return true
		}
	}
	return false
}

func (v *ThirdPartyVerifier) Verify(ctx context.Context, token string) (User, error) {
	u, err := v.verify(ctx, token)
	if err != nil {
		return User{}, err
	}
	u.AuthProvider = v.provider
	if u.Sub == "" {
		return User{}, gatewayerr.AuthTokenInvalid("provider verification did not return a sub claim")
	}
	return u, nil
}

// Router dispatches an incoming bearer token to the first Verifier that
// accepts it, in registration order.
type Router struct {
	verifiers []Verifier
}

// NewRouter builds a Router with verifiers in priority order: first-party,
// then any configured third-party providers. Callers should register
// GitHub before Google, since Google's Accepts is unconditional.
func NewRouter(verifiers ...Verifier) *Router {
	return &Router{verifiers: verifiers}
}

// Authenticate strips the "Bearer " prefix if present and routes the token
// to its verifier, returning AuthProviderUnconfigured if nothing accepts it.
func (r *Router) Authenticate(ctx context.Context, bearer string) (User, error) {
	token := strings.TrimPrefix(bearer, "Bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, gatewayerr.AuthTokenInvalid("missing bearer token")
	}
	for _, v := range r.verifiers {
		if v.Accepts(token) {
			return v.Verify(ctx, token)
		}
	}
	return User{}, gatewayerr.AuthProviderUnconfigured("none")
}
