package oauthproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	oagithub "golang.org/x/oauth2/github"
	oagoogle "golang.org/x/oauth2/google"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
)

// Scopes returns the scopes a given provider requests, or the union of
// every provider's scopes when provider == "" (§4.5, constants.py).
func Scopes(provider string) []string {
	github := []string{"user"}
	google := []string{"openid", "https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"}
	switch provider {
	case "":
		return append(append([]string{}, github...), google...)
	case "github":
		return github
	case "google":
		return google
	default:
		return nil
	}
}

// ThirdPartyProvider wraps an upstream IdP's OAuth2 endpoint plus a userinfo
// fetch used both to verify bearer tokens presented directly to the gateway
// and to normalize the identity obtained after this gateway's own
// authorization-code exchange. Grounded on third_party_providers.py's
// GitHubProvider/GoogleProvider wiring, re-expressed over
// golang.org/x/oauth2 rather than fastmcp's OAuthProxy base class.
type ThirdPartyProvider struct {
	name         auth.Provider
	config       *oauth2.Config
	userInfoURL  string
	parseUser    func(raw map[string]any) (auth.User, error)
	httpClient   *http.Client
}

// NewGitHubProvider builds the GitHub third-party provider, nil if
// clientID/clientSecret are unset (unconfigured providers are simply
// absent from the registry, per get_available_providers).
func NewGitHubProvider(clientID, clientSecret, redirectURL string) *ThirdPartyProvider {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &ThirdPartyProvider{
		name: auth.ProviderGitHub,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     oagithub.Endpoint,
			Scopes:       Scopes("github"),
		},
		userInfoURL: "https://api.github.com/user",
		parseUser: func(raw map[string]any) (auth.User, error) {
			sub, _ := raw["id"].(float64)
			if sub == 0 {
				return auth.User{}, gatewayerr.AuthTokenInvalid("github userinfo missing id")
			}
			login, _ := raw["login"].(string)
			name, _ := raw["name"].(string)
			return auth.User{
				Sub:   fmt.Sprintf("%d", int64(sub)),
				Login: login,
				Name:  name,
			}, nil
		},
		httpClient: http.DefaultClient,
	}
}

// NewGoogleProvider builds the Google third-party provider, nil if
// clientID/clientSecret are unset.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *ThirdPartyProvider {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	return &ThirdPartyProvider{
		name: auth.ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     oagoogle.Endpoint,
			Scopes:       Scopes("google"),
		},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		parseUser: func(raw map[string]any) (auth.User, error) {
			sub, _ := raw["id"].(string)
			if sub == "" {
				return auth.User{}, gatewayerr.AuthTokenInvalid("google userinfo missing id")
			}
			name, _ := raw["name"].(string)
			email, _ := raw["email"].(string)
			return auth.User{
				Sub:   sub,
				Name:  name,
				Email: email,
			}, nil
		},
		httpClient: http.DefaultClient,
	}
}

// Name reports which provider this wraps.
func (p *ThirdPartyProvider) Name() auth.Provider { return p.name }

// AuthCodeURL builds the upstream authorization URL for one leg of a
// fanned-out /authorize, using PKCE (§4.5 "every upstream hop uses PKCE
// regardless of whether the client requested it").
func (p *ThirdPartyProvider) AuthCodeURL(state, codeChallenge string) string {
	return p.config.AuthCodeURL(state,
		oauth2.S256ChallengeOption(codeChallenge),
	)
}

// Exchange trades an authorization code for an upstream token, then fetches
// and normalizes the user's identity via the provider's userinfo endpoint.
func (p *ThirdPartyProvider) Exchange(ctx context.Context, code, codeVerifier string) (auth.User, *oauth2.Token, error) {
	tok, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return auth.User{}, nil, gatewayerr.Wrap(gatewayerr.KindUpstreamProxyError, "exchange authorization code", err)
	}
	user, err := p.fetchUser(ctx, tok)
	if err != nil {
		return auth.User{}, nil, err
	}
	return user, tok, nil
}

// VerifyToken normalizes an access token the gateway never minted itself
// (a token the caller obtained directly from the upstream provider and is
// presenting as a bearer token), via the same userinfo fetch (§4.5's
// MultiOAuthTokenVerifier.verify_token).
func (p *ThirdPartyProvider) VerifyToken(ctx context.Context, accessToken string) (auth.User, error) {
	return p.fetchUser(ctx, &oauth2.Token{AccessToken: accessToken})
}

func (p *ThirdPartyProvider) fetchUser(ctx context.Context, tok *oauth2.Token) (auth.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return auth.User{}, gatewayerr.Wrap(gatewayerr.KindUpstreamProxyError, "build userinfo request", err)
	}
	tok.SetAuthHeader(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return auth.User{}, gatewayerr.Wrap(gatewayerr.KindUpstreamProxyError, "fetch userinfo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return auth.User{}, gatewayerr.AuthTokenInvalid(fmt.Sprintf("userinfo returned %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.User{}, gatewayerr.Wrap(gatewayerr.KindUpstreamProxyError, "read userinfo body", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return auth.User{}, gatewayerr.Wrap(gatewayerr.KindUpstreamProxyError, "parse userinfo body", err)
	}

	user, err := p.parseUser(raw)
	if err != nil {
		return auth.User{}, err
	}
	user.AuthProvider = p.name
	return user, nil
}
