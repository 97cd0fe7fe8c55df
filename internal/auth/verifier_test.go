package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticTokenVerifierAcceptsPrefix(t *testing.T) {
	v := &StaticTokenVerifier{Apps: map[string]string{"app1": "MyApp"}}
	assert.True(t, v.Accepts("getgather_app1_user-42"))
	assert.False(t, v.Accepts("gho_abc"))
}

func TestStaticTokenVerifierVerifySuccess(t *testing.T) {
	v := &StaticTokenVerifier{Apps: map[string]string{"app1": "MyApp"}}
	u, err := v.Verify(context.Background(), "getgather_app1_user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", u.Sub)
	assert.Equal(t, ProviderGetgather, u.AuthProvider)
	assert.Equal(t, "MyApp", u.AppName)
}

func TestStaticTokenVerifierRejectsUnknownApp(t *testing.T) {
	v := &StaticTokenVerifier{Apps: map[string]string{"app1": "MyApp"}}
	_, err := v.Verify(context.Background(), "getgather_unknown_user-42")
	assert.Error(t, err)
}

func TestStaticTokenVerifierRejectsMalformedToken(t *testing.T) {
	v := &StaticTokenVerifier{Apps: map[string]string{"app1": "MyApp"}}
	_, err := v.Verify(context.Background(), "getgather_noseparator")
	assert.Error(t, err)
}

func TestStaticTokenVerifierRejectsUnsafeUserSub(t *testing.T) {
	v := &StaticTokenVerifier{Apps: map[string]string{"app1": "MyApp"}}
	_, err := v.Verify(context.Background(), "getgather_app1_../etc/passwd")
	assert.Error(t, err)
}

func TestThirdPartyVerifierGitHubAcceptsKnownPrefixes(t *testing.T) {
	v := NewGitHubVerifier(nil)
	assert.True(t, v.Accepts("gho_abc"))
	assert.True(t, v.Accepts("ghp_abc"))
	assert.True(t, v.Accepts("ghu_abc"))
	assert.False(t, v.Accepts("getgather_app1_x"))
}

func TestThirdPartyVerifierGoogleAcceptsEverything(t *testing.T) {
	v := NewGoogleVerifier(nil)
	assert.True(t, v.Accepts("anything-at-all"))
}

func TestThirdPartyVerifierVerifyStampsProvider(t *testing.T) {
	v := NewGitHubVerifier(func(ctx context.Context, token string) (User, error) {
		return User{Sub: "123"}, nil
	})
	u, err := v.Verify(context.Background(), "gho_abc")
	require.NoError(t, err)
	assert.Equal(t, ProviderGitHub, u.AuthProvider)
}

func TestThirdPartyVerifierRejectsMissingSub(t *testing.T) {
	v := NewGitHubVerifier(func(ctx context.Context, token string) (User, error) {
		return User{}, nil
	})
	_, err := v.Verify(context.Background(), "gho_abc")
	assert.Error(t, err)
}

func TestRouterDispatchesToFirstAcceptingVerifier(t *testing.T) {
	router := NewRouter(
		&StaticTokenVerifier{Apps: map[string]string{"app1": "MyApp"}},
		NewGitHubVerifier(func(ctx context.Context, token string) (User, error) {
			return User{Sub: "gh-user"}, nil
		}),
		NewGoogleVerifier(func(ctx context.Context, token string) (User, error) {
			return User{Sub: "g-user"}, nil
		}),
	)

	u, err := router.Authenticate(context.Background(), "Bearer getgather_app1_my-user")
	require.NoError(t, err)
	assert.Equal(t, "my-user", u.Sub)

	u, err = router.Authenticate(context.Background(), "Bearer gho_token")
	require.NoError(t, err)
	assert.Equal(t, "gh-user", u.Sub)

	u, err = router.Authenticate(context.Background(), "Bearer some-opaque-token")
	require.NoError(t, err)
	assert.Equal(t, "g-user", u.Sub)
}

func TestRouterRejectsMissingBearer(t *testing.T) {
	router := NewRouter()
	_, err := router.Authenticate(context.Background(), "")
	assert.Error(t, err)
}

func TestRouterRejectsWhenNoVerifierAccepts(t *testing.T) {
	router := NewRouter(&StaticTokenVerifier{Apps: map[string]string{}})
	_, err := router.Authenticate(context.Background(), "Bearer opaque")
	assert.Error(t, err)
}
