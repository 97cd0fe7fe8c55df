package oauthproxy

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
)

func TestNewSkipsNilProviders(t *testing.T) {
	p := New(nil, NewGitHubProvider("id", "secret", "https://example.com/callback"), nil)
	assert.True(t, p.Enabled())
	assert.Len(t, p.providers, 1)
}

func TestEnabledFalseWithNoProviders(t *testing.T) {
	p := New()
	assert.False(t, p.Enabled())
}

func TestAuthorizeURLsFansOutToEveryProvider(t *testing.T) {
	p := New(
		NewGitHubProvider("gh-id", "gh-secret", "https://example.com/callback"),
		NewGoogleProvider("g-id", "g-secret", "https://example.com/callback"),
	)

	urls, err := p.AuthorizeURLs("client-1", "https://client.example.com/done")
	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Contains(t, urls, "github")
	assert.Contains(t, urls, "google")
}

func TestAuthorizeURLsErrorsWhenNoProviders(t *testing.T) {
	p := New()
	_, err := p.AuthorizeURLs("client-1", "https://client.example.com/done")
	assert.Error(t, err)
}

func TestSigninURLEncodesEveryProviderURL(t *testing.T) {
	dest := SigninURL("https://gw.example.com", map[string]string{
		"github": "https://github.com/authorize?x=1",
		"google": "https://google.com/authorize?y=2",
	})

	parsed, err := url.Parse(dest)
	require.NoError(t, err)
	assert.Equal(t, "/signin", parsed.Path)
	q := parsed.Query()
	assert.Equal(t, "https://github.com/authorize?x=1", q.Get("github_url"))
	assert.Equal(t, "https://google.com/authorize?y=2", q.Get("google_url"))
}

func TestHandleCallbackUnknownStateErrors(t *testing.T) {
	p := New(NewGitHubProvider("id", "secret", "https://example.com/callback"))
	_, _, _, err := p.HandleCallback(t.Context(), "nonexistent-state", "code")
	assert.Error(t, err)
}

func TestProviderForUnknownClientNotFound(t *testing.T) {
	p := New(NewGitHubProvider("id", "secret", "https://example.com/callback"))
	_, ok := p.ProviderFor("never-seen")
	assert.False(t, ok)
}

func TestProviderForAfterManualMemoization(t *testing.T) {
	p := New(NewGitHubProvider("id", "secret", "https://example.com/callback"))
	p.mu.Lock()
	p.clientProvider["client-1"] = "github"
	p.mu.Unlock()

	prov, ok := p.ProviderFor("client-1")
	require.True(t, ok)
	assert.Equal(t, auth.ProviderGitHub, prov.Name())
}

func TestVerifyTokenUnconfiguredProvider(t *testing.T) {
	p := New(NewGitHubProvider("id", "secret", "https://example.com/callback"))
	_, err := p.VerifyToken(t.Context(), "google", "tok")
	assert.Error(t, err)
}

func TestScopesStringJoinsWithSpaces(t *testing.T) {
	s := scopesString()
	assert.Contains(t, s, "user")
	assert.Contains(t, s, " ")
}
