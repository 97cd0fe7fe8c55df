package oauthproxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopesUnionWhenProviderEmpty(t *testing.T) {
	all := Scopes("")
	assert.Contains(t, all, "user")
	assert.Contains(t, all, "openid")
}

func TestScopesUnknownProviderReturnsNil(t *testing.T) {
	assert.Nil(t, Scopes("bogus"))
}

func TestNewGitHubProviderNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewGitHubProvider("", "secret", "https://example.com/callback"))
	assert.Nil(t, NewGitHubProvider("id", "", "https://example.com/callback"))
}

func TestNewGoogleProviderNilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewGoogleProvider("", "", ""))
}

func TestAuthCodeURLUsesPKCE(t *testing.T) {
	p := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback")
	require.NotNil(t, p)

	u := p.AuthCodeURL("state-123", "challenge-abc")
	assert.Contains(t, u, "code_challenge=challenge-abc")
	assert.Contains(t, u, "code_challenge_method=S256")
	assert.Contains(t, u, "state=state-123")
}

func TestFetchUserParsesGitHubUserinfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    float64(42),
			"login": "octocat",
			"name":  "The Octocat",
		})
	}))
	defer server.Close()

	p := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback")
	require.NotNil(t, p)
	p.userInfoURL = server.URL
	p.httpClient = server.Client()

	user, err := p.VerifyToken(t.Context(), "test-token")
	require.NoError(t, err)
	assert.Equal(t, "42", user.Sub)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "The Octocat", user.Name)
}

func TestFetchUserParsesGoogleUserinfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "g-42",
			"email": "a@example.com",
			"name":  "A Person",
		})
	}))
	defer server.Close()

	p := NewGoogleProvider("client-id", "client-secret", "https://example.com/callback")
	require.NotNil(t, p)
	p.userInfoURL = server.URL
	p.httpClient = server.Client()

	user, err := p.VerifyToken(t.Context(), "test-token")
	require.NoError(t, err)
	assert.Equal(t, "g-42", user.Sub)
	assert.Equal(t, "a@example.com", user.Email)
}

func TestFetchUserRejectsMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"login": "nobody"})
	}))
	defer server.Close()

	p := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback")
	require.NotNil(t, p)
	p.userInfoURL = server.URL
	p.httpClient = server.Client()

	_, err := p.VerifyToken(t.Context(), "test-token")
	assert.Error(t, err)
}

func TestFetchUserRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewGitHubProvider("client-id", "client-secret", "https://example.com/callback")
	require.NotNil(t, p)
	p.userInfoURL = server.URL
	p.httpClient = server.Client()

	_, err := p.VerifyToken(t.Context(), "bad-token")
	assert.Error(t, err)
}
