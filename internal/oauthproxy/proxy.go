package oauthproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"

	"github.com/mcp-getgather/mcp-gateway/internal/auth"
	"github.com/mcp-getgather/mcp-gateway/internal/gatewayerr"
	"github.com/mcp-getgather/mcp-gateway/internal/log"
)

var proxyLog = log.With("oauthproxy")

// Proxy is the Multi-OAuth Proxy (C6): it fans out a single /authorize
// request across every configured third-party provider, then routes the
// IdP that actually answers back to the right transaction. Grounded on
// src/auth/multi_oauth_provider.py's MultiOAuthProvider.
type Proxy struct {
	providers map[string]*ThirdPartyProvider // name -> provider, only configured ones
	txns      *TransactionTable

	mu             sync.Mutex
	clientProvider map[string]string // client_id -> provider name, set once the IdP callback resolves
}

// New builds a Proxy from whichever providers are non-nil (unconfigured
// providers are simply absent, matching get_available_providers).
func New(providers ...*ThirdPartyProvider) *Proxy {
	p := &Proxy{
		providers:      make(map[string]*ThirdPartyProvider),
		txns:           NewTransactionTable(),
		clientProvider: make(map[string]string),
	}
	for _, prov := range providers {
		if prov != nil {
			p.providers[string(prov.Name())] = prov
		}
	}
	return p
}

// Enabled reports whether any third-party provider is configured, mirroring
// auth_enabled()'s third_party_providers half.
func (p *Proxy) Enabled() bool { return len(p.providers) > 0 }

// AuthorizeURLs fans a single authorization attempt out across every
// configured provider, returning a map of provider name -> authorize URL to
// present on the gateway's own "/signin" chooser page (§4.5: "authorize()
// returns a single redirect to /signin?{provider}_url=... for every
// configured provider, not a single upstream redirect").
func (p *Proxy) AuthorizeURLs(clientID, redirectURI string) (map[string]string, error) {
	if !p.Enabled() {
		return nil, gatewayerr.New(gatewayerr.KindAuthProviderUnconfigured, "no third party OAuth providers configured")
	}

	urls := make(map[string]string, len(p.providers))
	for name, prov := range p.providers {
		verifier := oauth2.GenerateVerifier()
		challenge := oauth2.S256ChallengeFromVerifier(verifier)
		txn := p.txns.Begin(name, clientID, redirectURI, verifier)
		urls[name] = prov.AuthCodeURL(txn.ID, challenge)
	}
	return urls, nil
}

// SigninURL builds the "/signin" redirect target carrying every provider's
// authorize URL as a query parameter, the shape the original returns
// directly from authorize() (§4.5).
func SigninURL(base string, providerURLs map[string]string) string {
	q := url.Values{}
	for name, u := range providerURLs {
		q.Set(name+"_url", u)
	}
	return base + "/signin?" + q.Encode()
}

// HandleCallback resolves which provider an IdP callback belongs to by
// claiming the pending transaction keyed by the state value (each
// transaction records the provider that issued it), exchanges the code,
// and remembers client_id -> provider for every
// subsequent call on that client (load_authorization_code,
// exchange_refresh_token, etc. all dispatch on this memoized mapping).
func (p *Proxy) HandleCallback(ctx context.Context, state, code string) (auth.User, *oauth2.Token, Transaction, error) {
	txn, ok := p.txns.Claim(state)
	if !ok {
		return auth.User{}, nil, Transaction{}, gatewayerr.AuthTokenInvalid("OAuth transaction not found for state")
	}

	prov, ok := p.providers[txn.Provider]
	if !ok {
		return auth.User{}, nil, Transaction{}, gatewayerr.AuthProviderUnconfigured(txn.Provider)
	}

	user, tok, err := prov.Exchange(ctx, code, txn.CodeVerifier)
	if err != nil {
		return auth.User{}, nil, Transaction{}, err
	}

	p.mu.Lock()
	p.clientProvider[txn.ClientID] = txn.Provider
	p.mu.Unlock()

	return user, tok, txn, nil
}

// ProviderFor returns the provider a client_id resolved to during its
// original IdP callback, used by subsequent token operations on that
// client (§4.5: "client_id -> provider memoization").
func (p *Proxy) ProviderFor(clientID string) (*ThirdPartyProvider, bool) {
	p.mu.Lock()
	name, ok := p.clientProvider[clientID]
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	prov, ok := p.providers[name]
	return prov, ok
}

// VerifyToken implements auth.Verifier-style dispatch for bearer tokens
// that were minted directly by an upstream provider rather than through
// this gateway's own code exchange (§4.5's MultiOAuthTokenVerifier).
func (p *Proxy) VerifyToken(ctx context.Context, providerName, token string) (auth.User, error) {
	prov, ok := p.providers[providerName]
	if !ok {
		return auth.User{}, gatewayerr.AuthProviderUnconfigured(providerName)
	}
	return prov.VerifyToken(ctx, token)
}

// ServeAuthorize is the HTTP handler for GET /authorize: it fans out to
// every configured provider and redirects to the signin chooser.
func (p *Proxy) ServeAuthorize(origin string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client_id")
		redirectURI := r.URL.Query().Get("redirect_uri")
		if clientID == "" {
			http.Error(w, "missing client_id", http.StatusBadRequest)
			return
		}

		urls, err := p.AuthorizeURLs(clientID, redirectURI)
		if err != nil {
			proxyLog.Warn("authorize fan-out failed", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		http.Redirect(w, r, SigninURL(origin, urls), http.StatusFound)
	}
}

// ServeCallback is the HTTP handler every configured provider's redirect_uri
// points at: it claims the transaction, exchanges the code, and redirects
// the caller to the transaction's redirect_uri (or "/"). No authorization
// code, token or state is attached to that redirect.
func (p *Proxy) ServeCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if state == "" || code == "" {
			http.Error(w, "missing state or code", http.StatusBadRequest)
			return
		}

		user, _, txn, err := p.HandleCallback(r.Context(), state, code)
		if err != nil {
			proxyLog.Warn("callback failed", "error", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		proxyLog.Info("third party identity resolved", "user_id", user.UserID(), "provider", txn.Provider)

		dest := txn.RedirectURI
		if dest == "" {
			dest = "/"
		}
		http.Redirect(w, r, dest, http.StatusFound)
	}
}

// ServeAppMetadata writes the RFC 8414-shaped authorization-server metadata
// document MCP clients fetch to discover this gateway's OAuth endpoints,
// declaring the union of every configured provider's scopes so dynamic
// client registration requests validate (§4.5, constants.py's OAUTH_SCOPES).
func (p *Proxy) ServeAppMetadata(origin string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"issuer":                 origin,
			"authorization_endpoint": origin + "/authorize",
			"token_endpoint":         origin + "/token",
			"registration_endpoint":  origin + "/register",
			"scopes_supported":       []string{"getgather_user_scope"},
			"response_types_supported": []string{"code"},
			"code_challenge_methods_supported": []string{"S256"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}

// RegisterClient implements the gateway's dynamic client registration
// endpoint (RFC 7591): every registered client is granted the union of
// every configured provider's scopes, matching register_client's
// `client_info.scope = " ".join(get_provider_scopes())`.
func (p *Proxy) RegisterClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RedirectURIs []string `json:"redirect_uris"`
		ClientName   string   `json:"client_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid registration request", http.StatusBadRequest)
		return
	}

	clientID := fmt.Sprintf("client_%s", oauth2.GenerateVerifier()[:16])
	resp := map[string]any{
		"client_id":                  clientID,
		"redirect_uris":              req.RedirectURIs,
		"client_name":                req.ClientName,
		"scope":                      scopesString(),
		"token_endpoint_auth_method": "none",
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func scopesString() string {
	s := ""
	for i, sc := range Scopes("") {
		if i > 0 {
			s += " "
		}
		s += sc
	}
	return s
}
