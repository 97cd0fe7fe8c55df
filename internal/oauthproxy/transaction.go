// Package oauthproxy implements the Multi-OAuth Proxy (C6): it fans a
// single authorize request out to every configured third-party identity
// provider, tracks one pending transaction per provider per client, and
// routes the eventual IdP callback back to whichever provider actually
// owns it. Grounded on the original's src/auth/multi_oauth_provider.py,
// with the transaction table's single-use generate/validate shape borrowed
// from null-runner-mcp-gateway/pkg/oauth/state.go.
package oauthproxy

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transaction is one pending authorization: a client mid-flow with a
// specific upstream provider, keyed by the state value handed back to the
// client's redirect so the callback can be matched (§3: OAuth Transaction
// Table).
type Transaction struct {
	ID           string
	Provider     string
	ClientID     string
	RedirectURI  string
	CodeVerifier string // PKCE verifier this gateway generated for the upstream hop
	CreatedAt    time.Time
}

// transactionTTL bounds how long an unclaimed transaction is kept before
// GC, matching the original's implicit "abandoned OAuth flow" cleanup.
const transactionTTL = 10 * time.Minute

// TransactionTable is the process-wide store of in-flight authorize
// transactions, one per (provider, client) attempt. Single-use: a
// transaction is removed the moment its callback is claimed.
type TransactionTable struct {
	mu   sync.Mutex
	txns map[string]Transaction
}

func NewTransactionTable() *TransactionTable {
	return &TransactionTable{txns: make(map[string]Transaction)}
}

// Begin creates and stores a new transaction for provider/clientID,
// returning its generated id to use as the outbound "state" parameter.
func (t *TransactionTable) Begin(provider, clientID, redirectURI, codeVerifier string) Transaction {
	txn := Transaction{
		ID:           uuid.New().String(),
		Provider:     provider,
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now(),
	}
	t.mu.Lock()
	t.txns[txn.ID] = txn
	t.mu.Unlock()
	return txn
}

// Claim looks up and removes the transaction for id with a single keyed
// lookup; the claimed Transaction carries the provider that issued it, so
// one table serves every configured provider.
func (t *TransactionTable) Claim(id string) (Transaction, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	txn, ok := t.txns[id]
	if !ok {
		return Transaction{}, false
	}
	delete(t.txns, id)
	return txn, true
}

// GC drops transactions older than transactionTTL, so an abandoned flow
// doesn't live forever.
func (t *TransactionTable) GC() int {
	cutoff := time.Now().Add(-transactionTTL)
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, txn := range t.txns {
		if txn.CreatedAt.Before(cutoff) {
			delete(t.txns, id)
			removed++
		}
	}
	return removed
}
