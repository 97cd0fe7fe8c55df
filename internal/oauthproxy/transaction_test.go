package oauthproxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionTableBeginAndClaim(t *testing.T) {
	table := NewTransactionTable()
	txn := table.Begin("github", "client-1", "https://example.com/callback", "verifier")

	require.NotEmpty(t, txn.ID)
	assert.Equal(t, "github", txn.Provider)

	claimed, ok := table.Claim(txn.ID)
	require.True(t, ok)
	assert.Equal(t, txn.ID, claimed.ID)
	assert.Equal(t, "client-1", claimed.ClientID)
}

func TestTransactionTableClaimIsSingleUse(t *testing.T) {
	table := NewTransactionTable()
	txn := table.Begin("google", "client-1", "https://example.com/callback", "verifier")

	_, ok := table.Claim(txn.ID)
	require.True(t, ok)

	_, ok = table.Claim(txn.ID)
	assert.False(t, ok, "a transaction must not be claimable twice")
}

func TestTransactionTableClaimUnknownID(t *testing.T) {
	table := NewTransactionTable()
	_, ok := table.Claim("nonexistent")
	assert.False(t, ok)
}

func TestTransactionTableGCRemovesExpired(t *testing.T) {
	table := NewTransactionTable()
	txn := table.Begin("github", "client-1", "https://example.com/callback", "verifier")

	table.mu.Lock()
	stale := table.txns[txn.ID]
	stale.CreatedAt = time.Now().Add(-2 * transactionTTL)
	table.txns[txn.ID] = stale
	table.mu.Unlock()

	removed := table.GC()
	assert.Equal(t, 1, removed)

	_, ok := table.Claim(txn.ID)
	assert.False(t, ok)
}
