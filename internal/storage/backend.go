// Package storage persists the ledger's collections. A Backend moves raw
// JSON payloads by key; a Store layers typed access, per-key locking and
// the fail-open error policy on top of it.
package storage

import "context"

// Collection keys.
const (
	KeyAccounts     = "accounts"
	KeyContacts     = "contacts"
	KeyTransactions = "transactions"
	KeyLoans        = "loans"
	KeySettings     = "settings"
)

// AllKeys lists every persisted collection.
var AllKeys = []string{KeyAccounts, KeyContacts, KeyTransactions, KeyLoans, KeySettings}

// Backend is raw payload persistence by key.
type Backend interface {
	// Get returns the payload stored under key. found is false when the key
	// has never been written or was deleted.
	Get(ctx context.Context, key string) (payload []byte, found bool, err error)
	// Put replaces the payload stored under key.
	Put(ctx context.Context, key string, payload []byte) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}
