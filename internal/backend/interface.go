// Package backend turns configuration into a ready collection store.
package backend

import (
	"context"

	"finanzas/internal/cache"
	"finanzas/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult contains the store and its cleanup function.
type BackendResult struct {
	Store *storage.Store
	// Cache is set when the store is fronted by the LRU cache, so callers
	// can register it with a cache.Manager.
	Cache   cache.Cleaner
	Cleanup CleanupFunc
}

// Factory creates stores based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
