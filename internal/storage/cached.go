package storage

import (
	"context"
	"sync"
	"time"

	"finanzas/internal/cache"
)

// CachedPayload is what CachedBackend keeps per key. Misses are cached too.
type CachedPayload struct {
	Data  []byte
	Found bool
}

// CachedBackend is a read-through cache over another backend. Every write
// or delete invalidates the affected keys.
//
// Each key carries a generation bumped by writes. A miss only fills the
// cache when no write to that key finished while the inner read was in
// flight, so a slow read never reinstates a payload older than a write.
type CachedBackend struct {
	inner Backend
	cache *cache.LRUCache[CachedPayload]

	mu  sync.Mutex
	gen map[string]uint64
}

func NewCachedBackend(inner Backend, size int, ttl time.Duration) *CachedBackend {
	return &CachedBackend{
		inner: inner,
		cache: cache.NewLRUCache[CachedPayload](size, ttl),
		gen:   make(map[string]uint64),
	}
}

// Cache exposes the underlying LRU so it can be registered for sweeping.
func (c *CachedBackend) Cache() *cache.LRUCache[CachedPayload] {
	return c.cache
}

func (c *CachedBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if hit, ok := c.cache.Get(key); ok {
		return append([]byte(nil), hit.Data...), hit.Found, nil
	}

	c.mu.Lock()
	started := c.gen[key]
	c.mu.Unlock()

	payload, found, err := c.inner.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	if c.gen[key] == started {
		c.cache.Set(key, CachedPayload{Data: append([]byte(nil), payload...), Found: found})
	}
	c.mu.Unlock()
	return payload, found, nil
}

func (c *CachedBackend) Put(ctx context.Context, key string, payload []byte) error {
	defer c.invalidate(key)
	return c.inner.Put(ctx, key, payload)
}

func (c *CachedBackend) Delete(ctx context.Context, keys ...string) error {
	defer c.invalidate(keys...)
	return c.inner.Delete(ctx, keys...)
}

// invalidate runs after the inner write returns, successful or not.
func (c *CachedBackend) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.gen[k]++
		c.cache.Delete(k)
	}
}

func (c *CachedBackend) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
