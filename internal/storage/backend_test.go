package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackendSeedFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "accounts.json"), []byte(`[{"id":"seed"}]`), 0o644))

	m := NewMemoryBackend()
	n, err := m.SeedFromDir(dir, AllKeys...)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	payload, found, err := m.Get(context.Background(), KeyAccounts)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `[{"id":"seed"}]`, string(payload))

	_, found, _ = m.Get(context.Background(), KeyLoans)
	assert.False(t, found)
}

func TestMemoryBackendCopiesPayloads(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	buf := []byte(`"abc"`)
	require.NoError(t, m.Put(ctx, "k", buf))
	buf[1] = 'z'

	got, _, _ := m.Get(ctx, "k")
	assert.Equal(t, `"abc"`, string(got))
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "finanzas.db")

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	_, found, err := b.Get(ctx, KeyAccounts)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, b.Put(ctx, KeyAccounts, []byte(`[1]`)))
	require.NoError(t, b.Put(ctx, KeyAccounts, []byte(`[1,2]`)))
	require.NoError(t, b.Put(ctx, KeyLoans, []byte(`[]`)))

	got, found, err := b.Get(ctx, KeyAccounts)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1,2]`, string(got))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{KeyAccounts, KeyLoans}, keys)

	require.NoError(t, b.Delete(ctx, KeyAccounts, KeyLoans, "never-written"))
	keys, err = b.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLiteBackendReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "finanzas.db")

	b, err := NewSQLiteBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, KeySettings, []byte(`{"remindersEnabled":true}`)))
	require.NoError(t, b.Close())

	b, err = NewSQLiteBackend(path)
	require.NoError(t, err)
	defer b.Close()

	got, found, err := b.Get(ctx, KeySettings)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"remindersEnabled":true}`, string(got))
}

type countingBackend struct {
	*MemoryBackend
	gets int
}

func (c *countingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.gets++
	return c.MemoryBackend.Get(ctx, key)
}

func TestCachedBackendReadThroughAndInvalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingBackend{MemoryBackend: NewMemoryBackend()}
	c := NewCachedBackend(inner, 10, time.Minute)

	// misses are cached as well
	_, found, err := c.Get(ctx, KeyLoans)
	require.NoError(t, err)
	assert.False(t, found)
	_, _, _ = c.Get(ctx, KeyLoans)
	assert.Equal(t, 1, inner.gets)

	require.NoError(t, c.Put(ctx, KeyLoans, []byte(`[1]`)))
	got, found, err := c.Get(ctx, KeyLoans)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `[1]`, string(got))
	assert.Equal(t, 2, inner.gets)

	_, _, _ = c.Get(ctx, KeyLoans)
	assert.Equal(t, 2, inner.gets)

	require.NoError(t, c.Delete(ctx, KeyLoans))
	_, found, _ = c.Get(ctx, KeyLoans)
	assert.False(t, found)
	assert.Equal(t, 3, inner.gets)

	assert.Equal(t, uint64(2), c.Cache().Stats().Hits)
}

// gatedBackend parks the next Get after it has read from the inner backend.
type gatedBackend struct {
	*MemoryBackend
	read    chan struct{}
	release chan struct{}
	armed   bool
}

func (g *gatedBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, found, err := g.MemoryBackend.Get(ctx, key)
	if g.armed {
		g.armed = false
		close(g.read)
		<-g.release
	}
	return payload, found, err
}

func TestCachedBackendSlowMissDoesNotReinstateStalePayload(t *testing.T) {
	ctx := context.Background()
	inner := &gatedBackend{
		MemoryBackend: NewMemoryBackend(),
		read:          make(chan struct{}),
		release:       make(chan struct{}),
	}
	require.NoError(t, inner.MemoryBackend.Put(ctx, KeyAccounts, []byte(`[100]`)))
	c := NewCachedBackend(inner, 10, time.Minute)
	store := NewStore(c, WithFailOpen(false))

	inner.armed = true
	done := make(chan []byte)
	go func() {
		got, _, _ := c.Get(ctx, KeyAccounts)
		done <- got
	}()

	<-inner.read
	_, err := Update(ctx, store, KeyAccounts, []int{}, func(v []int) ([]int, error) {
		return []int{v[0] + 50}, nil
	})
	require.NoError(t, err)
	close(inner.release)
	assert.Equal(t, `[100]`, string(<-done), "the parked read returns what it saw")

	got, err := Update(ctx, store, KeyAccounts, []int{}, func(v []int) ([]int, error) {
		return []int{v[0] + 25}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{175}, got)
}
