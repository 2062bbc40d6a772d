package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// flakyBackend wraps a MemoryBackend and fails on demand.
type flakyBackend struct {
	*MemoryBackend
	failGet bool
	failPut bool
	failDel bool
}

var errDisk = errors.New("disk full")

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errDisk
	}
	return f.MemoryBackend.Get(ctx, key)
}

func (f *flakyBackend) Put(ctx context.Context, key string, payload []byte) error {
	if f.failPut {
		return errDisk
	}
	return f.MemoryBackend.Put(ctx, key, payload)
}

func (f *flakyBackend) Delete(ctx context.Context, keys ...string) error {
	if f.failDel {
		return errDisk
	}
	return f.MemoryBackend.Delete(ctx, keys...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	s := NewStore(NewMemoryBackend(), WithLogger(quietLogger()))

	got, err := Load(context.Background(), s, KeyAccounts, []item{{ID: "def"}})
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "def"}}, got)
}

func TestSaveThenLoad(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), WithLogger(quietLogger()))

	want := []item{{ID: "a", Count: 1}, {ID: "b", Count: 2}}
	require.NoError(t, Save(ctx, s, KeyLoans, want))

	got, err := Load[[]item](ctx, s, KeyLoans, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCorruptPayload(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.Put(ctx, KeyContacts, []byte("{not json")))

	t.Run("fail open yields default", func(t *testing.T) {
		s := NewStore(mem, WithLogger(quietLogger()))
		got, err := Load(ctx, s, KeyContacts, []item{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("strict returns typed error", func(t *testing.T) {
		s := NewStore(mem, WithFailOpen(false), WithLogger(quietLogger()))
		_, err := Load(ctx, s, KeyContacts, []item{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCorrupt)

		var serr *Error
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, KeyContacts, serr.Key)
	})
}

func TestWriteFailurePolicy(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(), failPut: true, failDel: true}

	open := NewStore(backend, WithLogger(quietLogger()))
	assert.NoError(t, Save(ctx, open, KeySettings, item{ID: "x"}))
	assert.NoError(t, open.Clear(ctx, AllKeys...))

	strict := NewStore(backend, WithFailOpen(false), WithLogger(quietLogger()))
	err := Save(ctx, strict, KeySettings, item{ID: "x"})
	assert.ErrorIs(t, err, ErrWrite)
	assert.ErrorIs(t, err, errDisk)
	assert.ErrorIs(t, strict.Clear(ctx, KeySettings), ErrWrite)
}

func TestReadFailurePolicy(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(), failGet: true}

	open := NewStore(backend, WithLogger(quietLogger()))
	got, err := Load(ctx, open, KeyLoans, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	strict := NewStore(backend, WithFailOpen(false), WithLogger(quietLogger()))
	_, err = Load(ctx, strict, KeyLoans, 7)
	assert.ErrorIs(t, err, ErrRead)
}

func TestUpdateSerializesPerKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), WithLogger(quietLogger()))

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Update(ctx, s, KeyAccounts, item{}, func(v item) (item, error) {
				v.Count++
				return v, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := Load(ctx, s, KeyAccounts, item{})
	require.NoError(t, err)
	assert.Equal(t, workers, got.Count)
}

func TestUpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), WithLogger(quietLogger()))
	require.NoError(t, Save(ctx, s, KeyAccounts, item{Count: 1}))

	boom := errors.New("boom")
	_, err := Update(ctx, s, KeyAccounts, item{}, func(v item) (item, error) {
		v.Count = 99
		return v, boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := Load(ctx, s, KeyAccounts, item{})
	assert.Equal(t, 1, got.Count)
}

func TestRawRoundTripAndClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), WithLogger(quietLogger()))

	raw := json.RawMessage(`[{"id":"a","count":3}]`)
	require.NoError(t, s.SaveRaw(ctx, KeyTransactions, raw))

	got, found, err := s.LoadRaw(ctx, KeyTransactions)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, string(raw), string(got))

	require.NoError(t, s.Clear(ctx, AllKeys...))
	_, found, err = s.LoadRaw(ctx, KeyTransactions)
	require.NoError(t, err)
	assert.False(t, found)
}
