package backend

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finanzas/internal/config"
	"finanzas/internal/storage"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:    "sqlite",
		SQLiteDBPath:   "/tmp/x.db",
		StoreFailOpen:  true,
		StoreCacheTTL:  time.Minute,
		StoreCacheSize: 8,
	})
	require.NoError(t, err)
	assert.Equal(t, SQLiteBackend, cfg.Type)
	assert.Equal(t, "/tmp/x.db", cfg.SQLiteDBPath)
	assert.True(t, cfg.FailOpen)
	assert.Equal(t, 8, cfg.CacheSize)
}

func TestCreateMemoryBackendSeeded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"remindersEnabled":true}`), 0o644))

	res, err := NewFactory(quiet()).CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		DataDirectory: dir,
		FailOpen:      true,
	})
	require.NoError(t, err)
	defer res.Cleanup()

	assert.Nil(t, res.Cache)
	got, err := storage.Load(context.Background(), res.Store, storage.KeySettings, map[string]bool{})
	require.NoError(t, err)
	assert.True(t, got["remindersEnabled"])
}

func TestCreateSQLiteBackendWithCache(t *testing.T) {
	ctx := context.Background()
	res, err := NewFactory(quiet()).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "finanzas.db"),
		CacheTTL:     time.Minute,
		CacheSize:    4,
	})
	require.NoError(t, err)
	defer res.Cleanup()

	require.NotNil(t, res.Cache)
	assert.False(t, res.Store.FailOpen())

	require.NoError(t, storage.Save(ctx, res.Store, storage.KeyLoans, []string{"a"}))
	got, err := storage.Load[[]string](ctx, res.Store, storage.KeyLoans, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	f := NewFactory(quiet())
	_, err := f.CreateBackend(context.Background(), Config{Type: "bogus"})
	assert.Error(t, err)

	_, err = f.CreateBackend(context.Background(), Config{Type: SQLiteBackend})
	assert.Error(t, err)
}
