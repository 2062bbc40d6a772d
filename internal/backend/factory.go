package backend

import (
	"context"
	"fmt"
	"log/slog"

	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		raw storage.Backend
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		raw, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		raw, err = f.createMemoryBackend(ctx, config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Cleanup: raw.Close}
	if config.CacheTTL > 0 {
		cached := storage.NewCachedBackend(raw, config.CacheSize, config.CacheTTL)
		result.Cache = cached.Cache()
		result.Cleanup = cached.Close
		raw = cached
		f.logger.InfoContext(ctx, "Store cache enabled",
			"ttl", config.CacheTTL,
			"size", config.CacheSize)
	}

	result.Store = storage.NewStore(raw,
		storage.WithFailOpen(config.FailOpen),
		storage.WithLogger(f.logger.With(applog.FieldComponent, applog.ComponentStorage)))

	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (storage.Backend, error) {
	b, err := storage.NewSQLiteBackend(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
	}
	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"fail_open", config.FailOpen)
	return b, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (storage.Backend, error) {
	m := storage.NewMemoryBackend()
	if config.DataDirectory != "" {
		n, err := m.SeedFromDir(config.DataDirectory, storage.AllKeys...)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory backend: %w", err)
		}
		f.logger.InfoContext(ctx, "Seeded memory backend",
			"data_directory", config.DataDirectory,
			"collections", n)
	}
	f.logger.Info("Initialized memory backend", "fail_open", config.FailOpen)
	return m, nil
}
