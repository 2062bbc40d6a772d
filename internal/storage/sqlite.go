package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores one row per collection key.
type SQLiteBackend struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteBackend{db: db, queries: New(db)}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := b.queries.GetCollection(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get collection %s: %w", key, err)
	}
	return []byte(payload), true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, key string, payload []byte) error {
	err := b.queries.UpsertCollection(ctx, UpsertCollectionParams{
		Key:       key,
		Payload:   string(payload),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("upsert collection %s: %w", key, err)
	}
	return nil
}

// Delete removes all keys in a single transaction.
func (b *SQLiteBackend) Delete(ctx context.Context, keys ...string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	q := b.queries.WithTx(tx)
	for _, key := range keys {
		if err := q.DeleteCollection(ctx, key); err != nil {
			return fmt.Errorf("delete collection %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// Keys lists the collections currently stored.
func (b *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	return b.queries.ListCollectionKeys(ctx)
}

func (b *SQLiteBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
