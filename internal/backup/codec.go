// Package backup exports, restores and clears the whole ledger.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// FormatVersion is written into every snapshot.
const FormatVersion = 1

var (
	// ErrInvalidSnapshot means the payload is not a JSON object.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrMissingVersion means the payload has no version tag.
	ErrMissingVersion = errors.New("snapshot has no version")
)

// Snapshot is the full exported state.
type Snapshot struct {
	Version      int                `json:"version"`
	Timestamp    time.Time          `json:"timestamp"`
	Contacts     []core.Contact     `json:"contacts"`
	Transactions []core.Transaction `json:"transactions"`
	Loans        []core.Loan        `json:"loans"`
	Accounts     []core.Account     `json:"accounts"`
	Settings     *core.Settings     `json:"settings,omitempty"`
}

type Codec struct {
	store  *storage.Store
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Codec)

func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCodec(store *storage.Store, opts ...Option) *Codec {
	c := &Codec{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With(applog.FieldComponent, applog.ComponentBackup),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func loadAll[T any](ctx context.Context, s *storage.Store, key string) ([]T, error) {
	items, err := storage.Load(ctx, s, key, []T{})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Export reads every collection into a snapshot.
func (c *Codec) Export(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Version: FormatVersion, Timestamp: c.now().UTC()}

	var err error
	if snap.Contacts, err = loadAll[core.Contact](ctx, c.store, storage.KeyContacts); err != nil {
		return Snapshot{}, err
	}
	if snap.Transactions, err = loadAll[core.Transaction](ctx, c.store, storage.KeyTransactions); err != nil {
		return Snapshot{}, err
	}
	if snap.Loans, err = loadAll[core.Loan](ctx, c.store, storage.KeyLoans); err != nil {
		return Snapshot{}, err
	}
	if snap.Accounts, err = loadAll[core.Account](ctx, c.store, storage.KeyAccounts); err != nil {
		return Snapshot{}, err
	}

	settings, err := storage.Load(ctx, c.store, storage.KeySettings, core.Settings{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("load settings: %w", err)
	}
	snap.Settings = &settings

	c.logger.InfoContext(ctx, "Snapshot exported",
		applog.FieldOperation, applog.OpExport,
		"contacts", len(snap.Contacts),
		"transactions", len(snap.Transactions),
		"loans", len(snap.Loans),
		"accounts", len(snap.Accounts))
	return snap, nil
}

// ExportJSON renders the snapshot as indented JSON.
func (c *Codec) ExportJSON(ctx context.Context) ([]byte, error) {
	snap, err := c.Export(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(snap, "", "  ")
}

// ImportResult lists the collections an import replaced.
type ImportResult struct {
	Version  json.Number `json:"version"`
	Restored []string    `json:"restored"`
}

// Import restores a snapshot. The payload must be a JSON object carrying a
// version; otherwise nothing is written. Each collection present replaces
// the stored one as-is and absent collections are left alone. Entity shapes
// are not checked.
func (c *Codec) Import(ctx context.Context, payload []byte) (ImportResult, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		if err == nil {
			err = errors.New("not an object")
		}
		return ImportResult{}, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	version, ok := fields["version"]
	if !ok || bytes.Equal(bytes.TrimSpace(version), []byte("null")) {
		return ImportResult{}, ErrMissingVersion
	}

	result := ImportResult{Version: json.Number(bytes.Trim(bytes.TrimSpace(version), `"`)), Restored: []string{}}
	// snapshot field names match the store keys
	for _, key := range storage.AllKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := c.store.SaveRaw(ctx, key, raw); err != nil {
			return result, fmt.Errorf("restore %s: %w", key, err)
		}
		result.Restored = append(result.Restored, key)
	}

	c.logger.InfoContext(ctx, "Snapshot imported",
		applog.FieldOperation, applog.OpImport,
		"version", result.Version.String(),
		"restored", result.Restored)
	return result, nil
}

// ClearAll deletes every collection, settings included.
func (c *Codec) ClearAll(ctx context.Context) error {
	if err := c.store.Clear(ctx, storage.AllKeys...); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	c.logger.WarnContext(ctx, "All data cleared", applog.FieldOperation, applog.OpClear)
	return nil
}
