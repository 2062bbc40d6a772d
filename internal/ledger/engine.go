// Package ledger is the only writer of account balances and loan state.
//
// Every cash-affecting operation produces exactly one transaction record and
// adjusts at most one account. Multi-collection operations are serialized by
// the engine; each collection write goes through the store's per-key
// read-modify-write.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

type Engine struct {
	store  *storage.Store
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	mu sync.Mutex
}

type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides uuid.NewString.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func New(store *storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default().With(applog.FieldComponent, applog.ComponentLedger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the handle the engine writes through.
func (e *Engine) Store() *storage.Store { return e.store }

// errNoChange aborts an update without writing.
var errNoChange = errors.New("no change")

func loadList[T any](ctx context.Context, s *storage.Store, key string) ([]T, error) {
	items, err := storage.Load(ctx, s, key, []T{})
	if items == nil {
		items = []T{}
	}
	return items, err
}

func updateList[T any](ctx context.Context, s *storage.Store, key string, fn func([]T) ([]T, error)) ([]T, error) {
	out, err := storage.Update(ctx, s, key, []T{}, func(items []T) ([]T, error) {
		if items == nil {
			items = []T{}
		}
		return fn(items)
	})
	if errors.Is(err, errNoChange) {
		err = nil
	}
	if out == nil {
		out = []T{}
	}
	return out, err
}
