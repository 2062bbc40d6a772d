package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	applog "finanzas/internal/log"
)

var (
	// ErrCorrupt marks a payload that could not be decoded.
	ErrCorrupt = errors.New("corrupt payload")
	// ErrRead marks a backend read failure.
	ErrRead = errors.New("read failed")
	// ErrWrite marks an encode or backend write failure.
	ErrWrite = errors.New("write failed")
)

// Error is returned by a strict Store. It matches its Kind sentinel and the
// underlying cause through errors.Is.
type Error struct {
	Op   string
	Key  string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %s: %v: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Store gives typed access to JSON collections held by a Backend.
//
// In fail-open mode (the default) read corruption yields the caller's
// default value and write failures are logged and dropped. In strict mode
// both surface as *Error.
type Store struct {
	backend  Backend
	failOpen bool
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Store)

// WithFailOpen selects the error policy.
func WithFailOpen(failOpen bool) Option {
	return func(s *Store) { s.failOpen = failOpen }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		failOpen: true,
		logger:   slog.Default().With(applog.FieldComponent, applog.ComponentStorage),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailOpen reports the store's error policy.
func (s *Store) FailOpen() bool { return s.failOpen }

func (s *Store) Close() error { return s.backend.Close() }

func (s *Store) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// lockKeys acquires the locks for keys in a fixed order and returns the
// matching unlock.
func (s *Store) lockKeys(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		l := s.keyLock(k)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// fail applies the error policy. It returns nil when the failure is
// swallowed.
func (s *Store) fail(ctx context.Context, op, key string, kind, err error) error {
	if s.failOpen {
		s.logger.WarnContext(ctx, "Storage failure ignored",
			applog.FieldOperation, op,
			applog.FieldKey, key,
			applog.FieldError, err)
		return nil
	}
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}

// LoadRaw returns the stored payload for key as-is.
func (s *Store) LoadRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	payload, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, false, s.fail(ctx, applog.OpLoad, key, ErrRead, err)
	}
	if !found {
		return nil, false, nil
	}
	return json.RawMessage(payload), true, nil
}

// SaveRaw replaces the payload for key without decoding it.
func (s *Store) SaveRaw(ctx context.Context, key string, payload json.RawMessage) error {
	unlock := s.lockKeys([]string{key})
	defer unlock()
	return s.put(ctx, key, payload)
}

func (s *Store) put(ctx context.Context, key string, payload []byte) error {
	if err := s.backend.Put(ctx, key, payload); err != nil {
		return s.fail(ctx, applog.OpSave, key, ErrWrite, err)
	}
	return nil
}

// Clear deletes the given keys.
func (s *Store) Clear(ctx context.Context, keys ...string) error {
	unlock := s.lockKeys(keys)
	defer unlock()

	if err := s.backend.Delete(ctx, keys...); err != nil {
		return s.fail(ctx, applog.OpClear, fmt.Sprint(keys), ErrWrite, err)
	}
	return nil
}

// Load decodes the value stored under key. A missing key yields def. An
// undecodable payload yields def in fail-open mode.
func Load[T any](ctx context.Context, s *Store, key string, def T) (T, error) {
	payload, found, err := s.LoadRaw(ctx, key)
	if err != nil || !found {
		return def, err
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return def, s.fail(ctx, applog.OpLoad, key, ErrCorrupt, err)
	}
	return v, nil
}

// Save replaces the value stored under key.
func Save[T any](ctx context.Context, s *Store, key string, v T) error {
	unlock := s.lockKeys([]string{key})
	defer unlock()
	return save(ctx, s, key, v)
}

func save[T any](ctx context.Context, s *Store, key string, v T) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return s.fail(ctx, applog.OpSave, key, ErrWrite, err)
	}
	return s.put(ctx, key, payload)
}

// Update runs a read-modify-write on key while holding its lock. When fn
// returns an error nothing is written and the error is returned unchanged.
func Update[T any](ctx context.Context, s *Store, key string, def T, fn func(T) (T, error)) (T, error) {
	unlock := s.lockKeys([]string{key})
	defer unlock()

	current, err := Load(ctx, s, key, def)
	if err != nil {
		return def, err
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	if err := save(ctx, s, key, next); err != nil {
		return current, err
	}
	return next, nil
}
