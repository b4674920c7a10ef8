package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Session is the capability every caller-facing session type exposes to
// collaborators: scoped access to the record and explicit invalidation.
// Attributes are read and written only inside With; the record itself is
// never handed out.
type Session interface {
	With(fn func(*Record) error) error
	Invalidate()
}

// Wrapper is implemented by transport-specific session types (cookie,
// header, URL token) so they can cross the store boundary. Bind adopts a
// handle fetched from a backend; Handle exposes it for storage. This
// two-way conversion is the only place wrapper types and backends meet.
type Wrapper interface {
	Session

	// Bind adopts a handle. The wrapper becomes one more owner of the
	// same underlying record.
	Bind(*Data)

	// Handle returns the wrapper's handle, or nil if none is bound.
	Handle() *Data
}

// Store is the single entry point collaborators use. It wraps exactly one
// Map backend, chosen at construction, and adds the generic conversion
// between backend-agnostic handles and caller-facing wrapper types.
type Store struct {
	backend Map
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	logger        *slog.Logger
	sweepInterval time.Duration
}

// WithLogger sets the store's logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// WithSweepInterval enables a background goroutine that calls
// RemoveExpired at the given interval. Default: disabled.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.sweepInterval = d
	}
}

// NewStore creates a store over the given backend. A nil backend selects
// a fresh LocalMap.
func NewStore(backend Map, opts ...StoreOption) *Store {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if backend == nil {
		backend = NewLocalMap()
	}

	s := &Store{
		backend: backend,
		logger:  cfg.logger.With("component", "session_store"),
		done:    make(chan struct{}),
	}

	if cfg.sweepInterval > 0 {
		go s.sweepLoop(cfg.sweepInterval)
	}
	return s
}

// Backend returns the wrapped Map. Collaborators that layer extra
// behavior (fan-out listeners, instrumentation) attach to it here.
func (s *Store) Backend() Map { return s.backend }

// List returns a snapshot of all stored handles.
func (s *Store) List(ctx context.Context) ([]*Data, error) {
	return s.backend.List(ctx)
}

// GetData returns the raw handle stored under id, without expiration
// filtering. Most callers want the typed Get instead.
func (s *Store) GetData(ctx context.Context, id string) (*Data, error) {
	return s.backend.Get(ctx, id)
}

// Insert stores or replaces the handle under id.
func (s *Store) Insert(ctx context.Context, id string, data *Data) error {
	return s.backend.Insert(ctx, id, data)
}

// Remove deletes the session under id.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	return s.backend.Remove(ctx, id)
}

// RemoveExpired sweeps the backend and returns how many sessions were
// evicted.
func (s *Store) RemoveExpired(ctx context.Context) (int, error) {
	n, err := s.backend.RemoveExpired(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Debug("removed expired sessions", "count", n)
	}
	return n, nil
}

// Clear invalidates and removes every session.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Clear(ctx)
}

// Close stops the background sweep, if one was enabled. It does not close
// the backend, which may be shared with other components.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

// sweepLoop periodically evicts expired sessions.
func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := s.RemoveExpired(ctx); err != nil {
				s.logger.Warn("sweep failed", "error", err)
			}
			cancel()
		case <-s.done:
			return
		}
	}
}

// Get fetches the session stored under id and binds it to a fresh wrapper
// of type T. An absent id and an expired record both yield a nil wrapper:
// an expired session is useless to the caller and is reported the same as
// one that never existed. Backend faults are returned as errors.
func Get[T any, P interface {
	*T
	Wrapper
}](ctx context.Context, s *Store, id string) (P, error) {
	d, err := s.backend.Get(ctx, id)
	if err != nil {
		var zero P
		return zero, err
	}
	if d == nil || d.Expired() {
		var zero P
		return zero, nil
	}

	var sess T
	p := P(&sess)
	p.Bind(d)
	return p, nil
}

// Put extracts the wrapper's handle and stores it under id, making the
// backend one more owner of the same record.
func Put(ctx context.Context, s *Store, id string, sess Wrapper) error {
	d := sess.Handle()
	if d == nil {
		return ErrNoHandle
	}
	return s.backend.Insert(ctx, id, d)
}
