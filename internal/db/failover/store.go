// Package failover wraps a networked db.Store with a process-local fallback.
// Every operation is bounded by a timeout; on transport failure the operation
// is served by the in-memory store instead of surfacing the error. Each call
// re-attempts the primary — there is no circuit breaker, so a recovered store
// is picked up immediately. Counters written while degraded live only in this
// process and are lost on restart.
package failover

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/usagegov/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// degradationLogInterval throttles the fallback warning so a dead store does
// not flood the log on every metered call.
const degradationLogInterval = 30 * time.Second

// Store serves operations from primary, falling back to fallback on failure.
type Store struct {
	primary  db.Store
	fallback db.Store
	timeout  time.Duration
	logger   *zap.Logger

	// onFallback is invoked with the op name on every degraded operation.
	onFallback func(op string)

	mu         sync.Mutex
	lastLogged time.Time
}

// New creates a failover store wrapping primary with fallback.
func New(primary, fallback db.Store, timeout time.Duration, logger *zap.Logger) *Store {
	return &Store{
		primary:    primary,
		fallback:   fallback,
		timeout:    timeout,
		logger:     logger,
		onFallback: func(string) {},
	}
}

// WithFallbackHook registers a callback fired on every degraded operation.
func (s *Store) WithFallbackHook(fn func(op string)) *Store {
	if fn != nil {
		s.onFallback = fn
	}
	return s
}

// Ping reports primary connectivity; the fallback is always reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.primary.Ping(ctx)
}

// Close shuts down both stores.
func (s *Store) Close() {
	s.primary.Close()
	s.fallback.Close()
}

// WaitForReady delegates to the primary store.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return s.primary.WaitForReady(ctx, timeout)
}

// HIncrBy increments on primary, diverting to the fallback on failure.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	bctx, cancel := s.bound(ctx)
	val, err := s.primary.HIncrBy(bctx, key, field, delta)
	cancel()
	if !s.divert(err) {
		return val, err
	}
	s.degraded(db.OpHIncrBy, key, err)
	return s.fallback.HIncrBy(ctx, key, field, delta)
}

// HGetAll reads from primary, diverting to the fallback on failure.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	bctx, cancel := s.bound(ctx)
	m, err := s.primary.HGetAll(bctx, key)
	cancel()
	if !s.divert(err) {
		return m, err
	}
	s.degraded(db.OpHGetAll, key, err)
	return s.fallback.HGetAll(ctx, key)
}

// Expire sets TTL on primary, diverting to the fallback on failure.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	bctx, cancel := s.bound(ctx)
	err := s.primary.Expire(bctx, key, ttl, nx)
	cancel()
	if !s.divert(err) {
		return err
	}
	s.degraded(db.OpExpire, key, err)
	return s.fallback.Expire(ctx, key, ttl, nx)
}

// Scan enumerates keys on primary, diverting to the fallback on failure.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	bctx, cancel := s.bound(ctx)
	keys, err := s.primary.Scan(bctx, pattern)
	cancel()
	if !s.divert(err) {
		return keys, err
	}
	s.degraded(db.OpScan, pattern, err)
	return s.fallback.Scan(ctx, pattern)
}

// Del removes a key on primary, diverting to the fallback on failure.
func (s *Store) Del(ctx context.Context, key string) error {
	bctx, cancel := s.bound(ctx)
	err := s.primary.Del(bctx, key)
	cancel()
	if !s.divert(err) {
		return err
	}
	s.degraded(db.OpDel, key, err)
	return s.fallback.Del(ctx, key)
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// divert reports whether err warrants serving the op from the fallback.
// ErrKeyNotFound is an answer, not a failure; caller cancellation is not a
// store problem either.
func (s *Store) divert(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, db.ErrKeyNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

func (s *Store) degraded(op, key string, err error) {
	s.onFallback(op)

	s.mu.Lock()
	throttled := time.Since(s.lastLogged) < degradationLogInterval
	if !throttled {
		s.lastLogged = time.Now()
	}
	s.mu.Unlock()

	if throttled {
		return
	}
	s.logger.Warn("Store unreachable, serving from in-process fallback",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}
