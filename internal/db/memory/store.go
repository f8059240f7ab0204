// Package memory provides a process-local db.Store used as the degraded-mode
// fallback when the networked store is unreachable, and as a deterministic
// backend in tests. Data is scoped to the process lifetime and is not shared
// across instances; loss on restart is accepted behavior.
package memory

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/kailas-cloud/usagegov/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

type entry struct {
	fields    map[string]string
	expiresAt time.Time // zero = no expiry
}

// Store is a TTL-aware in-process key-value store.
type Store struct {
	mu   sync.Mutex
	data map[string]*entry
	now  func() time.Time
}

// NewStore creates an empty in-process store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

// WithClock overrides the time source (test-only).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Ping always succeeds; the process-local store has no transport.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// HIncrBy increments a hash field, creating the key/field as needed.
func (s *Store) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveEntry(key)
	if e == nil {
		e = &entry{fields: make(map[string]string)}
		s.data[key] = e
	}

	cur, err := strconv.ParseInt(e.fields[field], 10, 64)
	if err != nil && e.fields[field] != "" {
		return 0, &db.Error{Op: db.OpHIncrBy, Err: err}
	}
	cur += delta
	e.fields[field] = strconv.FormatInt(cur, 10)
	return cur, nil
}

// HGetAll returns a copy of all hash fields. A missing key yields an empty map.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	if e := s.liveEntry(key); e != nil {
		for k, v := range e.fields {
			out[k] = v
		}
	}
	return out, nil
}

// Expire sets a key's TTL. With nx=true the TTL is set only if none exists yet.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.liveEntry(key)
	if e == nil {
		return nil
	}
	if nx && !e.expiresAt.IsZero() {
		return nil
	}
	e.expiresAt = s.now().Add(ttl)
	return nil
}

// Scan returns all live keys matching the glob pattern.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.data {
		if s.liveEntry(k) == nil {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, &db.Error{Op: db.OpScan, Err: err}
		}
		if ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Del removes a key.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// liveEntry returns the entry for key, lazily discarding it when expired.
// Caller must hold s.mu.
func (s *Store) liveEntry(key string) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !e.expiresAt.After(s.now()) {
		delete(s.data, key)
		return nil
	}
	return e
}
