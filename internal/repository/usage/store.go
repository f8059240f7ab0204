// Package usage persists metering counters. Every numeric field is written
// with the store's atomic HINCRBY, so concurrent calls for the same key never
// lose increments; derived values (average duration, dollar cost) are
// computed from the sub-counter sums on read, never stored.
package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// store is the consumer interface for counter operations (ISP).
type store interface {
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
}

// Store reads and writes daily and monthly usage records.
type Store struct {
	store      store
	keys       domusage.Keys
	dailyTTL   time.Duration
	monthlyTTL time.Duration
	now        func() time.Time
}

// New creates a usage store.
// dailyTTL bounds daily record retention (recommended: 90 days),
// monthlyTTL bounds monthly rollups (recommended: 365 days).
func New(s store, keys domusage.Keys, dailyTTL, monthlyTTL time.Duration) *Store {
	return &Store{
		store:      s,
		keys:       keys,
		dailyTTL:   dailyTTL,
		monthlyTTL: monthlyTTL,
		now:        time.Now,
	}
}

// WithClock overrides the time source (test-only).
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Record applies one call's increments to the day and month records and
// returns the fresh daily record. A failure on the monthly key after the
// daily key succeeded leaves the keys independent, not rolled back.
func (s *Store) Record(ctx context.Context, service, endpoint string, d domusage.Delta) (domusage.DailyRecord, error) {
	now := s.now().UTC()
	dayKey := s.keys.Daily(service, endpoint, now)
	monthKey := s.keys.Monthly(service, now)

	dayRequests, err := s.increment(ctx, dayKey, d, s.dailyTTL)
	if err != nil {
		return domusage.DailyRecord{}, err
	}

	if _, err := s.increment(ctx, monthKey, d, s.monthlyTTL); err != nil {
		return domusage.DailyRecord{}, err
	}
	// First call of the day bumps the month's distinct-active-days counter.
	// dayRequests only grows within a day, so this fires exactly once.
	if dayRequests == 1 {
		if _, err := s.store.HIncrBy(ctx, monthKey, domusage.FieldActiveDays, 1); err != nil {
			return domusage.DailyRecord{}, fmt.Errorf("usage HINCRBY %s: %w", monthKey, err)
		}
	}

	rec, err := s.Daily(ctx, service, endpoint, now)
	if err != nil {
		return domusage.DailyRecord{}, err
	}
	if rec == nil {
		return domusage.DailyRecord{}, fmt.Errorf("usage record %s missing after write", dayKey)
	}
	return *rec, nil
}

// increment applies the delta's non-zero fields plus the request count to key
// and sets the TTL if the key has none yet. Returns the new request count.
func (s *Store) increment(ctx context.Context, key string, d domusage.Delta, ttl time.Duration) (int64, error) {
	requests, err := s.store.HIncrBy(ctx, key, domusage.FieldRequests, 1)
	if err != nil {
		return 0, fmt.Errorf("usage HINCRBY %s: %w", key, err)
	}

	fields := map[string]int64{
		domusage.FieldCostMillidollars: d.CostMillidollars,
		domusage.FieldTokens:           d.Tokens,
		domusage.FieldDurationMsTotal:  d.DurationMs,
	}
	for field, delta := range fields {
		if delta == 0 {
			continue
		}
		if _, err := s.store.HIncrBy(ctx, key, field, delta); err != nil {
			return 0, fmt.Errorf("usage HINCRBY %s %s: %w", key, field, err)
		}
	}

	// NX: repeats must not extend the retention window.
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return 0, fmt.Errorf("usage EXPIRE %s: %w", key, err)
	}
	return requests, nil
}

// Daily returns the record for service+endpoint on the given day, or nil when
// absent. A record that fails to parse is treated as absent; the next write
// recreates its fields.
func (s *Store) Daily(ctx context.Context, service, endpoint string, day time.Time) (*domusage.DailyRecord, error) {
	key := s.keys.Daily(service, endpoint, day)
	m, err := s.store.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("usage HGETALL %s: %w", key, err)
	}
	if len(m) == 0 {
		return nil, nil
	}

	c, ok := parseCounters(m)
	if !ok {
		return nil, nil
	}
	if endpoint == "" {
		endpoint = domusage.DefaultEndpoint
	}
	return &domusage.DailyRecord{
		Service:          service,
		Endpoint:         endpoint,
		Date:             domusage.DayOf(day),
		Requests:         c.requests,
		CostMillidollars: c.cost,
		Tokens:           c.tokens,
		DurationMsTotal:  c.duration,
	}, nil
}

// Monthly returns the rollup for service in the given month, or nil when absent.
func (s *Store) Monthly(ctx context.Context, service string, month time.Time) (*domusage.MonthlyRecord, error) {
	key := s.keys.Monthly(service, month)
	m, err := s.store.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("usage HGETALL %s: %w", key, err)
	}
	if len(m) == 0 {
		return nil, nil
	}

	c, ok := parseCounters(m)
	if !ok {
		return nil, nil
	}
	return &domusage.MonthlyRecord{
		Service:          service,
		Month:            domusage.MonthOf(month),
		Requests:         c.requests,
		CostMillidollars: c.cost,
		Tokens:           c.tokens,
		DurationMsTotal:  c.duration,
		ActiveDays:       c.activeDays,
	}, nil
}

// History returns the daily records for the last days calendar days, oldest
// first. Days without activity are simply absent, not zero-filled.
func (s *Store) History(ctx context.Context, service, endpoint string, days int) ([]domusage.DailyRecord, error) {
	now := s.now().UTC()
	var out []domusage.DailyRecord

	for i := days - 1; i >= 0; i-- {
		rec, err := s.Daily(ctx, service, endpoint, now.AddDate(0, 0, -i))
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Clear deletes every governor key. Unlike the metering path this propagates
// store errors: it is an explicit operator action.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.store.Scan(ctx, s.keys.AllPattern())
	if err != nil {
		return fmt.Errorf("usage SCAN: %w", err)
	}
	for _, key := range keys {
		if err := s.store.Del(ctx, key); err != nil {
			return fmt.Errorf("usage DEL %s: %w", key, err)
		}
	}
	return nil
}

type counters struct {
	requests   int64
	cost       int64
	tokens     int64
	duration   int64
	activeDays int64
}

// parseCounters decodes hash fields. Missing fields default to zero; a
// malformed field marks the whole record unusable.
func parseCounters(m map[string]string) (counters, bool) {
	var c counters
	for field, dst := range map[string]*int64{
		domusage.FieldRequests:         &c.requests,
		domusage.FieldCostMillidollars: &c.cost,
		domusage.FieldTokens:           &c.tokens,
		domusage.FieldDurationMsTotal:  &c.duration,
		domusage.FieldActiveDays:       &c.activeDays,
	} {
		raw, ok := m[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return counters{}, false
		}
		*dst = v
	}
	return c, true
}
