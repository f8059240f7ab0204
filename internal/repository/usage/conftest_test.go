package usage

import (
	"context"
	"time"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hincrByFn func(ctx context.Context, key, field string, delta int64) (int64, error)
	hgetAllFn func(ctx context.Context, key string) (map[string]string, error)
	expireFn  func(ctx context.Context, key string, ttl time.Duration, nx bool) error
	scanFn    func(ctx context.Context, pattern string) ([]string, error)
	delFn     func(ctx context.Context, key string) error
}

func (m *mockStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if m.hincrByFn != nil {
		return m.hincrByFn(ctx, key, field, delta)
	}
	return delta, nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error {
	if m.expireFn != nil {
		return m.expireFn(ctx, key, ttl, nx)
	}
	return nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}
