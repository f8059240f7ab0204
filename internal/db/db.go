package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
// Consumers use narrow sub-interfaces (ISP).
type Store interface {
	Pinger
	CounterStore
	KeyManager
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CounterStore provides hash-based counter operations.
// HIncrBy is the only mutation path for numeric fields and must be atomic
// per key+field; callers derive averages from sub-counter sums on read.
type CounterStore interface {
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// KeyManager provides key enumeration and deletion.
type KeyManager interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
	Del(ctx context.Context, key string) error
}
