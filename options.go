package usagegov

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "redis" or "memory"
	addrs    []string
	username string
	password string
	db       int

	fallback  bool
	opTimeout time.Duration
	keyPrefix string

	totalBudgetUSD float64
	warning        float64
	critical       float64
	services       map[string]ServiceSpec

	logger *zap.Logger
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMemory keeps all counters in process memory. Useful for tests and
// single-instance deployments; counters do not survive a restart.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
	})
}

// WithInProcessFallback wraps the store so that a primary outage diverts
// counters to an in-process standby instead of dropping them.
func WithInProcessFallback() Option {
	return optionFunc(func(c *clientConfig) {
		c.fallback = true
	})
}

// WithOpTimeout bounds each store operation. Default: 500ms.
func WithOpTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.opTimeout = d
	})
}

// WithKeyPrefix namespaces all keys. Default: "usagegov:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithService registers a governed service.
func WithService(name string, spec ServiceSpec) Option {
	return optionFunc(func(c *clientConfig) {
		if c.services == nil {
			c.services = make(map[string]ServiceSpec)
		}
		c.services[name] = spec
	})
}

// WithTotalBudget sets the advisory monthly dollar cap across all services.
// Zero means uncapped.
func WithTotalBudget(usd float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.totalBudgetUSD = usd
	})
}

// WithThresholds overrides the alerting thresholds as fractions of the
// limit. Defaults: warning 0.70, critical 0.90.
func WithThresholds(warning, critical float64) Option {
	return optionFunc(func(c *clientConfig) {
		c.warning = warning
		c.critical = critical
	})
}

// WithLogger enables structured logging for governor operations.
// Default: no logging.
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// RecordOption attaches optional measurements to one metered call.
type RecordOption func(*recordConfig)

type recordConfig struct {
	costUSD    float64
	tokens     int64
	durationMs int64
}

// WithCost reports the provider-billed dollar cost of the call.
func WithCost(usd float64) RecordOption {
	return func(c *recordConfig) {
		c.costUSD = usd
	}
}

// WithTokens reports tokens consumed by the call.
func WithTokens(n int64) RecordOption {
	return func(c *recordConfig) {
		c.tokens = n
	}
}

// WithDuration reports the wall time of the upstream call.
func WithDuration(d time.Duration) RecordOption {
	return func(c *recordConfig) {
		c.durationMs = d.Milliseconds()
	}
}
