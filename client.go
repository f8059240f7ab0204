package usagegov

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/usagegov/internal/db"
	"github.com/kailas-cloud/usagegov/internal/db/failover"
	"github.com/kailas-cloud/usagegov/internal/db/memory"
	dbRedis "github.com/kailas-cloud/usagegov/internal/db/redis"
	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	"github.com/kailas-cloud/usagegov/internal/metrics"
	repousage "github.com/kailas-cloud/usagegov/internal/repository/usage"
	alertuc "github.com/kailas-cloud/usagegov/internal/usecase/alert"
	governoruc "github.com/kailas-cloud/usagegov/internal/usecase/governor"
	predictuc "github.com/kailas-cloud/usagegov/internal/usecase/predict"
	pricinguc "github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultOpTimeout        = 500 * time.Millisecond
	defaultKeyPrefix        = "usagegov:"
	defaultDailyTTL         = 90 * 24 * time.Hour
	defaultMonthlyTTL       = 365 * 24 * time.Hour
)

// Client is the usagegov SDK entry point.
type Client struct {
	store db.Store
	gov   *governoruc.Service
}

// New creates a usagegov Client and connects to the usage store.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		opTimeout: defaultOpTimeout,
		keyPrefix: defaultKeyPrefix,
		warning:   0.70,
		critical:  0.90,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.services) == 0 {
		return nil, errors.New("usagegov: at least one service required (use WithService)")
	}
	for name, spec := range cfg.services {
		if spec.Pricing == nil {
			return nil, fmt.Errorf("usagegov: service %q has no pricing", name)
		}
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("usagegov: store not ready: %w", err)
	}

	if cfg.fallback {
		store = failover.New(store, memory.NewStore(), cfg.opTimeout, cfg.logger).
			WithFallbackHook(func(op string) {
				metrics.StoreFallbackTotal.WithLabelValues(op).Inc()
			})
	}

	return wireClient(store, cfg), nil
}

func createStore(cfg *clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return memory.NewStore(), nil
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Username: cfg.username,
			Password: cfg.password,
			DB:       cfg.db,
		})
		if err != nil {
			return nil, fmt.Errorf("usagegov: create redis store: %w", err)
		}
		return s, nil
	case "":
		return nil, errors.New("usagegov: store required (use WithRedis or WithMemory)")
	default:
		return nil, fmt.Errorf("usagegov: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Store, cfg *clientConfig) *Client {
	repo := repousage.New(store, domusage.NewKeys(cfg.keyPrefix), defaultDailyTTL, defaultMonthlyTTL)

	models := make(map[string]dompricing.Model, len(cfg.services))
	budgets := make(map[string]float64, len(cfg.services))
	for name, spec := range cfg.services {
		models[name] = spec.Pricing.model()
		budgets[name] = spec.BudgetUSD
	}
	limits := specLimits(cfg.services)

	costs := pricinguc.New(repo, models, budgets, cfg.totalBudgetUSD)
	predictor := predictuc.New(repo, limits)
	engine := alertuc.NewEngine(
		alertuc.MultiSink{alertuc.NewZapSink(cfg.logger), alertuc.NewPromSink()},
		alertuc.Thresholds{Warning: cfg.warning, Critical: cfg.critical},
	)

	gov := governoruc.New(repo, costs, predictor, engine, limits, models, cfg.logger)
	return &Client{store: store, gov: gov}
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// RecordUsage meters one API call to service+endpoint. It never fails: a
// storage outage is logged and counted, not surfaced.
func (c *Client) RecordUsage(ctx context.Context, service, endpoint string, opts ...RecordOption) {
	var rc recordConfig
	for _, o := range opts {
		o(&rc)
	}
	c.gov.RecordUsage(ctx, service, endpoint, governoruc.RecordOptions{
		CostUSD:    rc.costUSD,
		Tokens:     rc.tokens,
		DurationMs: rc.durationMs,
	})
}

// CheckServiceLimit reports whether one more call would stay within the
// service's daily limit. Advisory: the caller decides what to do with it.
func (c *Client) CheckServiceLimit(ctx context.Context, service, endpoint string) Decision {
	d := c.gov.CheckServiceLimit(ctx, service, endpoint)
	return Decision{Allowed: d.Allowed, Reason: d.Reason}
}

// DailyUsage returns the day's counters for service+endpoint. Zero day
// means today. Nil result means no usage was metered.
func (c *Client) DailyUsage(ctx context.Context, service, endpoint string, day time.Time) (*DailyUsage, error) {
	rec, err := c.gov.DailyUsage(ctx, service, endpoint, day)
	if err != nil {
		return nil, err
	}
	return dailyFromInternal(rec), nil
}

// MonthlyUsage returns the service's monthly rollup. Zero month means the
// current month. Nil result means no usage was metered.
func (c *Client) MonthlyUsage(ctx context.Context, service string, month time.Time) (*MonthlyUsage, error) {
	rec, err := c.gov.MonthlyUsage(ctx, service, month)
	if err != nil {
		return nil, err
	}
	return monthlyFromInternal(rec), nil
}

// HistoricalUsage returns up to days daily records ending today, oldest
// first. Days without usage are skipped.
func (c *Client) HistoricalUsage(ctx context.Context, service, endpoint string, days int) ([]DailyUsage, error) {
	recs, err := c.gov.HistoricalUsage(ctx, service, endpoint, days)
	if err != nil {
		return nil, err
	}
	out := make([]DailyUsage, len(recs))
	for i := range recs {
		out[i] = *dailyFromInternal(&recs[i])
	}
	return out, nil
}

// MonthlyCost prices every registered service for the month. Zero month
// means the current month.
func (c *Client) MonthlyCost(ctx context.Context, month time.Time) (CostReport, error) {
	rep, err := c.gov.MonthlyCost(ctx, month)
	if err != nil {
		return CostReport{}, err
	}
	return reportFromInternal(rep), nil
}

// PredictLimitDate forecasts when service+endpoint exhausts its daily
// limit, from the last daysToAnalyze days of usage (default 7).
func (c *Client) PredictLimitDate(ctx context.Context, service, endpoint string, daysToAnalyze int) (Prediction, error) {
	p, err := c.gov.PredictLimitDate(ctx, service, endpoint, daysToAnalyze)
	if err != nil {
		return Prediction{}, err
	}
	return predictionFromInternal(p), nil
}

// Recommendations derives cost-optimization advice from the given month's
// priced usage. A zero month means the current one. The slice is never
// empty.
func (c *Client) Recommendations(ctx context.Context, month time.Time) ([]string, error) {
	return c.gov.Recommendations(ctx, month)
}

// Overview returns the derived governance state of every registered
// service.
func (c *Client) Overview(ctx context.Context) ([]ServiceStatus, error) {
	rows, err := c.gov.Overview(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ServiceStatus, len(rows))
	for i, r := range rows {
		out[i] = statusFromInternal(r)
	}
	return out, nil
}

// ClearAllUsageData deletes every usage record.
func (c *Client) ClearAllUsageData(ctx context.Context) error {
	return c.gov.ClearAllUsageData(ctx)
}
