package governor

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	"github.com/kailas-cloud/usagegov/internal/metrics"
	"github.com/kailas-cloud/usagegov/internal/usecase/alert"
	"github.com/kailas-cloud/usagegov/internal/usecase/predict"
	"github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

// RecordOptions carries the optional measurements attached to one API call.
// The call count itself is always incremented; everything here is additive
// detail.
type RecordOptions struct {
	// CostUSD is the provider-reported dollar cost of this call, when the
	// provider exposes one. It takes precedence over token estimation at
	// pricing time.
	CostUSD float64
	// Tokens consumed by this call (LLM-style providers).
	Tokens int64
	// DurationMs is the wall time of the upstream call.
	DurationMs int64
}

// Decision is the advisory answer to a pre-call limit check. The governor
// observes and advises; it never blocks, so Allowed is false only when the
// configured limit is already reached.
type Decision struct {
	Allowed bool
	Reason  string
}

// ServiceStatus is the dashboard row for one governed service.
type ServiceStatus struct {
	Service       string
	State         alert.State
	RequestsToday int64
	Limit         int64
	PercentUsed   float64
	MonthUSD      float64
	BudgetUSD     float64
	WithinBudget  bool
}

// Service is the caller-facing facade: metering, cost, forecasts and
// recommendations behind one API.
type Service struct {
	store   UsageStore
	costs   CostCalculator
	predict *predict.Service
	alerts  *alert.Engine
	limits  LimitResolver
	models  map[string]dompricing.Model
	logger  *zap.Logger
	now     func() time.Time
}

// New creates the governor facade.
func New(
	store UsageStore,
	costs CostCalculator,
	predictor *predict.Service,
	alerts *alert.Engine,
	limits LimitResolver,
	models map[string]dompricing.Model,
	logger *zap.Logger,
) *Service {
	return &Service{
		store:   store,
		costs:   costs,
		predict: predictor,
		alerts:  alerts,
		limits:  limits,
		models:  models,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordUsage meters one API call. It is fail-open: a storage failure is
// logged and counted but never surfaced, so instrumentation can never break
// the caller's request path.
func (s *Service) RecordUsage(ctx context.Context, service, endpoint string, opts RecordOptions) {
	if endpoint == "" {
		endpoint = domusage.DefaultEndpoint
	}
	delta := domusage.Delta{
		CostMillidollars: int64(math.Round(opts.CostUSD * 1000)),
		Tokens:           opts.Tokens,
		DurationMs:       opts.DurationMs,
	}

	rec, err := s.store.Record(ctx, service, endpoint, delta)
	if err != nil {
		metrics.RecordFailuresTotal.WithLabelValues("write").Inc()
		s.logger.Error("Failed to record usage",
			zap.String("service", service),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return
	}
	metrics.UsageEventsTotal.WithLabelValues(service, endpoint).Inc()

	limit := s.limits.LimitFor(service, endpoint)
	if limit > 0 {
		metrics.ServicePercentUsed.WithLabelValues(service, endpoint).
			Set(domusage.PercentUsed(rec.Requests, limit))
	}
	s.alerts.CheckUsage(ctx, rec, limit)
}

// CheckServiceLimit is the advisory pre-call check. Storage failures fail
// open: governance outages must not turn into provider outages.
func (s *Service) CheckServiceLimit(ctx context.Context, service, endpoint string) Decision {
	if endpoint == "" {
		endpoint = domusage.DefaultEndpoint
	}
	limit := s.limits.LimitFor(service, endpoint)
	if limit <= 0 {
		return Decision{Allowed: true}
	}

	rec, err := s.store.Daily(ctx, service, endpoint, s.now())
	if err != nil {
		metrics.RecordFailuresTotal.WithLabelValues("check").Inc()
		s.logger.Warn("Limit check unavailable, allowing call",
			zap.String("service", service),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return Decision{Allowed: true, Reason: "usage store unavailable"}
	}

	var count int64
	if rec != nil {
		count = rec.Requests
	}
	if count >= limit {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("daily limit reached: %d of %d units", count, limit),
		}
	}
	return Decision{Allowed: true}
}

// DailyUsage returns today's record for a service+endpoint, or the record
// for the given day when day is non-zero. Nil means no usage was metered.
func (s *Service) DailyUsage(ctx context.Context, service, endpoint string, day time.Time) (*domusage.DailyRecord, error) {
	if endpoint == "" {
		endpoint = domusage.DefaultEndpoint
	}
	if day.IsZero() {
		day = s.now()
	}
	return s.store.Daily(ctx, service, endpoint, day)
}

// MonthlyUsage returns the service's rollup for the given month, defaulting
// to the current month. Nil means no usage was metered.
func (s *Service) MonthlyUsage(ctx context.Context, service string, month time.Time) (*domusage.MonthlyRecord, error) {
	if month.IsZero() {
		month = s.now()
	}
	return s.store.Monthly(ctx, service, month)
}

// HistoricalUsage returns up to days daily records ending today, oldest
// first. Days without usage are skipped.
func (s *Service) HistoricalUsage(ctx context.Context, service, endpoint string, days int) ([]domusage.DailyRecord, error) {
	if endpoint == "" {
		endpoint = domusage.DefaultEndpoint
	}
	return s.store.History(ctx, service, endpoint, days)
}

// MonthlyCost prices every governed service for the given month, defaulting
// to the current month.
func (s *Service) MonthlyCost(ctx context.Context, month time.Time) (pricing.MonthlyReport, error) {
	if month.IsZero() {
		month = s.now()
	}
	return s.costs.MonthlyCost(ctx, month)
}

// PredictLimitDate forecasts when the service+endpoint will exhaust its
// daily limit, based on the recent usage trend.
func (s *Service) PredictLimitDate(ctx context.Context, service, endpoint string, daysToAnalyze int) (predict.Prediction, error) {
	return s.predict.LimitDate(ctx, service, endpoint, daysToAnalyze)
}

// Recommendations prices the given month and derives cost-optimization
// advice from it. A zero month means the current one. The slice is never
// empty.
func (s *Service) Recommendations(ctx context.Context, month time.Time) ([]string, error) {
	if month.IsZero() {
		month = s.now()
	}
	rep, err := s.costs.MonthlyCost(ctx, month)
	if err != nil {
		return nil, err
	}
	return s.alerts.Recommendations(rep, s.models), nil
}

// Overview derives the current governance state of every configured service
// for the dashboard. State combines today's limit pressure with this month's
// budget compliance.
func (s *Service) Overview(ctx context.Context) ([]ServiceStatus, error) {
	now := s.now()
	rep, err := s.costs.MonthlyCost(ctx, now)
	if err != nil {
		return nil, err
	}

	out := make([]ServiceStatus, 0, len(rep.Services))
	for _, sc := range rep.Services {
		limit := s.limits.LimitFor(sc.Service, domusage.DefaultEndpoint)
		var count int64
		if rec, err := s.store.Daily(ctx, sc.Service, domusage.DefaultEndpoint, now); err != nil {
			return nil, err
		} else if rec != nil {
			count = rec.Requests
		}
		percent := domusage.PercentUsed(count, limit)
		out = append(out, ServiceStatus{
			Service:       sc.Service,
			State:         alert.StateFor(percent, sc.WithinBudget, s.alerts.Thresholds()),
			RequestsToday: count,
			Limit:         limit,
			PercentUsed:   percent,
			MonthUSD:      sc.Breakdown.USD,
			BudgetUSD:     sc.BudgetUSD,
			WithinBudget:  sc.WithinBudget,
		})
	}
	return out, nil
}

// Services lists the governed service names, sorted.
func (s *Service) Services() []string {
	return s.costs.Services()
}

// ClearAllUsageData deletes every usage record. Unlike the metering path
// this propagates errors: an admin wipe must not silently half-complete.
func (s *Service) ClearAllUsageData(ctx context.Context) error {
	return s.store.Clear(ctx)
}
