package governor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/usagegov/internal/db/memory"
	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	repousage "github.com/kailas-cloud/usagegov/internal/repository/usage"
	"github.com/kailas-cloud/usagegov/internal/usecase/alert"
	"github.com/kailas-cloud/usagegov/internal/usecase/predict"
	"github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

var testNow = time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)

// newTestGovernor wires the full stack over the in-process store.
func newTestGovernor(t *testing.T, limits limitMap) (*Service, *captureSink) {
	t.Helper()

	now := testNow
	clock := func() time.Time { return now }

	mem := memory.NewStore().WithClock(clock)
	repo := repousage.New(mem, domusage.NewKeys(""), 90*24*time.Hour, 365*24*time.Hour).WithClock(clock)

	models := map[string]dompricing.Model{
		"search": dompricing.FreeCapped{FreeUnits: 10000, FlatFeeUSD: 29, OverageChunk: 1000, OverageUSD: 1, PaidTier: "pro"},
		"llm":    dompricing.TokenMetered{Per1KTokensUSD: 0.01, CostTriggerUSD: 100},
	}
	budgets := map[string]float64{"search": 50, "llm": 200}

	costs := pricing.New(repo, models, budgets, 500).WithClock(clock)
	predictor := predict.New(repo, limits).WithClock(clock)

	sink := &captureSink{}
	engine := alert.NewEngine(sink, alert.Thresholds{Warning: 0.70, Critical: 0.90})

	gov := New(repo, costs, predictor, engine, limits, models, zap.NewNop()).WithClock(clock)
	return gov, sink
}

func TestRecordUsageMetersAndAlerts(t *testing.T) {
	gov, sink := newTestGovernor(t, limitMap{"search": 10})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		gov.RecordUsage(ctx, "search", "", RecordOptions{CostUSD: 0.002, DurationMs: 40})
	}
	if got := sink.emitted(); len(got) != 0 {
		t.Fatalf("expected no alerts below warning threshold, got %d", len(got))
	}

	gov.RecordUsage(ctx, "search", "", RecordOptions{})
	alerts := sink.emitted()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert at 70%%, got %d", len(alerts))
	}
	if alerts[0].Severity != alert.SeverityWarning {
		t.Errorf("severity = %q, want warning", alerts[0].Severity)
	}

	rec, err := gov.DailyUsage(ctx, "search", "", time.Time{})
	if err != nil {
		t.Fatalf("DailyUsage: %v", err)
	}
	if rec == nil || rec.Requests != 7 {
		t.Fatalf("daily record = %+v, want 7 requests", rec)
	}
	if rec.CostMillidollars != 12 {
		t.Errorf("cost = %d millidollars, want 12", rec.CostMillidollars)
	}
}

func TestRecordUsageFailOpen(t *testing.T) {
	store := &mockUsageStore{
		recordFn: func(context.Context, string, string, domusage.Delta) (domusage.DailyRecord, error) {
			return domusage.DailyRecord{}, errors.New("store down")
		},
	}
	sink := &captureSink{}
	engine := alert.NewEngine(sink, alert.Thresholds{Warning: 0.70, Critical: 0.90})
	gov := New(store, nil, nil, engine, limitMap{"search": 10}, nil, zap.NewNop())

	gov.RecordUsage(context.Background(), "search", "", RecordOptions{})

	if got := sink.emitted(); len(got) != 0 {
		t.Errorf("failed write must not alert, got %d alerts", len(got))
	}
}

func TestCheckServiceLimit(t *testing.T) {
	gov, _ := newTestGovernor(t, limitMap{"search": 3})
	ctx := context.Background()

	if d := gov.CheckServiceLimit(ctx, "search", ""); !d.Allowed {
		t.Fatalf("fresh service should be allowed, got %+v", d)
	}
	for i := 0; i < 3; i++ {
		gov.RecordUsage(ctx, "search", "", RecordOptions{})
	}

	d := gov.CheckServiceLimit(ctx, "search", "")
	if d.Allowed {
		t.Fatalf("at limit should deny, got %+v", d)
	}
	if !strings.Contains(d.Reason, "3 of 3") {
		t.Errorf("reason = %q, want counts in message", d.Reason)
	}

	if d := gov.CheckServiceLimit(ctx, "llm", ""); !d.Allowed || d.Reason != "" {
		t.Errorf("uncapped service = %+v, want allowed with no reason", d)
	}
}

func TestCheckServiceLimitFailsOpen(t *testing.T) {
	store := &mockUsageStore{
		dailyFn: func(context.Context, string, string, time.Time) (*domusage.DailyRecord, error) {
			return nil, errors.New("store down")
		},
	}
	gov := New(store, nil, nil, alert.NewEngine(&captureSink{}, alert.Thresholds{}), limitMap{"search": 3}, nil, zap.NewNop())

	d := gov.CheckServiceLimit(context.Background(), "search", "")
	if !d.Allowed {
		t.Fatalf("store outage must fail open, got %+v", d)
	}
	if d.Reason == "" {
		t.Error("fail-open decision should carry a reason")
	}
}

func TestRecommendationsNeverEmpty(t *testing.T) {
	gov, _ := newTestGovernor(t, limitMap{})

	recs, err := gov.Recommendations(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Recommendations: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("expected at least the all-healthy recommendation")
	}
}

func TestRecommendationsHonorsMonth(t *testing.T) {
	gov, _ := newTestGovernor(t, limitMap{})
	ctx := context.Background()

	// llm carries a $200 budget; a $250 provider-reported spend this month
	// must surface in the current month's advice only.
	gov.RecordUsage(ctx, "llm", "", RecordOptions{CostUSD: 250})

	current, err := gov.Recommendations(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Recommendations (current): %v", err)
	}
	found := false
	for _, r := range current {
		if strings.Contains(r, "llm is over budget") {
			found = true
		}
	}
	if !found {
		t.Fatalf("current month advice missing budget breach, got %v", current)
	}

	past, err := gov.Recommendations(ctx, testNow.AddDate(0, -2, 0))
	if err != nil {
		t.Fatalf("Recommendations (past): %v", err)
	}
	if len(past) != 1 || !strings.Contains(past[0], "healthy") {
		t.Fatalf("quiet past month should yield the all-healthy message, got %v", past)
	}
}

func TestOverviewStates(t *testing.T) {
	gov, _ := newTestGovernor(t, limitMap{"search": 10})
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		gov.RecordUsage(ctx, "search", "", RecordOptions{})
	}

	rows, err := gov.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 services, got %d", len(rows))
	}

	byName := map[string]ServiceStatus{}
	for _, r := range rows {
		byName[r.Service] = r
	}
	if s := byName["search"]; s.State != alert.StateCritical || s.RequestsToday != 9 {
		t.Errorf("search = %+v, want critical at 9 requests", s)
	}
	if s := byName["llm"]; s.State != alert.StateHealthy {
		t.Errorf("llm = %+v, want healthy", s)
	}
}

func TestClearAllUsageDataPropagatesError(t *testing.T) {
	wantErr := errors.New("scan failed")
	store := &mockUsageStore{clearFn: func(context.Context) error { return wantErr }}
	gov := New(store, nil, nil, alert.NewEngine(&captureSink{}, alert.Thresholds{}), limitMap{}, nil, zap.NewNop())

	if err := gov.ClearAllUsageData(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("ClearAllUsageData err = %v, want %v", err, wantErr)
	}
}

func TestClearThenRead(t *testing.T) {
	gov, _ := newTestGovernor(t, limitMap{})
	ctx := context.Background()

	gov.RecordUsage(ctx, "llm", "chat", RecordOptions{Tokens: 500})
	if err := gov.ClearAllUsageData(ctx); err != nil {
		t.Fatalf("ClearAllUsageData: %v", err)
	}

	rec, err := gov.DailyUsage(ctx, "llm", "chat", time.Time{})
	if err != nil {
		t.Fatalf("DailyUsage: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record after clear, got %+v", rec)
	}
}
