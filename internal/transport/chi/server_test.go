package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/usagegov/internal/db/memory"
	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	repousage "github.com/kailas-cloud/usagegov/internal/repository/usage"
	alertuc "github.com/kailas-cloud/usagegov/internal/usecase/alert"
	governoruc "github.com/kailas-cloud/usagegov/internal/usecase/governor"
	healthuc "github.com/kailas-cloud/usagegov/internal/usecase/health"
	predictuc "github.com/kailas-cloud/usagegov/internal/usecase/predict"
	pricinguc "github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

var serverNow = time.Date(2026, time.September, 10, 12, 0, 0, 0, time.UTC)

type staticLimits map[string]int64

func (m staticLimits) LimitFor(service, _ string) int64 { return m[service] }

type staticPinger struct{ err error }

func (p *staticPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	governor *governoruc.Service
	router   *gochi.Mux
	dbErr    *staticPinger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := func() time.Time { return serverNow }
	mem := memory.NewStore().WithClock(clock)
	repo := repousage.New(mem, domusage.NewKeys(""), 90*24*time.Hour, 365*24*time.Hour).WithClock(clock)

	limits := staticLimits{"search": 1000}
	models := map[string]dompricing.Model{
		"search": dompricing.FreeCapped{FreeUnits: 10000, FlatFeeUSD: 29, OverageChunk: 1000, OverageUSD: 1, PaidTier: "pro"},
		"llm":    dompricing.TokenMetered{Per1KTokensUSD: 0.01, CostTriggerUSD: 100},
	}
	budgets := map[string]float64{"search": 50}

	costs := pricinguc.New(repo, models, budgets, 500).WithClock(clock)
	predictor := predictuc.New(repo, limits).WithClock(clock)
	engine := alertuc.NewEngine(alertuc.NewZapSink(zap.NewNop()), alertuc.Thresholds{Warning: 0.70, Critical: 0.90})

	gov := governoruc.New(repo, costs, predictor, engine, limits, models, zap.NewNop()).WithClock(clock)

	pinger := &staticPinger{}
	srv := NewServer(gov, healthuc.New(pinger, nil), zap.NewNop())

	r := gochi.NewRouter()
	srv.Register(r)

	return &testEnv{governor: gov, router: r, dbErr: pinger}
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, http.NoBody)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestListServices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		env.governor.RecordUsage(ctx, "search", "", governoruc.RecordOptions{})
	}

	rr := env.get(t, "/v1/services")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	items := decode[[]serviceStatusResponse](t, rr)
	if len(items) != 2 {
		t.Fatalf("expected 2 services, got %d", len(items))
	}
	byName := map[string]serviceStatusResponse{}
	for _, it := range items {
		byName[it.Service] = it
	}
	if s := byName["search"]; s.RequestsToday != 5 || s.State != "healthy" {
		t.Errorf("search = %+v, want 5 requests healthy", s)
	}
}

func TestGetUsage(t *testing.T) {
	env := newTestEnv(t)
	env.governor.RecordUsage(context.Background(), "llm", "chat", governoruc.RecordOptions{CostUSD: 0.5, Tokens: 1200})

	rr := env.get(t, "/v1/usage/llm?endpoint=chat")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	resp := decode[usageResponse](t, rr)
	if resp.Daily == nil || resp.Daily.Requests != 1 || resp.Daily.Tokens != 1200 {
		t.Fatalf("daily = %+v, want 1 request with 1200 tokens", resp.Daily)
	}
	if resp.Daily.CostUSD != 0.5 {
		t.Errorf("daily cost = %v, want 0.5", resp.Daily.CostUSD)
	}
	if resp.Monthly == nil || resp.Monthly.ActiveDays != 1 {
		t.Fatalf("monthly = %+v, want 1 active day", resp.Monthly)
	}
}

func TestGetUsageNoData(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/v1/usage/search")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[usageResponse](t, rr)
	if resp.Daily != nil || resp.Monthly != nil {
		t.Errorf("expected null daily and monthly, got %+v / %+v", resp.Daily, resp.Monthly)
	}
}

func TestGetUsageUnknownService(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/v1/usage/nope")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	resp := decode[errorResponse](t, rr)
	if resp.Code != codeNotFound {
		t.Errorf("code = %q, want %q", resp.Code, codeNotFound)
	}
}

func TestGetUsageBadDate(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/v1/usage/search?date=yesterday")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)
	env.governor.RecordUsage(context.Background(), "search", "", governoruc.RecordOptions{})
	env.governor.RecordUsage(context.Background(), "search", "", governoruc.RecordOptions{})

	rr := env.get(t, "/v1/usage/search/history?days=3")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	items := decode[[]dailyUsageResponse](t, rr)
	if len(items) != 1 || items[0].Requests != 2 {
		t.Fatalf("history = %+v, want one record with 2 requests", items)
	}
}

func TestGetHistoryBadDays(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"days=0", "days=9999", "days=soon"} {
		rr := env.get(t, "/v1/usage/search/history?"+q)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rr.Code)
		}
	}
}

func TestGetCosts(t *testing.T) {
	env := newTestEnv(t)
	env.governor.RecordUsage(context.Background(), "llm", "", governoruc.RecordOptions{Tokens: 2000})

	rr := env.get(t, "/v1/costs")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[monthlyCostResponse](t, rr)
	if resp.Month != "2026-09" {
		t.Errorf("month = %q, want 2026-09", resp.Month)
	}
	if len(resp.Services) != 2 {
		t.Fatalf("expected 2 priced services, got %d", len(resp.Services))
	}
	if resp.TotalUSD != 0.02 {
		t.Errorf("total = %v, want 0.02 (2000 tokens at $0.01/1K)", resp.TotalUSD)
	}
}

func TestGetCostsBadMonth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/v1/costs?month=Q3")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestGetPrediction(t *testing.T) {
	env := newTestEnv(t)
	env.governor.RecordUsage(context.Background(), "search", "", governoruc.RecordOptions{})

	rr := env.get(t, "/v1/predictions/search")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[predictionResponse](t, rr)
	if resp.Service != "search" || resp.Limit != 1000 {
		t.Errorf("prediction = %+v, want search with limit 1000", resp)
	}
	if resp.DaysUntilLimit == nil || resp.EstimatedDate == nil {
		t.Fatal("expected a forecast from one day of history")
	}
}

func TestGetRecommendations(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/v1/recommendations")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[recommendationsResponse](t, rr)
	if len(resp.Recommendations) == 0 {
		t.Fatal("recommendations must never be empty")
	}

	rr = env.get(t, "/v1/recommendations?month=2026-07")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for explicit month", rr.Code)
	}
	resp = decode[recommendationsResponse](t, rr)
	if len(resp.Recommendations) == 0 {
		t.Fatal("past-month recommendations must never be empty")
	}
}

func TestGetRecommendationsBadMonth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/v1/recommendations?month=July")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestClearUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.governor.RecordUsage(ctx, "search", "", governoruc.RecordOptions{})

	req := httptest.NewRequest("DELETE", "/v1/usage", http.NoBody)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}

	after := env.get(t, "/v1/usage/search")
	resp := decode[usageResponse](t, after)
	if resp.Daily != nil {
		t.Errorf("expected no usage after clear, got %+v", resp.Daily)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	resp := decode[healthResponse](t, rr)
	if resp.Status != "ok" || resp.Checks["database"] != "ok" {
		t.Errorf("health = %+v, want ok", resp)
	}
}

func TestHealthzDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.dbErr.err = errors.New("conn refused")

	rr := env.get(t, "/healthz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
	resp := decode[healthResponse](t, rr)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}
