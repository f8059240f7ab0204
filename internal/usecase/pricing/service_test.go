package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// --- Mock ---

type mockReader struct {
	records map[string]*domusage.MonthlyRecord
	err     error
}

func (m *mockReader) Monthly(_ context.Context, service string, _ time.Time) (*domusage.MonthlyRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.records[service], nil
}

func testModels() map[string]dompricing.Model {
	return map[string]dompricing.Model{
		"search": dompricing.FreeCapped{
			FreeUnits: 100, FlatFeeUSD: 29, OverageChunk: 1000, OverageUSD: 1, PaidTier: "pro",
		},
		"llm": dompricing.TokenMetered{
			Per1KTokensUSD: 0.002, PerRequestUSD: 0.01,
		},
		"errors": dompricing.EventTiered{
			FreeEvents: 5000, TeamEvents: 50000, TeamPriceUSD: 26,
		},
	}
}

// --- Tests ---

func TestServiceCost_FreeCappedOverage(t *testing.T) {
	reader := &mockReader{records: map[string]*domusage.MonthlyRecord{
		"search": {Service: "search", Requests: 101},
	}}
	svc := New(reader, testModels(), map[string]float64{"search": 50}, 100)

	sc, err := svc.ServiceCost(context.Background(), "search", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Breakdown.Tier != "pro" {
		t.Errorf("expected tier pro, got %q", sc.Breakdown.Tier)
	}
	if sc.Breakdown.USD != 30 {
		t.Errorf("expected 30, got %v", sc.Breakdown.USD)
	}
	if !sc.WithinBudget {
		t.Error("30 under a 50 budget should be within budget")
	}
}

func TestServiceCost_UnknownService(t *testing.T) {
	svc := New(&mockReader{}, testModels(), nil, 0)

	_, err := svc.ServiceCost(context.Background(), "cdn", time.Now())
	if !errors.Is(err, ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got %v", err)
	}
}

func TestServiceCost_NoUsageIsFree(t *testing.T) {
	svc := New(&mockReader{}, testModels(), nil, 0)

	sc, err := svc.ServiceCost(context.Background(), "search", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Breakdown.USD != 0 {
		t.Errorf("expected 0 cost with no usage, got %v", sc.Breakdown.USD)
	}
	if !sc.WithinBudget {
		t.Error("no usage must be within budget")
	}
}

func TestServiceCost_BudgetComplianceMonotonic(t *testing.T) {
	// Raising cost for a fixed budget must never flip withinBudget
	// from false back to true.
	models := testModels()
	budgets := map[string]float64{"llm": 1}
	within := true

	for _, tokens := range []int64{100000, 500000, 1000000, 5000000} {
		reader := &mockReader{records: map[string]*domusage.MonthlyRecord{
			"llm": {Service: "llm", Requests: 10, Tokens: tokens},
		}}
		svc := New(reader, models, budgets, 0)

		sc, err := svc.ServiceCost(context.Background(), "llm", time.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sc.WithinBudget && !within {
			t.Fatalf("withinBudget flipped back to true at %d tokens", tokens)
		}
		within = sc.WithinBudget
	}
	if within {
		t.Error("expected the final cost to exceed the 1 USD budget")
	}
}

func TestServiceCost_UnbilledOverageIsOutOfBudget(t *testing.T) {
	reader := &mockReader{records: map[string]*domusage.MonthlyRecord{
		"errors": {Service: "errors", Requests: 60000},
	}}
	// 26 fits the 100 budget, but the overage is unpriced.
	svc := New(reader, testModels(), map[string]float64{"errors": 100}, 0)

	sc, err := svc.ServiceCost(context.Background(), "errors", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.WithinBudget {
		t.Error("unbilled overage must not report within budget")
	}
}

func TestMonthlyCost_SumsAllServices(t *testing.T) {
	reader := &mockReader{records: map[string]*domusage.MonthlyRecord{
		"search": {Service: "search", Requests: 101},     // 30
		"llm":    {Service: "llm", Tokens: 1000000},      // 2
		"errors": {Service: "errors", Requests: 10000},   // 26
	}}
	svc := New(reader, testModels(), nil, 100)

	month := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rep, err := svc.MonthlyCost(context.Background(), month)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rep.Services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(rep.Services))
	}
	// Sorted by name: errors, llm, search.
	if rep.Services[0].Service != "errors" || rep.Services[2].Service != "search" {
		t.Errorf("expected sorted services, got %v", rep.Services)
	}
	if rep.TotalUSD != 58 {
		t.Errorf("expected total 58, got %v", rep.TotalUSD)
	}
	if rep.PercentUsed != 58 {
		t.Errorf("expected 58%% of budget, got %v", rep.PercentUsed)
	}
}

func TestMonthlyCost_ProjectsCurrentMonthBurnRate(t *testing.T) {
	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC) // day 10 of 30
	reader := &mockReader{records: map[string]*domusage.MonthlyRecord{
		"llm": {Service: "llm", Tokens: 5000000}, // 10 USD
	}}
	svc := New(reader, map[string]dompricing.Model{
		"llm": dompricing.TokenMetered{Per1KTokensUSD: 0.002},
	}, nil, 0).WithClock(func() time.Time { return now })

	rep, err := svc.MonthlyCost(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.ProjectedUSD != 30 {
		t.Errorf("expected projection 30, got %v", rep.ProjectedUSD)
	}
}

func TestMonthlyCost_PastMonthProjectsActualTotal(t *testing.T) {
	now := time.Date(2026, 9, 10, 12, 0, 0, 0, time.UTC)
	reader := &mockReader{records: map[string]*domusage.MonthlyRecord{
		"llm": {Service: "llm", Tokens: 5000000},
	}}
	svc := New(reader, map[string]dompricing.Model{
		"llm": dompricing.TokenMetered{Per1KTokensUSD: 0.002},
	}, nil, 0).WithClock(func() time.Time { return now })

	july := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	rep, err := svc.MonthlyCost(context.Background(), july)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.ProjectedUSD != rep.TotalUSD {
		t.Errorf("past month should project its actual total, got %v vs %v", rep.ProjectedUSD, rep.TotalUSD)
	}
}
