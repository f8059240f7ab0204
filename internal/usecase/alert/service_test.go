package alert

import (
	"context"
	"testing"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// captureSink records emitted alerts for assertions.
type captureSink struct {
	alerts []Alert
}

func (s *captureSink) Emit(_ context.Context, a Alert) {
	s.alerts = append(s.alerts, a)
}

var testThresholds = Thresholds{Warning: 0.70, Critical: 0.90}

func TestCheckUsage_Grades(t *testing.T) {
	tests := []struct {
		name     string
		requests int64
		limit    int64
		want     Severity // "" = no alert
	}{
		{"healthy", 50, 100, ""},
		{"just below warning", 69, 100, ""},
		{"warning boundary", 70, 100, SeverityWarning},
		{"critical boundary", 90, 100, SeverityCritical},
		{"over limit is critical, not an error", 150, 100, SeverityCritical},
		{"uncapped never alerts", 10000, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			e := NewEngine(sink, testThresholds)

			a := e.CheckUsage(context.Background(), domusage.DailyRecord{
				Service:  "search",
				Endpoint: "default",
				Requests: tt.requests,
			}, tt.limit)

			if tt.want == "" {
				if a != nil {
					t.Fatalf("expected no alert, got %+v", a)
				}
				if len(sink.alerts) != 0 {
					t.Fatalf("expected nothing emitted, got %v", sink.alerts)
				}
				return
			}
			if a == nil {
				t.Fatal("expected an alert")
			}
			if a.Severity != tt.want {
				t.Errorf("expected severity %q, got %q", tt.want, a.Severity)
			}
			if len(sink.alerts) != 1 {
				t.Errorf("expected 1 emitted alert, got %d", len(sink.alerts))
			}
		})
	}
}

func TestCheckUsage_PercentCanExceedHundred(t *testing.T) {
	sink := &captureSink{}
	e := NewEngine(sink, testThresholds)

	a := e.CheckUsage(context.Background(), domusage.DailyRecord{
		Service: "search", Endpoint: "default", Requests: 150,
	}, 100)

	if a == nil || a.PercentUsed != 150 {
		t.Fatalf("expected percent used 150, got %+v", a)
	}
}

func TestStateFor(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		within  bool
		want    State
	}{
		{"healthy", 10, true, StateHealthy},
		{"warning", 75, true, StateWarning},
		{"critical", 95, true, StateCritical},
		{"over budget wins", 95, false, StateOverBudget},
		{"over budget at low usage", 10, false, StateOverBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateFor(tt.percent, tt.within, testThresholds); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMultiSink_FansOut(t *testing.T) {
	a := &captureSink{}
	b := &captureSink{}
	m := MultiSink{a, b}

	m.Emit(context.Background(), Alert{Service: "search"})

	if len(a.alerts) != 1 || len(b.alerts) != 1 {
		t.Errorf("expected both sinks to receive the alert, got %d and %d", len(a.alerts), len(b.alerts))
	}
}
