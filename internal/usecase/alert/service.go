package alert

import (
	"context"
	"fmt"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// Thresholds are the percent-of-limit ratios that grade usage.
type Thresholds struct {
	Warning  float64 // e.g. 0.70
	Critical float64 // e.g. 0.90
}

// State is a service's derived governance state. It is recomputed from
// current counters on every check; nothing is persisted, so there is no
// stuck-state risk.
type State string

// Governance states, in escalation order.
const (
	StateHealthy    State = "healthy"
	StateWarning    State = "warning"
	StateCritical   State = "critical"
	StateOverBudget State = "over_budget"
)

// StateFor derives the governance state from the current percent-of-limit
// and budget compliance.
func StateFor(percentUsed float64, withinBudget bool, t Thresholds) State {
	switch {
	case !withinBudget:
		return StateOverBudget
	case percentUsed >= t.Critical*100:
		return StateCritical
	case percentUsed >= t.Warning*100:
		return StateWarning
	default:
		return StateHealthy
	}
}

// Engine evaluates usage records against thresholds and emits alerts.
type Engine struct {
	sink       Sink
	thresholds Thresholds
}

// NewEngine creates an alert engine.
func NewEngine(sink Sink, thresholds Thresholds) *Engine {
	return &Engine{sink: sink, thresholds: thresholds}
}

// Thresholds returns the engine's grading thresholds.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// CheckUsage grades the freshly written record against the limit and emits
// at most one alert. A zero limit means the service is uncapped and never
// alerts. Returns the emitted alert, or nil.
func (e *Engine) CheckUsage(ctx context.Context, rec domusage.DailyRecord, limit int64) *Alert {
	if limit <= 0 {
		return nil
	}
	percent := domusage.PercentUsed(rec.Requests, limit)

	var severity Severity
	switch {
	case percent >= e.thresholds.Critical*100:
		severity = SeverityCritical
	case percent >= e.thresholds.Warning*100:
		severity = SeverityWarning
	default:
		return nil
	}

	a := Alert{
		Severity: severity,
		Service:  rec.Service,
		Endpoint: rec.Endpoint,
		Message: fmt.Sprintf("%s/%s at %.1f%% of its limit (%d of %d units)",
			rec.Service, rec.Endpoint, percent, rec.Requests, limit),
		PercentUsed: percent,
	}
	e.sink.Emit(ctx, a)
	return &a
}
