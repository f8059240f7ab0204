// Package alert compares live usage and cost against thresholds and budgets
// and emits advisory warnings and optimization suggestions. Nothing here
// blocks a caller; alerts inform, they do not enforce.
package alert

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/usagegov/internal/metrics"
)

// Severity grades an alert.
type Severity string

// Alert severities.
const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one threshold crossing for a service+endpoint.
type Alert struct {
	Severity    Severity
	Service     string
	Endpoint    string
	Message     string
	PercentUsed float64
}

// Sink receives emitted alerts. Implementations must not block the caller's
// request path.
type Sink interface {
	Emit(ctx context.Context, a Alert)
}

// ZapSink writes alerts as structured log records.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a log-backed sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Emit logs the alert, tagged for external alerting rules.
func (s *ZapSink) Emit(_ context.Context, a Alert) {
	fields := []zap.Field{
		zap.String("component", "usage-governor"),
		zap.String("service", a.Service),
		zap.String("endpoint", a.Endpoint),
		zap.String("alert_type", string(a.Severity)),
		zap.Float64("percent_used", a.PercentUsed),
	}
	if a.Severity == SeverityCritical {
		s.logger.Error(a.Message, fields...)
		return
	}
	s.logger.Warn(a.Message, fields...)
}

// PromSink exports alerts as tagged Prometheus series; operators attach
// their own alerting rules to usagegov_alerts_total.
type PromSink struct{}

// NewPromSink creates a metrics-backed sink.
func NewPromSink() *PromSink { return &PromSink{} }

// Emit increments the tagged alert counter.
func (s *PromSink) Emit(_ context.Context, a Alert) {
	metrics.AlertsTotal.WithLabelValues(a.Service, a.Endpoint, string(a.Severity)).Inc()
}

// MultiSink fans an alert out to several sinks.
type MultiSink []Sink

// Emit delivers the alert to every sink in order.
func (m MultiSink) Emit(ctx context.Context, a Alert) {
	for _, s := range m {
		s.Emit(ctx, a)
	}
}
