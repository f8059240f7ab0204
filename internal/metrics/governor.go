package metrics

import "github.com/prometheus/client_golang/prometheus"

// Governor Prometheus metrics. AlertsTotal doubles as the external reporting
// sink: operators point alerting rules at the tagged series.
var (
	UsageEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagegov",
			Name:      "usage_events_total",
			Help:      "Total metered calls recorded",
		},
		[]string{"service", "endpoint"},
	)

	RecordFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagegov",
			Name:      "record_failures_total",
			Help:      "Metering operations that failed and were swallowed",
		},
		[]string{"stage"},
	)

	StoreFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagegov",
			Name:      "store_fallback_total",
			Help:      "Store operations served by the in-process fallback",
		},
		[]string{"op"},
	)

	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "usagegov",
			Name:      "alerts_total",
			Help:      "Threshold alerts emitted",
		},
		[]string{"service", "endpoint", "severity"},
	)

	ServicePercentUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "usagegov",
			Name:      "service_percent_used",
			Help:      "Latest percent-of-limit observed per service and endpoint",
		},
		[]string{"service", "endpoint"},
	)
)

var governorMetricsRegistered bool

// RegisterGovernorMetrics registers Prometheus governor metrics. Must be called once from main.
func RegisterGovernorMetrics() {
	if governorMetricsRegistered {
		return
	}
	prometheus.MustRegister(UsageEventsTotal)
	prometheus.MustRegister(RecordFailuresTotal)
	prometheus.MustRegister(StoreFallbackTotal)
	prometheus.MustRegister(AlertsTotal)
	prometheus.MustRegister(ServicePercentUsed)
	governorMetricsRegistered = true
}
