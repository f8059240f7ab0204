// Package usage defines the metering records the governor persists: one
// record per service+endpoint+day and one monthly rollup per service.
// Numeric fields are stored as independent integer sub-counters so the store
// can increment them atomically; averages and dollar values are derived on
// read, never persisted.
package usage

import "time"

// DefaultEndpoint is used when a caller does not subdivide a service.
const DefaultEndpoint = "default"

// Hash field names shared by daily and monthly records.
const (
	FieldRequests         = "requests"
	FieldCostMillidollars = "cost_millidollars"
	FieldTokens           = "tokens"
	FieldDurationMsTotal  = "duration_ms_total"
	FieldActiveDays       = "active_days"
)

// DailyRecord is one service+endpoint's activity for one calendar day.
type DailyRecord struct {
	Service          string
	Endpoint         string
	Date             string // YYYY-MM-DD
	Requests         int64
	CostMillidollars int64
	Tokens           int64
	DurationMsTotal  int64
}

// CostUSD returns the accumulated provider-reported cost in dollars.
func (r DailyRecord) CostUSD() float64 {
	return float64(r.CostMillidollars) / 1000
}

// AvgDurationMs returns the mean call duration, derived from the total.
func (r DailyRecord) AvgDurationMs() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.DurationMsTotal) / float64(r.Requests)
}

// MonthlyRecord is the rollup of a service's daily records for one month.
type MonthlyRecord struct {
	Service          string
	Month            string // YYYY-MM
	Requests         int64
	CostMillidollars int64
	Tokens           int64
	DurationMsTotal  int64
	ActiveDays       int64
}

// CostUSD returns the accumulated provider-reported cost in dollars.
func (r MonthlyRecord) CostUSD() float64 {
	return float64(r.CostMillidollars) / 1000
}

// AvgDurationMs returns the mean call duration, derived from the total.
func (r MonthlyRecord) AvgDurationMs() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.DurationMsTotal) / float64(r.Requests)
}

// Delta is the per-call increment applied to both records.
type Delta struct {
	CostMillidollars int64
	Tokens           int64
	DurationMs       int64
}

// PercentUsed is count/limit*100. Values over 100 are valid: over-limit is an
// alertable state, not an error. A zero limit yields 0.
func PercentUsed(count, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return float64(count) / float64(limit) * 100
}

// DayOf formats t as a daily record date.
func DayOf(t time.Time) string { return t.UTC().Format("2006-01-02") }

// MonthOf formats t as a monthly record month.
func MonthOf(t time.Time) string { return t.UTC().Format("2006-01") }
