// Package predict estimates when a service will exhaust its configured
// limit by fitting a trend to recent daily usage.
package predict

import (
	"context"
	"math"
	"time"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// DefaultDaysToAnalyze is the trend window when the caller passes none.
const DefaultDaysToAnalyze = 7

// Confidence rates how much the trend can be trusted.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Prediction is the forecast for one service+endpoint. Nil date/days is the
// defined insufficient-data state, not an error.
type Prediction struct {
	Service           string
	Endpoint          string
	DaysUntilLimit    *int
	EstimatedDate     *time.Time
	CurrentUsage      int64
	Limit             int64
	AverageDailyUsage float64
	Confidence        Confidence
}

// HistoryReader provides recent daily records, oldest first.
type HistoryReader interface {
	History(ctx context.Context, service, endpoint string, days int) ([]domusage.DailyRecord, error)
}

// LimitResolver resolves the advisory unit limit for a service+endpoint.
type LimitResolver interface {
	LimitFor(service, endpoint string) int64
}

// Service computes limit-exhaustion forecasts.
type Service struct {
	reader HistoryReader
	limits LimitResolver
	now    func() time.Time
}

// New creates a predictor.
func New(reader HistoryReader, limits LimitResolver) *Service {
	return &Service{reader: reader, limits: limits, now: time.Now}
}

// WithClock overrides the time source (test-only).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// LimitDate forecasts the date service+endpoint hits its limit, analyzing
// the last daysToAnalyze days (default 7). Missing days are absent from the
// trend, not zero-filled.
func (s *Service) LimitDate(ctx context.Context, service, endpoint string, daysToAnalyze int) (Prediction, error) {
	if daysToAnalyze <= 0 {
		daysToAnalyze = DefaultDaysToAnalyze
	}

	p := Prediction{
		Service:    service,
		Endpoint:   endpoint,
		Limit:      s.limits.LimitFor(service, endpoint),
		Confidence: ConfidenceLow,
	}
	if endpoint == "" {
		p.Endpoint = domusage.DefaultEndpoint
	}

	recs, err := s.reader.History(ctx, service, endpoint, daysToAnalyze)
	if err != nil {
		return Prediction{}, err
	}
	if len(recs) == 0 {
		return p, nil
	}

	counts := make([]float64, len(recs))
	var sum float64
	for i, r := range recs {
		counts[i] = float64(r.Requests)
		sum += counts[i]
	}
	mean := sum / float64(len(counts))

	p.CurrentUsage = recs[len(recs)-1].Requests
	p.AverageDailyUsage = mean
	p.Confidence = confidence(counts, mean)

	if mean <= 0 || p.Limit <= 0 {
		return p, nil
	}

	remaining := float64(p.Limit - p.CurrentUsage)
	days := int(math.Floor(remaining / mean))
	if days < 0 {
		days = 0
	}
	date := s.now().UTC().AddDate(0, 0, days)

	p.DaysUntilLimit = &days
	p.EstimatedDate = &date
	return p, nil
}

// confidence rates the trend by the population standard deviation relative
// to the mean: steady usage earns tighter confidence, bursty usage is
// penalized. This is a placeholder heuristic, not a statistical interval;
// the thresholds are kept for behavioral compatibility with earlier
// deployments.
func confidence(counts []float64, mean float64) Confidence {
	var varsum float64
	for _, c := range counts {
		d := c - mean
		varsum += d * d
	}
	stddev := math.Sqrt(varsum / float64(len(counts)))

	switch {
	case stddev < 0.5*mean:
		return ConfidenceHigh
	case stddev < 1.5*mean:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
