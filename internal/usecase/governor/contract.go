package governor

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	"github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

// UsageStore is the persistence surface the governor meters against.
type UsageStore interface {
	Record(ctx context.Context, service, endpoint string, d domusage.Delta) (domusage.DailyRecord, error)
	Daily(ctx context.Context, service, endpoint string, day time.Time) (*domusage.DailyRecord, error)
	Monthly(ctx context.Context, service string, month time.Time) (*domusage.MonthlyRecord, error)
	History(ctx context.Context, service, endpoint string, days int) ([]domusage.DailyRecord, error)
	Clear(ctx context.Context) error
}

// CostCalculator prices usage per service and per month.
type CostCalculator interface {
	ServiceCost(ctx context.Context, service string, month time.Time) (pricing.ServiceCost, error)
	MonthlyCost(ctx context.Context, month time.Time) (pricing.MonthlyReport, error)
	Services() []string
}

// LimitResolver resolves the advisory unit limit for a service+endpoint.
type LimitResolver interface {
	LimitFor(service, endpoint string) int64
}
