package pricing

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// UsageReader provides read access to monthly rollups.
type UsageReader interface {
	Monthly(ctx context.Context, service string, month time.Time) (*domusage.MonthlyRecord, error)
}
