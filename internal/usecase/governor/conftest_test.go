package governor

import (
	"context"
	"sync"
	"time"

	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	"github.com/kailas-cloud/usagegov/internal/usecase/alert"
)

// mockUsageStore lets each test swap in only the behavior it cares about.
type mockUsageStore struct {
	recordFn  func(ctx context.Context, service, endpoint string, d domusage.Delta) (domusage.DailyRecord, error)
	dailyFn   func(ctx context.Context, service, endpoint string, day time.Time) (*domusage.DailyRecord, error)
	monthlyFn func(ctx context.Context, service string, month time.Time) (*domusage.MonthlyRecord, error)
	historyFn func(ctx context.Context, service, endpoint string, days int) ([]domusage.DailyRecord, error)
	clearFn   func(ctx context.Context) error
}

func (m *mockUsageStore) Record(ctx context.Context, service, endpoint string, d domusage.Delta) (domusage.DailyRecord, error) {
	return m.recordFn(ctx, service, endpoint, d)
}

func (m *mockUsageStore) Daily(ctx context.Context, service, endpoint string, day time.Time) (*domusage.DailyRecord, error) {
	return m.dailyFn(ctx, service, endpoint, day)
}

func (m *mockUsageStore) Monthly(ctx context.Context, service string, month time.Time) (*domusage.MonthlyRecord, error) {
	return m.monthlyFn(ctx, service, month)
}

func (m *mockUsageStore) History(ctx context.Context, service, endpoint string, days int) ([]domusage.DailyRecord, error) {
	return m.historyFn(ctx, service, endpoint, days)
}

func (m *mockUsageStore) Clear(ctx context.Context) error {
	return m.clearFn(ctx)
}

// limitMap resolves limits from a flat "service/endpoint" table.
type limitMap map[string]int64

func (m limitMap) LimitFor(service, endpoint string) int64 {
	if v, ok := m[service+"/"+endpoint]; ok {
		return v
	}
	return m[service]
}

// captureSink records every emitted alert.
type captureSink struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (s *captureSink) Emit(_ context.Context, a alert.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
}

func (s *captureSink) emitted() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]alert.Alert(nil), s.alerts...)
}
