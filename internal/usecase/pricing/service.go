package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
)

// ErrUnknownService signals a service with no registered pricing model.
var ErrUnknownService = errors.New("unknown service")

// ServiceCost is the priced month of one service.
type ServiceCost struct {
	Service      string
	Month        string
	Usage        dompricing.Usage
	Breakdown    dompricing.Breakdown
	BudgetUSD    float64
	WithinBudget bool
}

// MonthlyReport aggregates every configured service's cost for one month.
type MonthlyReport struct {
	Month          string
	Services       []ServiceCost
	TotalUSD       float64
	TotalBudgetUSD float64
	PercentUsed    float64
	// ProjectedUSD is the month-end spend estimate from the current burn
	// rate; for past months it equals TotalUSD.
	ProjectedUSD float64
}

// Service converts raw usage into estimated cost under each service's
// registered pricing model.
type Service struct {
	reader         UsageReader
	models         map[string]dompricing.Model
	budgets        map[string]float64
	totalBudgetUSD float64
	now            func() time.Time
}

// New creates a pricing service. budgets maps service name to its advisory
// dollar cap; a missing or zero cap means uncapped.
func New(reader UsageReader, models map[string]dompricing.Model, budgets map[string]float64, totalBudgetUSD float64) *Service {
	return &Service{
		reader:         reader,
		models:         models,
		budgets:        budgets,
		totalBudgetUSD: totalBudgetUSD,
		now:            time.Now,
	}
}

// WithClock overrides the time source (test-only).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Services returns the configured service names, sorted.
func (s *Service) Services() []string {
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServiceCost prices one service's usage for the given month.
func (s *Service) ServiceCost(ctx context.Context, service string, month time.Time) (ServiceCost, error) {
	model, ok := s.models[service]
	if !ok {
		return ServiceCost{}, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	rec, err := s.reader.Monthly(ctx, service, month)
	if err != nil {
		return ServiceCost{}, err
	}

	var u dompricing.Usage
	if rec != nil {
		u = dompricing.Usage{
			Requests:      rec.Requests,
			Tokens:        rec.Tokens,
			ActualCostUSD: rec.CostUSD(),
			ActiveDays:    rec.ActiveDays,
		}
	}

	b := model.Cost(u)
	budget := s.budgets[service]

	// A zero budget means uncapped; an unbilled overage is never in budget.
	within := !b.Unbilled && (budget <= 0 || b.USD <= budget)

	return ServiceCost{
		Service:      service,
		Month:        domusage.MonthOf(month),
		Usage:        u,
		Breakdown:    b,
		BudgetUSD:    budget,
		WithinBudget: within,
	}, nil
}

// MonthlyCost prices every configured service and sums the estimates.
func (s *Service) MonthlyCost(ctx context.Context, month time.Time) (MonthlyReport, error) {
	rep := MonthlyReport{
		Month:          domusage.MonthOf(month),
		TotalBudgetUSD: s.totalBudgetUSD,
	}

	for _, name := range s.Services() {
		sc, err := s.ServiceCost(ctx, name, month)
		if err != nil {
			return MonthlyReport{}, err
		}
		rep.Services = append(rep.Services, sc)
		rep.TotalUSD += sc.Breakdown.USD
	}

	if rep.TotalBudgetUSD > 0 {
		rep.PercentUsed = rep.TotalUSD / rep.TotalBudgetUSD * 100
	}
	rep.ProjectedUSD = s.project(rep.TotalUSD, month)
	return rep, nil
}

// project estimates month-end spend from the burn rate so far. Past months
// are already complete and project to their actual total.
func (s *Service) project(totalUSD float64, month time.Time) float64 {
	now := s.now().UTC()
	if domusage.MonthOf(month) != domusage.MonthOf(now) {
		return totalUSD
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := monthStart.AddDate(0, 1, 0).Sub(monthStart).Hours() / 24
	elapsed := float64(now.Day())
	return totalUSD / elapsed * daysInMonth
}
