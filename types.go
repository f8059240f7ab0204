package usagegov

import (
	"time"

	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	domusage "github.com/kailas-cloud/usagegov/internal/domain/usage"
	governoruc "github.com/kailas-cloud/usagegov/internal/usecase/governor"
	predictuc "github.com/kailas-cloud/usagegov/internal/usecase/predict"
	pricinguc "github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

// Pricing describes how a service's usage converts to dollars. Exactly one
// of the concrete shapes implements it per service.
type Pricing interface {
	model() dompricing.Model
}

// FreeCapped is free up to a unit cap, then a flat monthly fee plus a rate
// per overage chunk.
type FreeCapped struct {
	FreeUnits    int64
	FlatFeeUSD   float64
	OverageChunk int64
	OverageUSD   float64
	// PaidTier labels usage above the cap. Default: "pro".
	PaidTier string
}

func (p FreeCapped) model() dompricing.Model {
	tier := p.PaidTier
	if tier == "" {
		tier = "pro"
	}
	return dompricing.FreeCapped{
		FreeUnits:    p.FreeUnits,
		FlatFeeUSD:   p.FlatFeeUSD,
		OverageChunk: p.OverageChunk,
		OverageUSD:   p.OverageUSD,
		PaidTier:     tier,
	}
}

// TokenMetered bills by consumption: provider-reported dollars when
// available, token estimation otherwise, flat per-request as a last resort.
type TokenMetered struct {
	Per1KTokensUSD float64
	PerRequestUSD  float64
	// CostTriggerUSD is the monthly spend above which the service is
	// flagged for optimization review. Zero disables the flag.
	CostTriggerUSD float64
}

func (p TokenMetered) model() dompricing.Model {
	return dompricing.TokenMetered{
		Per1KTokensUSD: p.Per1KTokensUSD,
		PerRequestUSD:  p.PerRequestUSD,
		CostTriggerUSD: p.CostTriggerUSD,
	}
}

// VolumeMetered has a free daily command allowance; the monthly excess is
// billed per 100K commands.
type VolumeMetered struct {
	FreeDailyCommands int64
	Per100KUSD        float64
}

func (p VolumeMetered) model() dompricing.Model {
	return dompricing.VolumeMetered{
		FreeDailyCommands: p.FreeDailyCommands,
		Per100KUSD:        p.Per100KUSD,
	}
}

// EventTiered is free up to an event cap, then a flat team price. Usage
// beyond the team cap is accepted but not priced by this model.
type EventTiered struct {
	FreeEvents   int64
	TeamEvents   int64
	TeamPriceUSD float64
	// EventTrigger is the monthly event count above which the service is
	// flagged for noise review. Zero disables the flag.
	EventTrigger int64
}

func (p EventTiered) model() dompricing.Model {
	return dompricing.EventTiered{
		FreeEvents:   p.FreeEvents,
		TeamEvents:   p.TeamEvents,
		TeamPriceUSD: p.TeamPriceUSD,
		EventTrigger: p.EventTrigger,
	}
}

// ServiceSpec declares one governed service.
type ServiceSpec struct {
	// Limit is the advisory daily unit cap per endpoint. Zero means
	// uncapped: no alerts, no forecasts.
	Limit int64
	// EndpointLimits override Limit per endpoint.
	EndpointLimits map[string]int64
	// BudgetUSD is the advisory monthly dollar cap. Zero means uncapped.
	BudgetUSD float64
	// Pricing is required.
	Pricing Pricing
}

// Decision is the advisory answer to a pre-call limit check.
type Decision struct {
	Allowed bool
	Reason  string
}

// DailyUsage is one service+endpoint's counters for one day.
type DailyUsage struct {
	Service       string
	Endpoint      string
	Date          string // YYYY-MM-DD
	Requests      int64
	CostUSD       float64
	Tokens        int64
	AvgDurationMs float64
}

// MonthlyUsage is the monthly rollup for one service.
type MonthlyUsage struct {
	Service       string
	Month         string // YYYY-MM
	Requests      int64
	CostUSD       float64
	Tokens        int64
	AvgDurationMs float64
	ActiveDays    int64
}

// ServiceCost is one service's priced usage for a month.
type ServiceCost struct {
	Service      string
	Tier         string
	CostUSD      float64
	Detail       string
	Unbilled     bool
	BudgetUSD    float64
	WithinBudget bool
}

// CostReport aggregates every governed service's cost for one month.
type CostReport struct {
	Month          string
	Services       []ServiceCost
	TotalUSD       float64
	TotalBudgetUSD float64
	PercentUsed    float64
	ProjectedUSD   float64
}

// Prediction forecasts when a service+endpoint exhausts its daily limit.
// Nil DaysUntilLimit means there is not enough data for a forecast.
type Prediction struct {
	Service           string
	Endpoint          string
	DaysUntilLimit    *int
	EstimatedDate     *time.Time
	CurrentUsage      int64
	Limit             int64
	AverageDailyUsage float64
	Confidence        string // "high", "medium" or "low"
}

// ServiceStatus is the derived governance state of one service.
type ServiceStatus struct {
	Service       string
	State         string // "healthy", "warning", "critical" or "over_budget"
	RequestsToday int64
	Limit         int64
	PercentUsed   float64
	MonthUSD      float64
	BudgetUSD     float64
	WithinBudget  bool
}

func dailyFromInternal(rec *domusage.DailyRecord) *DailyUsage {
	if rec == nil {
		return nil
	}
	return &DailyUsage{
		Service:       rec.Service,
		Endpoint:      rec.Endpoint,
		Date:          rec.Date,
		Requests:      rec.Requests,
		CostUSD:       rec.CostUSD(),
		Tokens:        rec.Tokens,
		AvgDurationMs: rec.AvgDurationMs(),
	}
}

func monthlyFromInternal(rec *domusage.MonthlyRecord) *MonthlyUsage {
	if rec == nil {
		return nil
	}
	return &MonthlyUsage{
		Service:       rec.Service,
		Month:         rec.Month,
		Requests:      rec.Requests,
		CostUSD:       rec.CostUSD(),
		Tokens:        rec.Tokens,
		AvgDurationMs: rec.AvgDurationMs(),
		ActiveDays:    rec.ActiveDays,
	}
}

func reportFromInternal(rep pricinguc.MonthlyReport) CostReport {
	services := make([]ServiceCost, len(rep.Services))
	for i, sc := range rep.Services {
		services[i] = ServiceCost{
			Service:      sc.Service,
			Tier:         sc.Breakdown.Tier,
			CostUSD:      sc.Breakdown.USD,
			Detail:       sc.Breakdown.Detail,
			Unbilled:     sc.Breakdown.Unbilled,
			BudgetUSD:    sc.BudgetUSD,
			WithinBudget: sc.WithinBudget,
		}
	}
	return CostReport{
		Month:          rep.Month,
		Services:       services,
		TotalUSD:       rep.TotalUSD,
		TotalBudgetUSD: rep.TotalBudgetUSD,
		PercentUsed:    rep.PercentUsed,
		ProjectedUSD:   rep.ProjectedUSD,
	}
}

func predictionFromInternal(p predictuc.Prediction) Prediction {
	return Prediction{
		Service:           p.Service,
		Endpoint:          p.Endpoint,
		DaysUntilLimit:    p.DaysUntilLimit,
		EstimatedDate:     p.EstimatedDate,
		CurrentUsage:      p.CurrentUsage,
		Limit:             p.Limit,
		AverageDailyUsage: p.AverageDailyUsage,
		Confidence:        string(p.Confidence),
	}
}

func statusFromInternal(s governoruc.ServiceStatus) ServiceStatus {
	return ServiceStatus{
		Service:       s.Service,
		State:         string(s.State),
		RequestsToday: s.RequestsToday,
		Limit:         s.Limit,
		PercentUsed:   s.PercentUsed,
		MonthUSD:      s.MonthUSD,
		BudgetUSD:     s.BudgetUSD,
		WithinBudget:  s.WithinBudget,
	}
}

// specLimits resolves limits from the registered service specs.
type specLimits map[string]ServiceSpec

func (m specLimits) LimitFor(service, endpoint string) int64 {
	spec, ok := m[service]
	if !ok {
		return 0
	}
	if v, ok := spec.EndpointLimits[endpoint]; ok {
		return v
	}
	return spec.Limit
}
