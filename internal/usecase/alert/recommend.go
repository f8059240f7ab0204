package alert

import (
	"fmt"

	dompricing "github.com/kailas-cloud/usagegov/internal/domain/pricing"
	"github.com/kailas-cloud/usagegov/internal/usecase/pricing"
)

// freeTierNearingRatio flags free-capped and volume-metered services once
// usage crosses this share of the free allotment.
const freeTierNearingRatio = 0.8

// Recommendations turns a month's aggregated costs into ordered,
// human-readable optimization suggestions: overall budget state first, then
// per-service budget breaches, then shape-specific heuristics. The list is
// never empty; a quiet month yields a single all-healthy message.
func (e *Engine) Recommendations(rep pricing.MonthlyReport, models map[string]dompricing.Model) []string {
	var recs []string

	switch {
	case rep.TotalBudgetUSD > 0 && rep.PercentUsed >= e.thresholds.Critical*100:
		recs = append(recs, fmt.Sprintf(
			"Critical: monthly spend $%.2f is at %.0f%% of the $%.2f total budget",
			rep.TotalUSD, rep.PercentUsed, rep.TotalBudgetUSD))
	case rep.TotalBudgetUSD > 0 && rep.PercentUsed >= e.thresholds.Warning*100:
		recs = append(recs, fmt.Sprintf(
			"Monthly spend $%.2f is at %.0f%% of the $%.2f total budget",
			rep.TotalUSD, rep.PercentUsed, rep.TotalBudgetUSD))
	}

	for _, sc := range rep.Services {
		if !sc.WithinBudget {
			recs = append(recs, fmt.Sprintf(
				"%s is over budget: estimated $%.2f against a $%.2f cap",
				sc.Service, sc.Breakdown.USD, sc.BudgetUSD))
		}
	}

	for _, sc := range rep.Services {
		if r := shapeRecommendation(sc, models[sc.Service]); r != "" {
			recs = append(recs, r)
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "All services healthy - no cost optimizations needed")
	}
	return recs
}

// shapeRecommendation applies the per-shape heuristic for one service.
func shapeRecommendation(sc pricing.ServiceCost, model dompricing.Model) string {
	switch m := model.(type) {
	case dompricing.TokenMetered:
		if m.CostTriggerUSD > 0 && sc.Breakdown.USD > m.CostTriggerUSD {
			return fmt.Sprintf(
				"%s cost $%.2f this month exceeds the $%.2f review trigger; consider response caching or a cheaper model",
				sc.Service, sc.Breakdown.USD, m.CostTriggerUSD)
		}
	case dompricing.FreeCapped:
		if m.FreeUnits > 0 && float64(sc.Usage.Requests) >= freeTierNearingRatio*float64(m.FreeUnits) {
			return fmt.Sprintf(
				"%s used %d of %d free units; reduce calls or plan for the %s tier",
				sc.Service, sc.Usage.Requests, m.FreeUnits, m.PaidTier)
		}
	case dompricing.VolumeMetered:
		allowance := m.FreeDailyCommands * sc.Usage.ActiveDays
		if allowance > 0 && float64(sc.Usage.Requests) >= freeTierNearingRatio*float64(allowance) {
			return fmt.Sprintf(
				"%s command volume %d is nearing the free allowance of %d; consider batching or longer cache TTLs",
				sc.Service, sc.Usage.Requests, allowance)
		}
	case dompricing.EventTiered:
		if m.EventTrigger > 0 && sc.Usage.Requests >= m.EventTrigger {
			return fmt.Sprintf(
				"%s ingested %d events this month (review trigger %d); investigate noisy sources",
				sc.Service, sc.Usage.Requests, m.EventTrigger)
		}
	}
	return ""
}
