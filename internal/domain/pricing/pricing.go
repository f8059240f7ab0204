// Package pricing models how each metered service converts raw usage into an
// estimated dollar cost. Every service carries exactly one pricing shape;
// adding a priced service means registering a new Model value, not touching
// calculator branching.
package pricing

import (
	"fmt"
	"math"
)

// Usage is the monthly usage a model prices.
type Usage struct {
	Requests      int64
	Tokens        int64
	ActualCostUSD float64 // provider-reported, 0 when the provider does not echo cost
	ActiveDays    int64
}

// Breakdown is the outcome of pricing one service for one month.
type Breakdown struct {
	USD    float64
	Tier   string
	Detail string
	// Unbilled marks usage beyond the highest tier the model handles; the
	// reported USD then understates the real bill and budget checks must
	// treat the service as out of budget.
	Unbilled bool
}

// Model prices a month of usage. The concrete type is one of FreeCapped,
// TokenMetered, VolumeMetered, or EventTiered.
type Model interface {
	Cost(u Usage) Breakdown
}

// Tier names shared across shapes.
const (
	TierFree    = "free"
	TierMetered = "metered"
	TierPayg    = "payg"
	TierTeam    = "team"
)

// FreeCapped is zero-cost under a fixed monthly unit cap; above the cap a
// flat monthly fee plus a per-chunk overage rate applies.
type FreeCapped struct {
	FreeUnits    int64
	FlatFeeUSD   float64
	OverageChunk int64 // units per billing chunk, e.g. 1000
	OverageUSD   float64
	PaidTier     string // tier label above the cap, e.g. "pro"
}

// Cost prices u under the free-capped shape.
func (m FreeCapped) Cost(u Usage) Breakdown {
	if u.Requests <= m.FreeUnits {
		return Breakdown{
			Tier:   TierFree,
			Detail: fmt.Sprintf("%d of %d free units", u.Requests, m.FreeUnits),
		}
	}
	over := u.Requests - m.FreeUnits
	chunks := ceilDiv(over, m.OverageChunk)
	return Breakdown{
		USD:  m.FlatFeeUSD + float64(chunks)*m.OverageUSD,
		Tier: m.PaidTier,
		Detail: fmt.Sprintf("flat fee %.2f + %d overage chunk(s) of %d units",
			m.FlatFeeUSD, chunks, m.OverageChunk),
	}
}

// TokenMetered accrues cost per 1k tokens. A provider-reported actual cost
// always takes precedence; estimation from counts is a fallback only.
type TokenMetered struct {
	Per1KTokensUSD float64
	PerRequestUSD  float64 // flat-rate fallback when no tokens were recorded
	CostTriggerUSD float64 // monthly spend that triggers a recommendation
}

// Cost prices u under the token-metered shape.
func (m TokenMetered) Cost(u Usage) Breakdown {
	switch {
	case u.ActualCostUSD > 0:
		return Breakdown{
			USD:    u.ActualCostUSD,
			Tier:   TierMetered,
			Detail: "provider-reported cost",
		}
	case u.Tokens > 0:
		return Breakdown{
			USD:    float64(u.Tokens) / 1000 * m.Per1KTokensUSD,
			Tier:   TierMetered,
			Detail: fmt.Sprintf("%d tokens at %.4f per 1k", u.Tokens, m.Per1KTokensUSD),
		}
	default:
		return Breakdown{
			USD:    float64(u.Requests) * m.PerRequestUSD,
			Tier:   TierMetered,
			Detail: fmt.Sprintf("%d requests at flat %.4f each", u.Requests, m.PerRequestUSD),
		}
	}
}

// VolumeMetered has a free allowance of daily-commands × active-days; the
// excess is billed pay-as-you-go per 100k units.
type VolumeMetered struct {
	FreeDailyCommands int64
	Per100KUSD        float64
}

// Cost prices u under the volume-metered shape.
func (m VolumeMetered) Cost(u Usage) Breakdown {
	allowance := m.FreeDailyCommands * u.ActiveDays
	if u.Requests <= allowance {
		return Breakdown{
			Tier:   TierFree,
			Detail: fmt.Sprintf("%d of %d free commands (%d/day x %d active days)", u.Requests, allowance, m.FreeDailyCommands, u.ActiveDays),
		}
	}
	excess := u.Requests - allowance
	return Breakdown{
		USD:    float64(excess) / 100000 * m.Per100KUSD,
		Tier:   TierPayg,
		Detail: fmt.Sprintf("%d commands over the free allowance of %d", excess, allowance),
	}
}

// EventTiered is free up to FreeEvents; a fixed-price team tier unlocks a
// higher cap. Beyond the team cap the flat team price is still reported, but
// the breakdown is flagged Unbilled so the overage cannot pass silently as
// under-billing.
type EventTiered struct {
	FreeEvents   int64
	TeamEvents   int64
	TeamPriceUSD float64
	EventTrigger int64 // monthly event count that triggers a recommendation
}

// Cost prices u under the event-tiered shape.
func (m EventTiered) Cost(u Usage) Breakdown {
	switch {
	case u.Requests <= m.FreeEvents:
		return Breakdown{
			Tier:   TierFree,
			Detail: fmt.Sprintf("%d of %d free events", u.Requests, m.FreeEvents),
		}
	case u.Requests <= m.TeamEvents:
		return Breakdown{
			USD:    m.TeamPriceUSD,
			Tier:   TierTeam,
			Detail: fmt.Sprintf("%d events within the team tier cap of %d", u.Requests, m.TeamEvents),
		}
	default:
		return Breakdown{
			USD:      m.TeamPriceUSD,
			Tier:     TierTeam,
			Detail:   fmt.Sprintf("%d events exceed the team tier cap of %d; overage is not priced", u.Requests, m.TeamEvents),
			Unbilled: true,
		}
	}
}

func ceilDiv(n, d int64) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(float64(n) / float64(d)))
}
