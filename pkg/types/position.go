package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

// Position statuses.
const (
	PositionOpen                PositionStatus = "open"
	PositionQueuedForSettlement PositionStatus = "queued_for_settlement"
	PositionClaimed             PositionStatus = "claimed"
	PositionResolvedStale       PositionStatus = "resolved_stale"
	PositionNeedsReview         PositionStatus = "needs_review"
)

// Position is one arbitrage entry with up to two legs.
type Position struct {
	ID        string
	MarketID  string
	YesShares decimal.Decimal
	NoShares  decimal.Decimal
	YesCost   decimal.Decimal
	NoCost    decimal.Decimal
	Status    PositionStatus
	Reason    string
	OpenedAt  time.Time
	UpdatedAt time.Time
}

// Shares returns the share count held on an outcome.
func (p *Position) Shares(outcome Outcome) decimal.Decimal {
	if outcome == OutcomeNo {
		return p.NoShares
	}

	return p.YesShares
}

// EntryCost is the total capital committed to both legs.
func (p *Position) EntryCost() decimal.Decimal {
	return p.YesCost.Add(p.NoCost)
}

// HedgeRatio returns the ratio of the smaller to the larger leg.
func (p *Position) HedgeRatio() decimal.Decimal {
	return HedgeRatio(p.YesShares, p.NoShares)
}

// HedgedShares is the share count guaranteed to pay out.
func (p *Position) HedgedShares() decimal.Decimal {
	return decimal.Min(p.YesShares, p.NoShares)
}

// ExpectedProfit is the deterministic payoff of the hedged portion minus total cost.
func (p *Position) ExpectedProfit() decimal.Decimal {
	return p.HedgedShares().Sub(p.EntryCost())
}

// UnhedgedExposure is the cost of the excess leg above the hedged share count.
func (p *Position) UnhedgedExposure() decimal.Decimal {
	excess := p.YesShares.Sub(p.NoShares)
	switch {
	case excess.IsPositive() && p.YesShares.IsPositive():
		return p.YesCost.Mul(excess).Div(p.YesShares)
	case excess.IsNegative() && p.NoShares.IsPositive():
		return p.NoCost.Mul(excess.Neg()).Div(p.NoShares)
	default:
		return decimal.Zero
	}
}

// Payout returns the redemption value once winner is known.
func (p *Position) Payout(winner Outcome) decimal.Decimal {
	return p.Shares(winner)
}

// Terminal reports whether the position no longer changes.
func (p *Position) Terminal() bool {
	return p.Status == PositionClaimed || p.Status == PositionResolvedStale
}

// HedgeRatio is min/max of the two share counts: 1 when both are zero,
// 0 when exactly one is zero.
func HedgeRatio(a, b decimal.Decimal) decimal.Decimal {
	switch {
	case a.IsZero() && b.IsZero():
		return decimal.NewFromInt(1)
	case a.IsZero() || b.IsZero():
		return decimal.Zero
	}

	return decimal.Min(a, b).Div(decimal.Max(a, b))
}
