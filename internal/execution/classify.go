package execution

import (
	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// AttemptState is a step of an execution attempt.
type AttemptState string

// Attempt states. Resolved, Flattened, NeedsReview, BothUnfilled, Rejected
// and DryRun are terminal. Flattened means a rebalance sold the position
// down to no shares.
const (
	StateProposed        AttemptState = "proposed"
	StateLegsSubmitted   AttemptState = "legs_submitted"
	StateBothFilled      AttemptState = "both_filled"
	StateOneLegFilled    AttemptState = "one_leg_filled"
	StatePartiallyFilled AttemptState = "partially_filled"
	StateBothUnfilled    AttemptState = "both_unfilled"
	StateRebalancing     AttemptState = "rebalancing"
	StateResolved        AttemptState = "resolved"
	StateFlattened       AttemptState = "flattened"
	StateNeedsReview     AttemptState = "needs_review"
	StateRejected        AttemptState = "rejected"
	StateDryRun          AttemptState = "dry_run"
)

// ClassifyFills maps the two entry leg results to a fill state.
func ClassifyFills(yes, no *types.OrderResult) AttemptState {
	yesShares, noShares := filled(yes), filled(no)

	switch {
	case yesShares.IsZero() && noShares.IsZero():
		return StateBothUnfilled
	case yesShares.IsZero() || noShares.IsZero():
		return StateOneLegFilled
	case yes.Status == types.OrderFilled && no.Status == types.OrderFilled:
		return StateBothFilled
	default:
		return StatePartiallyFilled
	}
}

func filled(r *types.OrderResult) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}

	return r.FilledSize
}

// HedgeAction is what the engine does with a filled position.
type HedgeAction int

// Hedge actions.
const (
	// Hedged positions are kept as they are.
	Hedged HedgeAction = iota
	// Rebalance is required below the minimum hedge ratio.
	Rebalance
	// RebalanceCritical is a rebalance below the critical ratio.
	RebalanceCritical
)

func (a HedgeAction) String() string {
	switch a {
	case Hedged:
		return "hedged"
	case Rebalance:
		return "rebalance"
	case RebalanceCritical:
		return "rebalance_critical"
	default:
		return "unknown"
	}
}

// EvaluateHedge classifies a share pair. A ratio equal to minRatio is
// hedged; a ratio equal to criticalRatio is a plain rebalance.
func EvaluateHedge(yesShares, noShares, minRatio, criticalRatio decimal.Decimal) HedgeAction {
	ratio := types.HedgeRatio(yesShares, noShares)

	switch {
	case ratio.GreaterThanOrEqual(minRatio):
		return Hedged
	case ratio.GreaterThanOrEqual(criticalRatio):
		return Rebalance
	default:
		return RebalanceCritical
	}
}
