package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/pricing"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Rebalance actions.
const (
	actionBuy  = "buy"
	actionSell = "sell"
)

// rebalancePlan is one corrective order. Cost is what the order adds to the
// rebalance budget: the loss a buy locks in against the over-filled leg, or
// the realized loss of a sell.
type rebalancePlan struct {
	Action  string
	Outcome types.Outcome
	Side    types.Side
	Shares  decimal.Decimal
	Limit   decimal.Decimal
	Avg     decimal.Decimal
	Cost    decimal.Decimal
	Full    bool
}

// rebalance sends corrective orders until the position is hedged, the
// attempt budget or the cost budget is spent, or the book cannot help.
func (e *Executor) rebalance(ctx context.Context, out *Outcome, market *types.Market) (bool, string) {
	pos := out.Position
	spent := decimal.Zero
	reason := fmt.Sprintf("hedge ratio %s after %d rebalance attempts", pos.HedgeRatio().StringFixed(2), e.rebalanceAttempts)

	for attempt := 1; attempt <= e.rebalanceAttempts; attempt++ {
		book, ok := e.books.MarketBook(market.ID)
		if !ok {
			reason = "no book available for rebalance"
			break
		}
		if book.Age(e.now()) > e.maxBookAge {
			reason = "book stale during rebalance"
			break
		}

		plan, ok := e.planRebalance(book, pos, market)
		if !ok {
			RebalanceAttemptsTotal.WithLabelValues("none", "no_liquidity").Inc()
			reason = "insufficient liquidity to rebalance"
			break
		}
		if spent.Add(plan.Cost).GreaterThan(e.rebalanceCost) {
			RebalanceAttemptsTotal.WithLabelValues(plan.Action, "over_budget").Inc()
			reason = fmt.Sprintf("rebalance cost %s exceeds budget %s",
				spent.Add(plan.Cost).StringFixed(2), e.rebalanceCost.StringFixed(2))
			break
		}

		e.logger.Info("rebalance-attempt",
			zap.String("position-id", pos.ID),
			zap.Int("attempt", attempt),
			zap.String("action", plan.Action),
			zap.String("outcome", string(plan.Outcome)),
			zap.Stringer("shares", plan.Shares),
			zap.Stringer("limit", plan.Limit),
			zap.Stringer("estimated-cost", plan.Cost))

		req := newOrder(market, plan.Outcome, plan.Side, plan.Shares, plan.Limit, types.ImmediateOrCancel)
		basis := avgCost(pos, plan.Outcome)
		pairBasis := avgCost(pos, plan.Outcome.Opposite())
		deficit := pos.Shares(plan.Outcome.Opposite()).Sub(pos.Shares(plan.Outcome))
		leg := e.submitLeg(ctx, req, pos.ID, purposeRebalance)
		out.Legs = append(out.Legs, leg)
		applyFill(pos, leg)

		filled := leg.Result.FilledSize
		if plan.Side == types.Buy {
			spent = spent.Add(buyLoss(pairBasis, deficit, filled, leg.Result.Cost()))
		} else if loss := basis.Mul(filled).Sub(leg.Result.Cost()); loss.IsPositive() {
			spent = spent.Add(loss)
		}

		result := "filled"
		if !filled.IsPositive() {
			result = "unfilled"
		}
		RebalanceAttemptsTotal.WithLabelValues(plan.Action, result).Inc()

		if leg.Unknown {
			reason = "rebalance order outcome unknown"
			break
		}

		if EvaluateHedge(pos.YesShares, pos.NoShares, e.minHedge, e.criticalHedge) == Hedged {
			e.logger.Info("position-rebalanced",
				zap.String("position-id", pos.ID),
				zap.Stringer("yes-shares", pos.YesShares),
				zap.Stringer("no-shares", pos.NoShares),
				zap.Stringer("hedge-ratio", pos.HedgeRatio()),
				zap.Stringer("rebalance-cost", spent))
			return true, ""
		}
		reason = fmt.Sprintf("hedge ratio %s after %d rebalance attempts", pos.HedgeRatio().StringFixed(2), attempt)
	}

	return false, reason
}

// planRebalance prices both corrective options against the current book:
// buying the under-filled leg or selling the excess of the over-filled one.
// A full-size option beats a partial one; between two options of equal
// reach, buying wins when buy and sell prices sum to at most 1, since each
// extra pair then pays out at least what selling would recover.
func (e *Executor) planRebalance(book *types.MarketBook, pos *types.Position, market *types.Market) (rebalancePlan, bool) {
	under := types.OutcomeYes
	if pos.NoShares.LessThan(pos.YesShares) {
		under = types.OutcomeNo
	}
	over := under.Opposite()

	deficit := pos.Shares(over).Sub(pos.Shares(under)).Truncate(2)
	if !deficit.IsPositive() {
		return rebalancePlan{}, false
	}

	var buy, sell *rebalancePlan

	buyTarget := decimal.Max(deficit, market.MinOrderSize)
	if limit, err := pricing.LimitPrice(book.Book(under), e.slippage, market.TickSize); err == nil {
		fill := pricing.WalkAsks(book.Book(under), buyTarget, limit)
		if fill.Shares.IsPositive() {
			buy = &rebalancePlan{
				Action:  actionBuy,
				Outcome: under,
				Side:    types.Buy,
				Shares:  fill.Shares,
				Limit:   limit,
				Avg:     fill.AvgPrice(),
				Cost:    buyLoss(avgCost(pos, over), deficit, fill.Shares, fill.Notional),
				Full:    fill.Shares.GreaterThanOrEqual(buyTarget),
			}
		}
	}

	sellTarget := decimal.Min(decimal.Max(deficit, market.MinOrderSize), pos.Shares(over))
	if floor, err := pricing.SellLimitPrice(book.Book(over), e.slippage, market.TickSize); err == nil {
		fill := pricing.WalkBids(book.Book(over), sellTarget, floor)
		if fill.Shares.IsPositive() {
			loss := avgCost(pos, over).Mul(fill.Shares).Sub(fill.Notional)
			sell = &rebalancePlan{
				Action:  actionSell,
				Outcome: over,
				Side:    types.Sell,
				Shares:  fill.Shares,
				Limit:   floor,
				Avg:     fill.AvgPrice(),
				Cost:    decimal.Max(loss, decimal.Zero),
				Full:    fill.Shares.GreaterThanOrEqual(sellTarget),
			}
		}
	}

	switch {
	case buy == nil && sell == nil:
		return rebalancePlan{}, false
	case sell == nil:
		return *buy, true
	case buy == nil:
		return *sell, true
	case buy.Full != sell.Full:
		if buy.Full {
			return *buy, true
		}
		return *sell, true
	case !buy.Full && !buy.Shares.Equal(sell.Shares):
		if buy.Shares.GreaterThan(sell.Shares) {
			return *buy, true
		}
		return *sell, true
	case buy.Avg.Add(sell.Avg).LessThanOrEqual(one):
		return *buy, true
	default:
		return *sell, true
	}
}

// buyLoss is the loss locked in by buying shares of the under-filled leg for
// notional. Each share up to deficit pairs with an over-filled share bought
// at pairBasis and pays 1 at resolution; shares beyond deficit are counted
// at full cost.
func buyLoss(pairBasis, deficit, shares, notional decimal.Decimal) decimal.Decimal {
	if !shares.IsPositive() {
		return decimal.Zero
	}

	avg := notional.Div(shares)
	paired := decimal.Min(shares, decimal.Max(deficit, decimal.Zero))
	loss := pairBasis.Add(avg).Sub(one).Mul(paired).Add(avg.Mul(shares.Sub(paired)))

	return decimal.Max(loss, decimal.Zero)
}

func avgCost(pos *types.Position, outcome types.Outcome) decimal.Decimal {
	shares := pos.Shares(outcome)
	if !shares.IsPositive() {
		return decimal.Zero
	}
	cost := pos.YesCost
	if outcome == types.OutcomeNo {
		cost = pos.NoCost
	}

	return cost.Div(shares)
}
