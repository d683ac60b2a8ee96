// Package pricing derives limit prices and fillable depth from order-book
// snapshots. Every function takes the book as its only price source.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// DefaultTickSize is used when a market has no tick size configured.
var DefaultTickSize = decimal.RequireFromString("0.01")

var one = decimal.NewFromInt(1)

// LimitPrice returns best_ask + buffer snapped down to the tick grid. The
// result is never below the best ask and never above 1 - tick.
func LimitPrice(book *types.OrderBook, buffer, tick decimal.Decimal) (decimal.Decimal, error) {
	ask, ok := book.BestAsk()
	if !ok {
		return decimal.Zero, fmt.Errorf("token %s: %w", tokenOf(book), types.ErrNoLiquidity)
	}

	if !tick.IsPositive() {
		tick = DefaultTickSize
	}

	price := SnapDown(ask.Price.Add(buffer), tick)
	if price.LessThan(ask.Price) {
		price = ask.Price
	}

	ceiling := one.Sub(tick)
	if price.GreaterThan(ceiling) {
		price = decimal.Max(ceiling, ask.Price)
	}

	return price, nil
}

// SellLimitPrice returns best_bid - buffer snapped up to the tick grid,
// never above the best bid and never below one tick.
func SellLimitPrice(book *types.OrderBook, buffer, tick decimal.Decimal) (decimal.Decimal, error) {
	bid, ok := book.BestBid()
	if !ok {
		return decimal.Zero, fmt.Errorf("token %s bids: %w", tokenOf(book), types.ErrNoLiquidity)
	}

	if !tick.IsPositive() {
		tick = DefaultTickSize
	}

	price := SnapUp(bid.Price.Sub(buffer), tick)
	if price.GreaterThan(bid.Price) {
		price = bid.Price
	}
	if price.LessThan(tick) {
		price = decimal.Min(tick, bid.Price)
	}

	return price, nil
}

// SnapDown rounds price down to a multiple of tick.
func SnapDown(price, tick decimal.Decimal) decimal.Decimal {
	return price.Div(tick).Floor().Mul(tick)
}

// SnapUp rounds price up to a multiple of tick.
func SnapUp(price, tick decimal.Decimal) decimal.Decimal {
	return price.Div(tick).Ceil().Mul(tick)
}

// DepthAtOrBelow sums ask sizes priced at or below limit.
func DepthAtOrBelow(book *types.OrderBook, limit decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range book.Asks {
		if lvl.Price.GreaterThan(limit) {
			break
		}
		total = total.Add(lvl.Size)
	}

	return total
}

// DepthAtOrAbove sums bid sizes priced at or above floor.
func DepthAtOrAbove(book *types.OrderBook, floor decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range book.Bids {
		if lvl.Price.LessThan(floor) {
			break
		}
		total = total.Add(lvl.Size)
	}

	return total
}

// Fill is the simulated result of sweeping one side of a book.
type Fill struct {
	Shares   decimal.Decimal
	Notional decimal.Decimal
}

// AvgPrice returns Notional / Shares, zero when nothing filled.
func (f Fill) AvgPrice() decimal.Decimal {
	if f.Shares.IsZero() {
		return decimal.Zero
	}

	return f.Notional.Div(f.Shares)
}

// WalkAsks buys up to shares from the ask ladder without crossing limit.
func WalkAsks(book *types.OrderBook, shares, limit decimal.Decimal) Fill {
	return walk(book.Asks, shares, func(p decimal.Decimal) bool { return p.LessThanOrEqual(limit) })
}

// WalkBids sells up to shares into the bid ladder without crossing floor.
func WalkBids(book *types.OrderBook, shares, floor decimal.Decimal) Fill {
	return walk(book.Bids, shares, func(p decimal.Decimal) bool { return p.GreaterThanOrEqual(floor) })
}

func walk(levels []types.Level, shares decimal.Decimal, accept func(decimal.Decimal) bool) Fill {
	var fill Fill
	remaining := shares
	for _, lvl := range levels {
		if !remaining.IsPositive() || !accept(lvl.Price) {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		fill.Shares = fill.Shares.Add(take)
		fill.Notional = fill.Notional.Add(take.Mul(lvl.Price))
		remaining = remaining.Sub(take)
	}

	return fill
}

// PairQuote is the joint depth of both ask ladders.
type PairQuote struct {
	Shares decimal.Decimal
	Yes    Fill
	No     Fill
}

// Cost is the total notional of both legs.
func (q PairQuote) Cost() decimal.Decimal {
	return q.Yes.Notional.Add(q.No.Notional)
}

// PairDepth walks the YES and NO ask ladders together and returns how many
// share pairs can be bought while every marginal pair costs at most
// maxCombined and each leg stays within its limit.
func PairDepth(yes, no *types.OrderBook, yesLimit, noLimit, maxCombined decimal.Decimal) PairQuote {
	var quote PairQuote
	i, j := 0, 0
	var yesLeft, noLeft decimal.Decimal
	if len(yes.Asks) > 0 {
		yesLeft = yes.Asks[0].Size
	}
	if len(no.Asks) > 0 {
		noLeft = no.Asks[0].Size
	}

	for i < len(yes.Asks) && j < len(no.Asks) {
		yp, np := yes.Asks[i].Price, no.Asks[j].Price
		if yp.GreaterThan(yesLimit) || np.GreaterThan(noLimit) || yp.Add(np).GreaterThan(maxCombined) {
			break
		}

		take := decimal.Min(yesLeft, noLeft)
		quote.Shares = quote.Shares.Add(take)
		quote.Yes.Shares = quote.Yes.Shares.Add(take)
		quote.Yes.Notional = quote.Yes.Notional.Add(take.Mul(yp))
		quote.No.Shares = quote.No.Shares.Add(take)
		quote.No.Notional = quote.No.Notional.Add(take.Mul(np))

		yesLeft = yesLeft.Sub(take)
		noLeft = noLeft.Sub(take)
		if !yesLeft.IsPositive() {
			i++
			if i < len(yes.Asks) {
				yesLeft = yes.Asks[i].Size
			}
		}
		if !noLeft.IsPositive() {
			j++
			if j < len(no.Asks) {
				noLeft = no.Asks[j].Size
			}
		}
	}

	return quote
}

func tokenOf(book *types.OrderBook) string {
	if book == nil {
		return "<nil>"
	}

	return book.TokenID
}
