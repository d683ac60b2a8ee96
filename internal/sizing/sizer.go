// Package sizing turns balance, limits and book depth into a share count.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// sharePrecision is the number of decimal places share counts are truncated to.
const sharePrecision = 2

// Config holds sizing configuration.
type Config struct {
	MaxTradeSizeUSD       decimal.Decimal
	MaxPerWindowUSD       decimal.Decimal
	BalanceSizingPct      decimal.Decimal
	GradualEntryEnabled   bool
	GradualEntryTranches  int
	GradualEntryMinSpread decimal.Decimal
}

// Input is everything the sizer needs for one decision.
type Input struct {
	Balance         decimal.Decimal // spendable collateral
	WindowExposure  decimal.Decimal // capital already committed to this market
	AvailableShares decimal.Decimal // joint depth from the evaluated book
	PerShareCost    decimal.Decimal // combined leg price per share pair
	Spread          decimal.Decimal
	MinOrderSize    decimal.Decimal // shares
}

// Plan is the sizing outcome. A zero Shares means skip.
type Plan struct {
	Shares   decimal.Decimal
	Tranches []decimal.Decimal
	Limit    string // which bound was binding
}

// Skip reports whether nothing should be traded.
func (p Plan) Skip() bool {
	return !p.Shares.IsPositive()
}

// Sizer computes trade sizes.
type Sizer struct {
	cfg Config
}

// New creates a sizer.
func New(cfg Config) (*Sizer, error) {
	if !cfg.MaxTradeSizeUSD.IsPositive() {
		return nil, fmt.Errorf("max trade size must be positive")
	}
	if !cfg.BalanceSizingPct.IsPositive() {
		return nil, fmt.Errorf("balance sizing pct must be positive")
	}
	if cfg.GradualEntryEnabled && cfg.GradualEntryTranches < 1 {
		return nil, fmt.Errorf("gradual entry tranches must be >= 1")
	}

	return &Sizer{cfg: cfg}, nil
}

// Size returns min(max_trade, balance*pct, liquidity, remaining window budget)
// in shares. Results below the minimum order size are skipped, never rounded up.
func (s *Sizer) Size(in Input) Plan {
	if !in.PerShareCost.IsPositive() {
		return Plan{Limit: "no-price"}
	}

	remainingWindow := s.cfg.MaxPerWindowUSD.Sub(in.WindowExposure)
	if s.cfg.MaxPerWindowUSD.IsZero() {
		remainingWindow = s.cfg.MaxTradeSizeUSD
	}

	bounds := []struct {
		name   string
		shares decimal.Decimal
	}{
		{"max-trade-size", s.cfg.MaxTradeSizeUSD.Div(in.PerShareCost)},
		{"balance", in.Balance.Mul(s.cfg.BalanceSizingPct).Div(in.PerShareCost)},
		{"liquidity", in.AvailableShares},
		{"window-budget", remainingWindow.Div(in.PerShareCost)},
	}

	shares := bounds[0].shares
	limit := bounds[0].name
	for _, b := range bounds[1:] {
		if b.shares.LessThan(shares) {
			shares, limit = b.shares, b.name
		}
	}

	shares = shares.Truncate(sharePrecision)
	if !shares.IsPositive() || shares.LessThan(in.MinOrderSize) {
		return Plan{Limit: limit}
	}

	return Plan{
		Shares:   shares,
		Tranches: s.tranches(shares, in),
		Limit:    limit,
	}
}

// tranches splits shares into equal parts when gradual entry applies. The
// count drops until each tranche clears the minimum order size.
func (s *Sizer) tranches(shares decimal.Decimal, in Input) []decimal.Decimal {
	n := 1
	if s.cfg.GradualEntryEnabled && in.Spread.GreaterThanOrEqual(s.cfg.GradualEntryMinSpread) {
		n = s.cfg.GradualEntryTranches
	}

	for ; n > 1; n-- {
		part := shares.Div(decimal.NewFromInt(int64(n))).Truncate(sharePrecision)
		if part.GreaterThanOrEqual(in.MinOrderSize) && part.IsPositive() {
			out := make([]decimal.Decimal, n)
			for i := range out {
				out[i] = part
			}
			return out
		}
	}

	return []decimal.Decimal{shares}
}
