package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SignalLeg is the proposed order for one outcome.
type SignalLeg struct {
	Outcome    Outcome
	TokenID    string
	LimitPrice decimal.Decimal
	BestAsk    decimal.Decimal
	Size       decimal.Decimal // shares
}

// TradingSignal is an ephemeral arbitrage proposal. Book is the snapshot
// the legs were priced from.
type TradingSignal struct {
	ID          string
	Strategy    string
	MarketID    string
	Yes         SignalLeg
	No          SignalLeg
	Spread      decimal.Decimal
	CombinedAsk decimal.Decimal
	Tranches    int
	DetectedAt  time.Time
	Book        *MarketBook
}

// Leg returns the leg for an outcome.
func (s *TradingSignal) Leg(outcome Outcome) SignalLeg {
	if outcome == OutcomeNo {
		return s.No
	}

	return s.Yes
}

// Size is the proposed share count per leg.
func (s *TradingSignal) Size() decimal.Decimal {
	return decimal.Min(s.Yes.Size, s.No.Size)
}

// Notional is the worst-case capital committed at the limit prices.
func (s *TradingSignal) Notional() decimal.Decimal {
	return s.Yes.Size.Mul(s.Yes.LimitPrice).Add(s.No.Size.Mul(s.No.LimitPrice))
}

// WithSize returns a copy with both legs set to shares.
func (s TradingSignal) WithSize(shares decimal.Decimal) TradingSignal {
	s.Yes.Size = shares
	s.No.Size = shares

	return s
}
