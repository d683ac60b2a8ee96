package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PnLType classifies a realized P&L ledger entry.
type PnLType string

// Ledger entry types.
const (
	PnLTradeResolution  PnLType = "trade_resolution"
	PnLSettlementClaim  PnLType = "settlement_claim"
	PnLHistoricalImport PnLType = "historical_import"
	PnLAdjustment       PnLType = "adjustment"
)

// LedgerEntry is an immutable realized P&L record.
type LedgerEntry struct {
	ID         string
	PositionID string
	Amount     decimal.Decimal
	Type       PnLType
	Reason     string
	CreatedAt  time.Time
}

// SettlementEntry tracks a resolved position awaiting its claim.
type SettlementEntry struct {
	PositionID  string
	MarketID    string
	Winner      Outcome
	YesShares   decimal.Decimal
	NoShares    decimal.Decimal
	EntryCost   decimal.Decimal
	Proceeds    *decimal.Decimal // nil until claimed
	Claimed     bool
	GaveUp      bool
	Attempts    int
	NextRetryAt time.Time
	LastError   string
	QueuedAt    time.Time
	ClaimedAt   time.Time
}

// ClaimProfit is proceeds minus entry cost; false until claimed with proceeds.
func (e *SettlementEntry) ClaimProfit() (decimal.Decimal, bool) {
	if !e.Claimed || e.Proceeds == nil {
		return decimal.Zero, false
	}

	return e.Proceeds.Sub(e.EntryCost), true
}

// Due reports whether a claim attempt should run at now.
func (e *SettlementEntry) Due(now time.Time) bool {
	return !e.Claimed && !now.Before(e.NextRetryAt)
}
