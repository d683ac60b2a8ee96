// Package storage persists positions, orders, the settlement queue, the
// realized P&L ledger, daily stats and risk events.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Storage is the persistence boundary of the engine. A nil error means the
// write is durable.
type Storage interface {
	// SavePosition inserts or replaces a position.
	SavePosition(ctx context.Context, p *types.Position) error
	// GetPosition returns types.ErrNotFound for unknown ids.
	GetPosition(ctx context.Context, id string) (*types.Position, error)
	// ListPositions returns positions in any of the given statuses, or all when none are given.
	ListPositions(ctx context.Context, statuses ...types.PositionStatus) ([]*types.Position, error)
	// ListPositionsByMarket returns every position opened on a market.
	ListPositionsByMarket(ctx context.Context, marketID string) ([]*types.Position, error)
	// ResolvePosition stores the position and, when entry is non-nil, appends it to the ledger atomically.
	ResolvePosition(ctx context.Context, p *types.Position, entry *types.LedgerEntry) error

	// SaveOrder inserts or replaces an order keyed by client order id.
	SaveOrder(ctx context.Context, rec *types.OrderRecord) error
	// ListPendingOrders returns orders submitted without a known result.
	ListPendingOrders(ctx context.Context) ([]*types.OrderRecord, error)
	// ListRecentOrders returns the newest orders first.
	ListRecentOrders(ctx context.Context, limit int) ([]*types.OrderRecord, error)

	// EnqueueSettlement adds an entry; enqueuing an existing position is a no-op.
	EnqueueSettlement(ctx context.Context, e *types.SettlementEntry) error
	// GetSettlement returns types.ErrNotFound for unknown positions.
	GetSettlement(ctx context.Context, positionID string) (*types.SettlementEntry, error)
	// ListDueSettlements returns unclaimed entries whose retry time has passed.
	ListDueSettlements(ctx context.Context, now time.Time, limit int) ([]*types.SettlementEntry, error)
	// UpdateSettlement persists retry bookkeeping.
	UpdateSettlement(ctx context.Context, e *types.SettlementEntry) error
	// CompleteSettlement marks the entry claimed, appends the ledger entry and
	// moves the position to status in one transaction.
	CompleteSettlement(ctx context.Context, e *types.SettlementEntry, entry *types.LedgerEntry, status types.PositionStatus) error

	// AppendLedger writes an immutable ledger entry. A second settlement_claim
	// for the same position returns types.ErrDuplicateSettlementClaim.
	AppendLedger(ctx context.Context, e *types.LedgerEntry) error
	// SumLedger sums entries created in [from, to).
	SumLedger(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	// ListLedger returns entries created in [from, to), oldest first.
	ListLedger(ctx context.Context, from, to time.Time) ([]*types.LedgerEntry, error)

	// GetDailyStats returns zeroed stats for days without trades.
	GetDailyStats(ctx context.Context, day string) (*types.DailyStats, error)
	// RecordDailyTrade adds exposure and one trade to the day.
	RecordDailyTrade(ctx context.Context, day string, exposure decimal.Decimal, failed bool) error
	// AppendRiskEvent records a breaker transition or daily reset.
	AppendRiskEvent(ctx context.Context, e *types.RiskEvent) error

	// Close closes the storage connection.
	Close() error
}
