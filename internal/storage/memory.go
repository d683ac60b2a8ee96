package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// MemoryStorage implements Storage in process memory. Used for paper trading and tests.
type MemoryStorage struct {
	logger *zap.Logger

	mu          sync.RWMutex
	positions   map[string]*types.Position
	orders      map[string]*types.OrderRecord
	settlements map[string]*types.SettlementEntry
	ledger      []*types.LedgerEntry
	claimed     map[string]bool // position ids with a settlement_claim entry
	daily       map[string]*types.DailyStats
	riskEvents  []*types.RiskEvent
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage(logger *zap.Logger) *MemoryStorage {
	logger.Info("memory-storage-initialized")

	return &MemoryStorage{
		logger:      logger,
		positions:   make(map[string]*types.Position),
		orders:      make(map[string]*types.OrderRecord),
		settlements: make(map[string]*types.SettlementEntry),
		claimed:     make(map[string]bool),
		daily:       make(map[string]*types.DailyStats),
	}
}

func copyPosition(p *types.Position) *types.Position {
	c := *p
	return &c
}

func copySettlement(e *types.SettlementEntry) *types.SettlementEntry {
	c := *e
	if e.Proceeds != nil {
		v := *e.Proceeds
		c.Proceeds = &v
	}
	return &c
}

// SavePosition inserts or replaces a position.
func (s *MemoryStorage) SavePosition(_ context.Context, p *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.positions[p.ID] = copyPosition(p)
	return nil
}

// GetPosition returns a copy of the position.
func (s *MemoryStorage) GetPosition(_ context.Context, id string) (*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, fmt.Errorf("position %s: %w", id, types.ErrNotFound)
	}
	return copyPosition(p), nil
}

// ListPositions returns positions matching any status, oldest first.
func (s *MemoryStorage) ListPositions(_ context.Context, statuses ...types.PositionStatus) ([]*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[types.PositionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	var out []*types.Position
	for _, p := range s.positions {
		if len(want) == 0 || want[p.Status] {
			out = append(out, copyPosition(p))
		}
	}
	sortPositions(out)

	return out, nil
}

// ListPositionsByMarket returns positions opened on marketID.
func (s *MemoryStorage) ListPositionsByMarket(_ context.Context, marketID string) ([]*types.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Position
	for _, p := range s.positions {
		if p.MarketID == marketID {
			out = append(out, copyPosition(p))
		}
	}
	sortPositions(out)

	return out, nil
}

func sortPositions(ps []*types.Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].OpenedAt.Equal(ps[j].OpenedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].OpenedAt.Before(ps[j].OpenedAt)
	})
}

// ResolvePosition stores p and appends entry when non-nil.
func (s *MemoryStorage) ResolvePosition(_ context.Context, p *types.Position, entry *types.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry != nil {
		if err := s.appendLedgerLocked(entry); err != nil {
			return err
		}
	}
	s.positions[p.ID] = copyPosition(p)

	return nil
}

// SaveOrder inserts or replaces an order.
func (s *MemoryStorage) SaveOrder(_ context.Context, rec *types.OrderRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *rec
	s.orders[rec.Request.ClientOrderID] = &c
	return nil
}

// ListPendingOrders returns orders without a known result.
func (s *MemoryStorage) ListPendingOrders(_ context.Context) ([]*types.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.OrderRecord
	for _, rec := range s.orders {
		if !rec.Terminal() {
			c := *rec
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// ListRecentOrders returns up to limit orders, newest first.
func (s *MemoryStorage) ListRecentOrders(_ context.Context, limit int) ([]*types.OrderRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.OrderRecord, 0, len(s.orders))
	for _, rec := range s.orders {
		c := *rec
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// EnqueueSettlement adds e unless the position is already queued.
func (s *MemoryStorage) EnqueueSettlement(_ context.Context, e *types.SettlementEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settlements[e.PositionID]; ok {
		return nil
	}
	s.settlements[e.PositionID] = copySettlement(e)
	return nil
}

// GetSettlement returns the queue entry for a position.
func (s *MemoryStorage) GetSettlement(_ context.Context, positionID string) (*types.SettlementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.settlements[positionID]
	if !ok {
		return nil, fmt.Errorf("settlement %s: %w", positionID, types.ErrNotFound)
	}
	return copySettlement(e), nil
}

// ListDueSettlements returns unclaimed entries due at now, earliest first.
func (s *MemoryStorage) ListDueSettlements(_ context.Context, now time.Time, limit int) ([]*types.SettlementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.SettlementEntry
	for _, e := range s.settlements {
		if e.Due(now) {
			out = append(out, copySettlement(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// UpdateSettlement replaces the retry bookkeeping of an unclaimed entry.
func (s *MemoryStorage) UpdateSettlement(_ context.Context, e *types.SettlementEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.settlements[e.PositionID]
	if !ok {
		return fmt.Errorf("settlement %s: %w", e.PositionID, types.ErrNotFound)
	}
	if cur.Claimed {
		return nil
	}
	s.settlements[e.PositionID] = copySettlement(e)
	return nil
}

// CompleteSettlement applies the claim atomically.
func (s *MemoryStorage) CompleteSettlement(
	_ context.Context,
	e *types.SettlementEntry,
	entry *types.LedgerEntry,
	status types.PositionStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.settlements[e.PositionID]
	if !ok {
		return fmt.Errorf("settlement %s: %w", e.PositionID, types.ErrNotFound)
	}
	if cur.Claimed {
		return fmt.Errorf("position %s: %w", e.PositionID, types.ErrDuplicateSettlementClaim)
	}

	if err := s.appendLedgerLocked(entry); err != nil {
		return err
	}

	s.settlements[e.PositionID] = copySettlement(e)
	if p, ok := s.positions[e.PositionID]; ok {
		p.Status = status
		p.UpdatedAt = entry.CreatedAt
	}

	return nil
}

// AppendLedger writes an immutable ledger entry.
func (s *MemoryStorage) AppendLedger(_ context.Context, e *types.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLedgerLocked(e)
}

func (s *MemoryStorage) appendLedgerLocked(e *types.LedgerEntry) error {
	if e.Type == types.PnLSettlementClaim {
		if s.claimed[e.PositionID] {
			return fmt.Errorf("position %s: %w", e.PositionID, types.ErrDuplicateSettlementClaim)
		}
		s.claimed[e.PositionID] = true
	}

	c := *e
	s.ledger = append(s.ledger, &c)
	return nil
}

// SumLedger sums entries created in [from, to).
func (s *MemoryStorage) SumLedger(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := decimal.Zero
	for _, e := range s.ledger {
		if inRange(e.CreatedAt, from, to) {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

// ListLedger returns entries created in [from, to) in insertion order.
func (s *MemoryStorage) ListLedger(_ context.Context, from, to time.Time) ([]*types.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.LedgerEntry
	for _, e := range s.ledger {
		if inRange(e.CreatedAt, from, to) {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

// GetDailyStats returns the stats for day, zeroed if absent.
func (s *MemoryStorage) GetDailyStats(_ context.Context, day string) (*types.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.daily[day]; ok {
		c := *st
		return &c, nil
	}
	return &types.DailyStats{Day: day}, nil
}

// RecordDailyTrade adds exposure and a trade to day.
func (s *MemoryStorage) RecordDailyTrade(_ context.Context, day string, exposure decimal.Decimal, failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.daily[day]
	if !ok {
		st = &types.DailyStats{Day: day}
		s.daily[day] = st
	}
	st.Exposure = st.Exposure.Add(exposure)
	st.TradeCount++
	if failed {
		st.Failures++
	}
	return nil
}

// AppendRiskEvent records a risk event.
func (s *MemoryStorage) AppendRiskEvent(_ context.Context, e *types.RiskEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *e
	s.riskEvents = append(s.riskEvents, &c)
	return nil
}

// RiskEvents returns all recorded risk events.
func (s *MemoryStorage) RiskEvents() []*types.RiskEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]*types.RiskEvent(nil), s.riskEvents...)
}

// Close is a no-op for memory storage.
func (s *MemoryStorage) Close() error {
	s.logger.Info("closing-memory-storage")
	return nil
}
