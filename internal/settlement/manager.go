// Package settlement queues positions of resolved markets, claims their
// proceeds and writes the realized result to the ledger.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Claimer converts a resolved position into collateral.
type Claimer interface {
	ClaimSettlement(ctx context.Context, e *types.SettlementEntry) (decimal.Decimal, error)
}

// Store is the persistence the manager needs.
type Store interface {
	ListPositions(ctx context.Context, statuses ...types.PositionStatus) ([]*types.Position, error)
	ListPositionsByMarket(ctx context.Context, marketID string) ([]*types.Position, error)
	SavePosition(ctx context.Context, p *types.Position) error
	ResolvePosition(ctx context.Context, p *types.Position, entry *types.LedgerEntry) error
	EnqueueSettlement(ctx context.Context, e *types.SettlementEntry) error
	GetSettlement(ctx context.Context, positionID string) (*types.SettlementEntry, error)
	ListDueSettlements(ctx context.Context, now time.Time, limit int) ([]*types.SettlementEntry, error)
	UpdateSettlement(ctx context.Context, e *types.SettlementEntry) error
	CompleteSettlement(ctx context.Context, e *types.SettlementEntry, entry *types.LedgerEntry, status types.PositionStatus) error
}

// Config holds settlement manager configuration.
type Config struct {
	Store          Store
	Claimer        Claimer
	Markets        MarketSource
	Logger         *zap.Logger
	SweepInterval  time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Concurrency    int
	StaleAfter     time.Duration
	Now            func() time.Time
}

// SweepReport summarizes one pass over the due queue.
type SweepReport struct {
	Due     int
	Claimed int
	Failed  int
	GaveUp  int
}

// ResolveReport summarizes one pass of the ambiguous-trade policy.
type ResolveReport struct {
	Empty      int
	WrittenOff int
	Queued     int
	Held       int
}

// Manager owns the settlement queue. Claims for different positions run in
// parallel up to Concurrency; claims for one position are serialized.
type Manager struct {
	store          Store
	claimer        Claimer
	markets        MarketSource
	logger         *zap.Logger
	interval       time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	concurrency    int
	staleAfter     time.Duration
	now            func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	wg sync.WaitGroup
}

// New creates a settlement manager.
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if cfg.Claimer == nil {
		return nil, errors.New("claimer cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	m := &Manager{
		store:          cfg.Store,
		claimer:        cfg.Claimer,
		markets:        cfg.Markets,
		logger:         cfg.Logger,
		interval:       cfg.SweepInterval,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		concurrency:    cfg.Concurrency,
		staleAfter:     cfg.StaleAfter,
		now:            cfg.Now,
		locks:          make(map[string]*sync.Mutex),
	}
	if m.interval <= 0 {
		m.interval = time.Minute
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = 6
	}
	if m.initialBackoff <= 0 {
		m.initialBackoff = time.Minute
	}
	if m.maxBackoff < m.initialBackoff {
		m.maxBackoff = m.initialBackoff
	}
	if m.concurrency <= 0 {
		m.concurrency = 4
	}
	if m.now == nil {
		m.now = time.Now
	}

	return m, nil
}

// Start runs the sweep loop until ctx is canceled.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("settlement-manager-starting",
		zap.Duration("interval", m.interval),
		zap.Int("max-attempts", m.maxAttempts),
		zap.Int("concurrency", m.concurrency))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("settlement-manager-stopping")
				return
			case <-ticker.C:
				m.tick(ctx)
			}
		}
	}()
}

func (m *Manager) tick(ctx context.Context) {
	if _, err := m.Sweep(ctx); err != nil {
		m.logger.Error("settlement-sweep-failed", zap.Error(err))
	}
	if m.staleAfter > 0 {
		if _, err := m.ResolvePending(ctx, m.staleAfter); err != nil {
			m.logger.Error("resolve-pending-failed", zap.Error(err))
		}
	}
}

// Close waits for the sweep loop to exit.
func (m *Manager) Close() {
	m.wg.Wait()
}

// OnMarketClosed logs the positions waiting on a closed market.
func (m *Manager) OnMarketClosed(ctx context.Context, market *types.Market) {
	positions, err := m.store.ListPositionsByMarket(ctx, market.ID)
	if err != nil {
		m.logger.Warn("list-positions-failed", zap.String("market-id", market.ID), zap.Error(err))
		return
	}

	open := 0
	for _, p := range positions {
		if !p.Terminal() {
			open++
		}
	}
	m.logger.Info("market-closed-awaiting-resolution",
		zap.String("market-id", market.ID),
		zap.Int("open-positions", open))
}

// OnMarketResolved queues every unsettled position of market with its entry
// cost fixed at trade time. Positions without shares are closed as stale.
func (m *Manager) OnMarketResolved(ctx context.Context, market *types.Market) error {
	if market.WinningOutcome == "" {
		return fmt.Errorf("market %s resolved without a winner", market.ID)
	}

	positions, err := m.store.ListPositionsByMarket(ctx, market.ID)
	if err != nil {
		return fmt.Errorf("list positions of %s: %w", market.ID, err)
	}

	now := m.now()
	for _, p := range positions {
		if p.Terminal() || p.Status == types.PositionQueuedForSettlement {
			continue
		}

		if p.YesShares.IsZero() && p.NoShares.IsZero() {
			if err := m.resolveEmpty(ctx, p, "no shares at market resolution"); err != nil {
				return err
			}
			continue
		}

		if err := m.queue(ctx, p, market.WinningOutcome, now); err != nil {
			return err
		}
	}

	return nil
}

// queue enqueues a claim for p and marks it QueuedForSettlement.
func (m *Manager) queue(ctx context.Context, p *types.Position, winner types.Outcome, now time.Time) error {
	entry := &types.SettlementEntry{
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Winner:      winner,
		YesShares:   p.YesShares,
		NoShares:    p.NoShares,
		EntryCost:   p.EntryCost(),
		NextRetryAt: now,
		QueuedAt:    now,
	}
	if err := m.store.EnqueueSettlement(ctx, entry); err != nil {
		return fmt.Errorf("enqueue settlement %s: %w", p.ID, err)
	}

	if p.Status == types.PositionNeedsReview {
		m.logger.Warn("settling-position-under-review",
			zap.String("position-id", p.ID),
			zap.String("reason", p.Reason))
	}
	p.Status = types.PositionQueuedForSettlement
	p.UpdatedAt = now
	if err := m.store.SavePosition(ctx, p); err != nil {
		return fmt.Errorf("save position %s: %w", p.ID, err)
	}

	EnqueuedTotal.Inc()
	m.logger.Info("position-queued-for-settlement",
		zap.String("position-id", p.ID),
		zap.String("market-id", p.MarketID),
		zap.String("winner", string(winner)),
		zap.Stringer("yes-shares", p.YesShares),
		zap.Stringer("no-shares", p.NoShares),
		zap.Stringer("entry-cost", entry.EntryCost))

	return nil
}

// Sweep attempts every due claim.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	due, err := m.store.ListDueSettlements(ctx, m.now(), 0)
	if err != nil {
		return report, fmt.Errorf("list due settlements: %w", err)
	}
	report.Due = len(due)
	DueEntries.Set(float64(len(due)))
	if len(due) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, m.concurrency)

	for _, e := range due {
		select {
		case <-ctx.Done():
			wg.Wait()
			return report, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(positionID string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := m.Claim(ctx, positionID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				m.logger.Error("settlement-claim-error", zap.String("position-id", positionID), zap.Error(err))
				report.Failed++
			case result.GaveUp:
				report.GaveUp++
			case result.Claimed:
				report.Claimed++
			default:
				report.Failed++
			}
		}(e.PositionID)
	}
	wg.Wait()

	m.logger.Info("settlement-sweep-completed",
		zap.Int("due", report.Due),
		zap.Int("claimed", report.Claimed),
		zap.Int("failed", report.Failed),
		zap.Int("gave-up", report.GaveUp))

	return report, nil
}

// Claim runs one claim attempt for a position. Claiming an already claimed
// entry is a no-op returning the stored entry.
func (m *Manager) Claim(ctx context.Context, positionID string) (*types.SettlementEntry, error) {
	lock := m.lockFor(positionID)
	lock.Lock()
	defer lock.Unlock()

	e, err := m.store.GetSettlement(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("get settlement %s: %w", positionID, err)
	}
	if e.Claimed {
		ClaimsTotal.WithLabelValues("duplicate").Inc()
		m.logger.Debug("settlement-already-claimed", zap.String("position-id", positionID))
		return e, nil
	}

	start := time.Now()
	proceeds, claimErr := m.claimer.ClaimSettlement(ctx, e)
	ClaimDurationSeconds.Observe(time.Since(start).Seconds())

	now := m.now()
	if claimErr == nil {
		return m.complete(ctx, e, proceeds, now)
	}

	e.Attempts++
	e.LastError = claimErr.Error()

	if e.Attempts >= m.maxAttempts {
		return m.giveUp(ctx, e, now)
	}

	backoff := m.backoff(e.Attempts)
	e.NextRetryAt = now.Add(backoff)
	if err := m.store.UpdateSettlement(ctx, e); err != nil {
		return nil, fmt.Errorf("update settlement %s: %w", positionID, err)
	}

	ClaimsTotal.WithLabelValues("failed").Inc()
	m.logger.Warn("settlement-claim-failed",
		zap.String("position-id", positionID),
		zap.Int("attempt", e.Attempts),
		zap.Duration("backoff", backoff),
		zap.Time("next-retry-at", e.NextRetryAt),
		zap.Error(claimErr))

	return e, nil
}

func (m *Manager) complete(ctx context.Context, e *types.SettlementEntry, proceeds decimal.Decimal, now time.Time) (*types.SettlementEntry, error) {
	e.Proceeds = &proceeds
	e.Claimed = true
	e.ClaimedAt = now
	profit, _ := e.ClaimProfit()

	entry := &types.LedgerEntry{
		ID:         uuid.NewString(),
		PositionID: e.PositionID,
		Amount:     profit,
		Type:       types.PnLSettlementClaim,
		Reason:     fmt.Sprintf("claimed %s for %s winner", proceeds.StringFixed(4), e.Winner),
		CreatedAt:  now,
	}

	err := m.store.CompleteSettlement(ctx, e, entry, types.PositionClaimed)
	if errors.Is(err, types.ErrDuplicateSettlementClaim) {
		ClaimsTotal.WithLabelValues("duplicate").Inc()
		m.logger.Warn("settlement-claim-duplicate", zap.String("position-id", e.PositionID))
		return m.store.GetSettlement(ctx, e.PositionID)
	}
	if err != nil {
		return nil, fmt.Errorf("complete settlement %s: %w", e.PositionID, err)
	}

	ClaimsTotal.WithLabelValues("claimed").Inc()
	ClaimProfitUSD.Observe(profit.InexactFloat64())
	m.logger.Info("settlement-claimed",
		zap.String("position-id", e.PositionID),
		zap.String("market-id", e.MarketID),
		zap.Stringer("proceeds", proceeds),
		zap.Stringer("entry-cost", e.EntryCost),
		zap.Stringer("profit", profit),
		zap.Int("failed-attempts", e.Attempts))

	return e, nil
}

// giveUp closes an entry that exhausted its attempts with a full-loss
// adjustment so it is never retried again.
func (m *Manager) giveUp(ctx context.Context, e *types.SettlementEntry, now time.Time) (*types.SettlementEntry, error) {
	zero := decimal.Zero
	e.Proceeds = &zero
	e.Claimed = true
	e.GaveUp = true
	e.ClaimedAt = now

	entry := &types.LedgerEntry{
		ID:         uuid.NewString(),
		PositionID: e.PositionID,
		Amount:     e.EntryCost.Neg(),
		Type:       types.PnLAdjustment,
		Reason:     fmt.Sprintf("claim abandoned after %d attempts: %s", e.Attempts, e.LastError),
		CreatedAt:  now,
	}

	if err := m.store.CompleteSettlement(ctx, e, entry, types.PositionClaimed); err != nil {
		return nil, fmt.Errorf("abandon settlement %s: %w", e.PositionID, err)
	}

	ClaimsTotal.WithLabelValues("gave_up").Inc()
	m.logger.Error("settlement-claim-abandoned",
		zap.String("position-id", e.PositionID),
		zap.String("market-id", e.MarketID),
		zap.Int("attempts", e.Attempts),
		zap.Stringer("written-off", e.EntryCost),
		zap.String("last-error", e.LastError))

	return e, nil
}

// ResolvePending closes positions older than olderThan that never reached
// settlement. Positions without shares are closed as stale with no ledger
// impact unless they carry a cost. A position whose market has resolved is
// queued for settlement. One-sided positions on a market that is still
// trading or awaiting resolution are held; only those on a market no longer
// tracked are written off at full cost. Hedged positions wait for
// resolution.
func (m *Manager) ResolvePending(ctx context.Context, olderThan time.Duration) (ResolveReport, error) {
	var report ResolveReport

	positions, err := m.store.ListPositions(ctx, types.PositionOpen, types.PositionNeedsReview)
	if err != nil {
		return report, fmt.Errorf("list pending positions: %w", err)
	}

	now := m.now()
	cutoff := now.Add(-olderThan)
	for _, p := range positions {
		if !p.OpenedAt.Before(cutoff) {
			continue
		}

		yes, no := p.YesShares.IsPositive(), p.NoShares.IsPositive()
		if !yes && !no {
			if err := m.resolveEmpty(ctx, p, "no shares after "+olderThan.String()); err != nil {
				return report, err
			}
			report.Empty++
			continue
		}

		market, known := m.market(p.MarketID)
		switch {
		case known && market.Status == types.MarketResolved && market.WinningOutcome != "":
			if err := m.queue(ctx, p, market.WinningOutcome, now); err != nil {
				return report, err
			}
			report.Queued++
		case yes && no:
			// settles at resolution
		case known:
			m.logger.Debug("one-sided-position-held",
				zap.String("position-id", p.ID),
				zap.String("market-id", p.MarketID),
				zap.String("market-status", market.Status.String()))
			report.Held++
		default:
			if err := m.writeOff(ctx, p, olderThan); err != nil {
				return report, err
			}
			report.WrittenOff++
		}
	}

	if report.Empty > 0 || report.WrittenOff > 0 || report.Queued > 0 {
		m.logger.Info("pending-positions-resolved",
			zap.Int("empty", report.Empty),
			zap.Int("written-off", report.WrittenOff),
			zap.Int("queued", report.Queued),
			zap.Int("held", report.Held))
	}

	return report, nil
}

func (m *Manager) market(id string) (*types.Market, bool) {
	if m.markets == nil {
		return nil, false
	}
	return m.markets.Get(id)
}

// resolveEmpty closes a position holding no shares. A non-zero cost left by
// rebalance sells is realized as a trade resolution.
func (m *Manager) resolveEmpty(ctx context.Context, p *types.Position, reason string) error {
	p.Status = types.PositionResolvedStale
	p.Reason = reason
	p.UpdatedAt = m.now()

	var entry *types.LedgerEntry
	if cost := p.EntryCost(); !cost.IsZero() {
		entry = &types.LedgerEntry{
			ID:         uuid.NewString(),
			PositionID: p.ID,
			Amount:     cost.Neg(),
			Type:       types.PnLTradeResolution,
			Reason:     reason,
			CreatedAt:  p.UpdatedAt,
		}
	}

	if err := m.store.ResolvePosition(ctx, p, entry); err != nil {
		return fmt.Errorf("resolve position %s: %w", p.ID, err)
	}

	ResolvedTotal.WithLabelValues("empty").Inc()
	m.logger.Info("position-resolved-stale",
		zap.String("position-id", p.ID),
		zap.String("market-id", p.MarketID),
		zap.String("reason", reason))

	return nil
}

func (m *Manager) writeOff(ctx context.Context, p *types.Position, olderThan time.Duration) error {
	cost := p.EntryCost()
	p.Status = types.PositionResolvedStale
	p.Reason = "one-sided exposure on untracked market written off at full cost"
	p.UpdatedAt = m.now()

	entry := &types.LedgerEntry{
		ID:         uuid.NewString(),
		PositionID: p.ID,
		Amount:     cost.Neg(),
		Type:       types.PnLTradeResolution,
		Reason:     fmt.Sprintf("one-sided position unresolved after %s", olderThan),
		CreatedAt:  p.UpdatedAt,
	}
	if err := m.store.ResolvePosition(ctx, p, entry); err != nil {
		return fmt.Errorf("write off position %s: %w", p.ID, err)
	}

	ResolvedTotal.WithLabelValues("written_off").Inc()
	m.logger.Warn("position-written-off",
		zap.String("position-id", p.ID),
		zap.String("market-id", p.MarketID),
		zap.Stringer("yes-shares", p.YesShares),
		zap.Stringer("no-shares", p.NoShares),
		zap.Stringer("loss", cost))

	return nil
}

// backoff doubles from the initial delay per failed attempt, capped at the
// maximum.
func (m *Manager) backoff(attempts int) time.Duration {
	d := m.initialBackoff
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= m.maxBackoff {
			return m.maxBackoff
		}
	}

	return d
}

func (m *Manager) lockFor(positionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l, ok := m.locks[positionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[positionID] = l
	}

	return l
}
