// Package risk owns the circuit breaker and the pre-trade risk gate.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Store is the persistence the manager derives its figures from.
type Store interface {
	SumLedger(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
	GetDailyStats(ctx context.Context, day string) (*types.DailyStats, error)
	RecordDailyTrade(ctx context.Context, day string, exposure decimal.Decimal, failed bool) error
	ListPositions(ctx context.Context, statuses ...types.PositionStatus) ([]*types.Position, error)
	AppendRiskEvent(ctx context.Context, event *types.RiskEvent) error
}

// BalanceSource returns the spendable collateral balance.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// Config holds risk manager configuration.
type Config struct {
	Limits                 types.RiskLimits
	Store                  Store
	Balance                BalanceSource
	Logger                 *zap.Logger
	TickInterval           time.Duration
	BalanceRefreshInterval time.Duration
	Now                    func() time.Time
}

// Decision is the outcome of a pre-trade check.
type Decision struct {
	Approved bool
	Size     decimal.Decimal // shares per leg
	Reason   string
	Level    types.BreakerLevel
}

// Capital is a consistent view of the figures used for sizing.
type Capital struct {
	Balance           decimal.Decimal
	DailyExposure     decimal.Decimal
	RemainingExposure decimal.Decimal
	MarketExposure    decimal.Decimal
}

// Manager computes the breaker level from the ledger and daily stats and
// gates proposed trades against it.
type Manager struct {
	limits        types.RiskLimits
	store         Store
	balanceSource BalanceSource
	logger        *zap.Logger
	tickInterval  time.Duration
	balanceEvery  time.Duration
	now           func() time.Time

	mu                  sync.RWMutex
	level               types.BreakerLevel
	reason              string
	triggeredAt         time.Time
	cooldownUntil       time.Time
	day                 string
	dailyPnL            decimal.Decimal
	dailyExposure       decimal.Decimal
	carriedUnhedged     decimal.Decimal
	tradeCount          int
	consecutiveFailures int
	openPositions       int
	marketExposure      map[string]decimal.Decimal
	balance             decimal.Decimal
	lastBalanceCheck    time.Time

	wg sync.WaitGroup
}

// New creates a new risk manager.
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if !cfg.Limits.MaxDailyLoss.IsPositive() {
		return nil, fmt.Errorf("max daily loss must be positive")
	}
	if !cfg.Limits.MaxDailyExposure.IsPositive() {
		return nil, fmt.Errorf("max daily exposure must be positive")
	}
	if cfg.Limits.WarningThreshold.GreaterThan(cfg.Limits.CriticalThreshold) {
		return nil, fmt.Errorf("warning threshold must not exceed critical threshold")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = 30 * time.Second
	}

	return &Manager{
		limits:         cfg.Limits,
		store:          cfg.Store,
		balanceSource:  cfg.Balance,
		logger:         cfg.Logger,
		tickInterval:   tick,
		balanceEvery:   cfg.BalanceRefreshInterval,
		now:            now,
		day:            types.DayKey(now()),
		marketExposure: make(map[string]decimal.Decimal),
	}, nil
}

// Check gates a proposed trade. Risk rejections are ordinary outcomes, not errors.
func (m *Manager) Check(signal *types.TradingSignal, minShares decimal.Decimal) Decision {
	m.mu.RLock()
	level := m.level
	reason := m.reason
	cooldownUntil := m.cooldownUntil
	remaining := m.limits.MaxDailyExposure.Sub(m.dailyExposure.Add(m.carriedUnhedged))
	openPositions := m.openPositions
	m.mu.RUnlock()

	size := signal.Size()
	perShare := signal.Yes.LimitPrice.Add(signal.No.LimitPrice)

	reject := func(code, msg string) Decision {
		DecisionsTotal.WithLabelValues("rejected").Inc()
		RejectionsTotal.WithLabelValues(code).Inc()
		m.logger.Info("trade-rejected",
			zap.String("market-id", signal.MarketID),
			zap.String("reason", msg),
			zap.Stringer("level", level))

		return Decision{Approved: false, Reason: msg, Level: level}
	}

	if level == types.LevelHalt {
		msg := "circuit breaker halt"
		if reason != "" {
			msg = fmt.Sprintf("circuit breaker halt: %s (cooldown remaining %s)",
				reason, m.cooldownRemaining(cooldownUntil).Round(time.Second))
		}
		return reject("halt", msg)
	}

	if level == types.LevelCaution {
		if m.limits.CautionReject {
			return reject("caution", "circuit breaker caution: new entries disabled")
		}
		size = size.Mul(m.limits.CautionSizeFactor)
	}

	if m.limits.MaxConcurrentPositions > 0 && openPositions >= m.limits.MaxConcurrentPositions {
		return reject("max_concurrent_positions",
			fmt.Sprintf("open positions %d at limit %d", openPositions, m.limits.MaxConcurrentPositions))
	}

	if perShare.IsPositive() {
		if m.limits.MaxPositionSize.IsPositive() {
			size = decimal.Min(size, m.limits.MaxPositionSize.Div(perShare))
		}
		if !remaining.IsPositive() {
			return reject("max_daily_exposure", "daily exposure limit reached")
		}
		size = decimal.Min(size, remaining.Div(perShare))
	}

	// Share counts are traded in hundredths; never round up.
	size = size.Truncate(2)
	if !size.IsPositive() || size.LessThan(minShares) {
		return reject("below_min_size",
			fmt.Sprintf("approved size %s below minimum %s", size, minShares))
	}

	if size.LessThan(signal.Size()) {
		DecisionsTotal.WithLabelValues("resized").Inc()
		m.logger.Info("trade-resized",
			zap.String("market-id", signal.MarketID),
			zap.Stringer("requested", signal.Size()),
			zap.Stringer("approved", size),
			zap.Stringer("level", level))
	} else {
		DecisionsTotal.WithLabelValues("approved").Inc()
	}

	return Decision{Approved: true, Size: size, Level: level}
}

// RecordTrade persists a trade attempt and recomputes the breaker level.
// failed marks attempts that ended unhedged or errored.
func (m *Manager) RecordTrade(ctx context.Context, marketID string, committed decimal.Decimal, failed bool) error {
	m.mu.RLock()
	day := m.day
	m.mu.RUnlock()

	if err := m.store.RecordDailyTrade(ctx, day, committed, failed); err != nil {
		return fmt.Errorf("record daily trade: %w", err)
	}

	m.mu.Lock()
	if failed {
		m.consecutiveFailures++
	} else {
		m.consecutiveFailures = 0
	}
	if committed.IsPositive() {
		m.marketExposure[marketID] = m.marketExposure[marketID].Add(committed)
		m.balance = m.balance.Sub(committed)
	}
	m.mu.Unlock()

	return m.Recompute(ctx)
}

// Recompute reloads the daily figures and reapplies the level function.
func (m *Manager) Recompute(ctx context.Context) error {
	now := m.now()
	dayStart := types.DayStart(now)
	day := types.DayKey(now)

	pnl, err := m.store.SumLedger(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return fmt.Errorf("sum ledger: %w", err)
	}

	stats, err := m.store.GetDailyStats(ctx, day)
	if err != nil {
		return fmt.Errorf("get daily stats: %w", err)
	}

	positions, err := m.store.ListPositions(ctx,
		types.PositionOpen, types.PositionNeedsReview, types.PositionQueuedForSettlement)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	carried := decimal.Zero
	open := 0
	byMarket := make(map[string]decimal.Decimal)
	for _, p := range positions {
		byMarket[p.MarketID] = byMarket[p.MarketID].Add(p.EntryCost())
		if p.Status == types.PositionQueuedForSettlement {
			continue
		}
		open++
		if p.Status == types.PositionNeedsReview && p.OpenedAt.Before(dayStart) {
			carried = carried.Add(p.UnhedgedExposure())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if day != m.day {
		// Rollover raced with this recompute; Tick records the reset event.
		return nil
	}

	m.dailyPnL = pnl
	m.dailyExposure = stats.Exposure
	m.tradeCount = stats.TradeCount
	m.carriedUnhedged = carried
	m.openPositions = open
	m.marketExposure = byMarket

	m.applyLevelLocked(ctx, now)

	DailyPnL.Set(pnl.InexactFloat64())
	DailyExposure.Set(stats.Exposure.InexactFloat64())

	return nil
}

// applyLevelLocked recomputes the level, honoring an active halt cooldown.
// Must be called with mu held.
func (m *Manager) applyLevelLocked(ctx context.Context, now time.Time) {
	computed, reason := ComputeLevel(Inputs{
		DailyPnL:            m.dailyPnL,
		Exposure:            m.dailyExposure.Add(m.carriedUnhedged),
		ConsecutiveFailures: m.consecutiveFailures,
	}, m.limits)

	if m.level == types.LevelHalt && now.Before(m.cooldownUntil) {
		return
	}

	if computed == types.LevelHalt {
		m.triggeredAt = now
		m.cooldownUntil = now.Add(m.limits.Cooldown)
		if m.level == types.LevelHalt {
			m.logger.Warn("circuit-breaker-rehalted",
				zap.String("reason", reason),
				zap.Time("cooldown-until", m.cooldownUntil))
		}
	}

	if computed == m.level {
		m.reason = reason
		return
	}

	from := m.level
	m.level = computed
	m.reason = reason
	if computed != types.LevelHalt {
		m.cooldownUntil = time.Time{}
	}

	BreakerLevel.Set(float64(computed))
	LevelChangesTotal.WithLabelValues(computed.String()).Inc()

	logFn := m.logger.Info
	if computed == types.LevelHalt {
		logFn = m.logger.Error
	}
	logFn("circuit-breaker-level-changed",
		zap.Stringer("from", from),
		zap.Stringer("to", computed),
		zap.String("reason", reason),
		zap.Stringer("daily-pnl", m.dailyPnL),
		zap.Stringer("daily-exposure", m.dailyExposure))

	m.recordEventLocked(ctx, &types.RiskEvent{
		Type:      types.RiskEventLevelChange,
		From:      from,
		To:        computed,
		Reason:    reason,
		DailyPnL:  m.dailyPnL,
		Exposure:  m.dailyExposure,
		CreatedAt: now,
	})
}

func (m *Manager) recordEventLocked(ctx context.Context, event *types.RiskEvent) {
	event.ID = uuid.NewString()
	if err := m.store.AppendRiskEvent(ctx, event); err != nil {
		m.logger.Error("risk-event-write-failed",
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

// Tick performs the daily rollover when the UTC day changes, then recomputes.
func (m *Manager) Tick(ctx context.Context) error {
	now := m.now()
	day := types.DayKey(now)

	m.mu.Lock()
	if day != m.day {
		prev := m.day
		m.recordEventLocked(ctx, &types.RiskEvent{
			Type:      types.RiskEventDailyReset,
			From:      m.level,
			To:        types.LevelNormal,
			Reason:    fmt.Sprintf("daily rollover %s -> %s", prev, day),
			DailyPnL:  m.dailyPnL,
			Exposure:  m.dailyExposure,
			CreatedAt: now,
		})

		m.day = day
		m.dailyPnL = decimal.Zero
		m.dailyExposure = decimal.Zero
		m.tradeCount = 0
		m.consecutiveFailures = 0
		m.cooldownUntil = time.Time{}
		m.level = types.LevelNormal
		m.reason = ""
		BreakerLevel.Set(float64(types.LevelNormal))

		m.logger.Info("daily-risk-reset",
			zap.String("previous-day", prev),
			zap.String("day", day))
	}
	m.mu.Unlock()

	return m.Recompute(ctx)
}

// RefreshBalance fetches the collateral balance.
func (m *Manager) RefreshBalance(ctx context.Context) error {
	if m.balanceSource == nil {
		return nil
	}

	start := time.Now()
	defer func() {
		BalanceCheckDuration.Observe(time.Since(start).Seconds())
	}()

	balance, err := m.balanceSource.GetBalance(ctx)
	if err != nil {
		m.logger.Error("failed-to-check-balance", zap.Error(err))
		return fmt.Errorf("get balance: %w", err)
	}

	m.mu.Lock()
	m.balance = balance
	m.lastBalanceCheck = m.now()
	m.mu.Unlock()

	Balance.Set(balance.InexactFloat64())
	m.logger.Debug("balance-checked", zap.Stringer("balance", balance))

	return nil
}

// Capital returns balance and exposure figures from a single locked read.
func (m *Manager) Capital(marketID string) Capital {
	m.mu.RLock()
	defer m.mu.RUnlock()

	remaining := m.limits.MaxDailyExposure.Sub(m.dailyExposure.Add(m.carriedUnhedged))
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return Capital{
		Balance:           m.balance,
		DailyExposure:     m.dailyExposure,
		RemainingExposure: remaining,
		MarketExposure:    m.marketExposure[marketID],
	}
}

// Level returns the current breaker level.
func (m *Manager) Level() types.BreakerLevel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.level
}

// Snapshot returns the current breaker state.
func (m *Manager) Snapshot() types.CircuitBreakerState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return types.CircuitBreakerState{
		Level:               m.level,
		Reason:              m.reason,
		TriggeredAt:         m.triggeredAt,
		CooldownUntil:       m.cooldownUntil,
		CooldownRemaining:   m.cooldownRemaining(m.cooldownUntil),
		DailyPnL:            m.dailyPnL,
		DailyExposure:       m.dailyExposure,
		TradeCount:          m.tradeCount,
		ConsecutiveFailures: m.consecutiveFailures,
		OpenPositions:       m.openPositions,
		Day:                 m.day,
	}
}

func (m *Manager) cooldownRemaining(until time.Time) time.Duration {
	if until.IsZero() {
		return 0
	}
	remaining := until.Sub(m.now())
	if remaining < 0 {
		return 0
	}

	return remaining
}

// Start loads the initial state and launches the tick and balance loops.
func (m *Manager) Start(ctx context.Context) error {
	m.logger.Info("risk-manager-started",
		zap.Duration("tick-interval", m.tickInterval),
		zap.Stringer("max-daily-loss", m.limits.MaxDailyLoss),
		zap.Stringer("max-daily-exposure", m.limits.MaxDailyExposure))

	if err := m.RefreshBalance(ctx); err != nil {
		m.logger.Error("initial-balance-check-failed", zap.Error(err))
	}
	if err := m.Tick(ctx); err != nil {
		return fmt.Errorf("initial recompute: %w", err)
	}

	m.wg.Add(1)
	go m.tickLoop(ctx)

	if m.balanceSource != nil && m.balanceEvery > 0 {
		m.wg.Add(1)
		go m.balanceLoop(ctx)
	}

	return nil
}

func (m *Manager) tickLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("risk-manager-stopped")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.logger.Error("risk-tick-error", zap.Error(err))
			}
		}
	}
}

func (m *Manager) balanceLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.balanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are logged by RefreshBalance; keep monitoring.
			_ = m.RefreshBalance(ctx)
		}
	}
}

// Close waits for background loops to exit.
func (m *Manager) Close() error {
	m.wg.Wait()
	return nil
}
