package risk

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/internal/storage"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(by time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(by)
}

type staticBalance struct{ amount decimal.Decimal }

func (s staticBalance) GetBalance(context.Context) (decimal.Decimal, error) { return s.amount, nil }

func newTestManager(t *testing.T, limits types.RiskLimits) (*Manager, *storage.MemoryStorage, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := storage.NewMemoryStorage(zaptest.NewLogger(t))

	m, err := New(&Config{
		Limits:  limits,
		Store:   store,
		Balance: staticBalance{amount: d("1000")},
		Logger:  zaptest.NewLogger(t),
		Now:     clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, m.RefreshBalance(context.Background()))
	require.NoError(t, m.Tick(context.Background()))

	return m, store, clock
}

func testSignal() *types.TradingSignal {
	return &types.TradingSignal{
		MarketID: "m1",
		Yes:      types.SignalLeg{Outcome: types.OutcomeYes, LimitPrice: d("0.48"), Size: d("20")},
		No:       types.SignalLeg{Outcome: types.OutcomeNo, LimitPrice: d("0.52"), Size: d("20")},
	}
}

func appendPnL(t *testing.T, store *storage.MemoryStorage, id string, amount string, at time.Time) {
	t.Helper()
	require.NoError(t, store.AppendLedger(context.Background(), &types.LedgerEntry{
		ID: id, PositionID: id, Amount: d(amount), Type: types.PnLTradeResolution, CreatedAt: at,
	}))
}

func TestNew_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage(logger)

	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{name: "nil-config", config: nil, errMsg: "config cannot be nil"},
		{name: "nil-store", config: &Config{Limits: testLimits(), Logger: logger}, errMsg: "store cannot be nil"},
		{name: "nil-logger", config: &Config{Limits: testLimits(), Store: store}, errMsg: "logger cannot be nil"},
		{name: "zero-loss", config: &Config{Limits: types.RiskLimits{MaxDailyExposure: d("1")}, Store: store, Logger: logger}, errMsg: "max daily loss must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			require.Error(t, err)
			assert.Equal(t, tt.errMsg, err.Error())
		})
	}
}

func TestCheck_Normal(t *testing.T) {
	m, _, _ := newTestManager(t, testLimits())

	dec := m.Check(testSignal(), d("5"))
	assert.True(t, dec.Approved)
	assert.True(t, dec.Size.Equal(d("20")))
	assert.Equal(t, types.LevelNormal, dec.Level)
}

func TestCheck_HaltOnDailyLoss(t *testing.T) {
	m, store, clock := newTestManager(t, testLimits())
	ctx := context.Background()

	appendPnL(t, store, "loss", "-101", clock.Now())
	require.NoError(t, m.Recompute(ctx))

	assert.Equal(t, types.LevelHalt, m.Level())

	dec := m.Check(testSignal(), d("5"))
	assert.False(t, dec.Approved)
	assert.Equal(t, types.LevelHalt, dec.Level)
	assert.True(t, strings.HasPrefix(dec.Reason, "circuit breaker halt"), dec.Reason)

	snap := m.Snapshot()
	assert.True(t, snap.DailyPnL.Equal(d("-101")))
	assert.NotEmpty(t, snap.Reason)
}

func TestCheck_CautionResizesOrRejects(t *testing.T) {
	limits := testLimits()
	m, store, clock := newTestManager(t, limits)
	appendPnL(t, store, "loss", "-95", clock.Now())
	require.NoError(t, m.Recompute(context.Background()))
	require.Equal(t, types.LevelCaution, m.Level())

	dec := m.Check(testSignal(), d("5"))
	require.True(t, dec.Approved)
	assert.True(t, dec.Size.Equal(d("10")), dec.Size.String())

	limits.CautionReject = true
	m2, store2, clock2 := newTestManager(t, limits)
	appendPnL(t, store2, "loss", "-95", clock2.Now())
	require.NoError(t, m2.Recompute(context.Background()))

	dec = m2.Check(testSignal(), d("5"))
	assert.False(t, dec.Approved)
}

func TestCheck_ResizeToPositionAndExposureLimits(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSize = d("10") // 10 shares at 1.00 per pair
	m, _, _ := newTestManager(t, limits)

	dec := m.Check(testSignal(), d("5"))
	require.True(t, dec.Approved)
	assert.True(t, dec.Size.Equal(d("10")), dec.Size.String())

	dec = m.Check(testSignal(), d("15"))
	assert.False(t, dec.Approved, "resized below minimum must reject, never round up")
}

func TestCheck_MaxConcurrentPositions(t *testing.T) {
	limits := testLimits()
	limits.MaxConcurrentPositions = 1
	m, store, clock := newTestManager(t, limits)

	require.NoError(t, store.SavePosition(context.Background(), &types.Position{
		ID: "p1", MarketID: "m0", Status: types.PositionOpen, OpenedAt: clock.Now(),
	}))
	require.NoError(t, m.Recompute(context.Background()))

	dec := m.Check(testSignal(), d("5"))
	assert.False(t, dec.Approved)
}

func TestCooldown_RehaltsWhenCausePersists(t *testing.T) {
	limits := testLimits()
	limits.Cooldown = 30 * time.Minute
	m, store, clock := newTestManager(t, limits)
	ctx := context.Background()

	appendPnL(t, store, "loss", "-150", clock.Now())
	require.NoError(t, m.Recompute(ctx))
	first := m.Snapshot()
	require.Equal(t, types.LevelHalt, first.Level)
	assert.Equal(t, 30*time.Minute, first.CooldownRemaining)

	// Profit arrives during cooldown: still halted.
	appendPnL(t, store, "gain", "120", clock.Now())
	clock.Advance(10 * time.Minute)
	require.NoError(t, m.Recompute(ctx))
	assert.Equal(t, types.LevelHalt, m.Level())

	// After cooldown the level is re-evaluated from the ledger: -30 is normal.
	clock.Advance(21 * time.Minute)
	require.NoError(t, m.Recompute(ctx))
	assert.Equal(t, types.LevelNormal, m.Level())

	// A persisting cause re-triggers halt with a fresh cooldown.
	appendPnL(t, store, "loss2", "-80", clock.Now())
	require.NoError(t, m.Recompute(ctx))
	require.Equal(t, types.LevelHalt, m.Level())
	clock.Advance(31 * time.Minute)
	require.NoError(t, m.Recompute(ctx))
	snap := m.Snapshot()
	assert.Equal(t, types.LevelHalt, snap.Level)
	assert.True(t, snap.CooldownUntil.After(clock.Now()))
}

func TestTick_DailyRolloverRecordsEvent(t *testing.T) {
	m, store, clock := newTestManager(t, testLimits())
	ctx := context.Background()

	appendPnL(t, store, "loss", "-150", clock.Now())
	require.NoError(t, m.Recompute(ctx))
	require.Equal(t, types.LevelHalt, m.Level())

	clock.Advance(13 * time.Hour) // past UTC midnight
	require.NoError(t, m.Tick(ctx))

	assert.Equal(t, types.LevelNormal, m.Level())
	assert.True(t, m.Snapshot().DailyPnL.IsZero())
	assert.Equal(t, "2026-03-02", m.Snapshot().Day)

	var resets int
	for _, ev := range store.RiskEvents() {
		if ev.Type == types.RiskEventDailyReset {
			resets++
		}
	}
	assert.Equal(t, 1, resets)
}

func TestRecordTrade_ConsecutiveFailuresHalt(t *testing.T) {
	m, _, _ := newTestManager(t, testLimits())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, m.RecordTrade(ctx, "m1", d("1"), true))
	}
	assert.Equal(t, types.LevelWarning, m.Level())

	require.NoError(t, m.RecordTrade(ctx, "m1", d("1"), true))
	assert.Equal(t, types.LevelHalt, m.Level())
}

func TestCapital_SingleConsistentRead(t *testing.T) {
	m, store, clock := newTestManager(t, testLimits())
	ctx := context.Background()

	require.NoError(t, store.SavePosition(ctx, &types.Position{
		ID: "p1", MarketID: "m1", YesShares: d("20"), NoShares: d("20"),
		YesCost: d("9.2"), NoCost: d("10"), Status: types.PositionOpen, OpenedAt: clock.Now(),
	}))
	require.NoError(t, m.RecordTrade(ctx, "m1", d("19.2"), false))

	c := m.Capital("m1")
	assert.True(t, c.Balance.Equal(d("980.8")), c.Balance.String())
	assert.True(t, c.DailyExposure.Equal(d("19.2")))
	assert.True(t, c.RemainingExposure.Equal(d("980.8")))
	assert.True(t, c.MarketExposure.Equal(d("19.2")))
}

// Once the loss limit is hit, nothing is approved until cooldown expiry
// with a recovered ledger or the daily rollover.
func TestBreaker_MonotonicSafety(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 25; run++ {
		limits := testLimits()
		limits.Cooldown = time.Hour
		m, store, clock := newTestManager(t, limits)
		ctx := context.Background()

		halted := false
		var haltedUntil time.Time
		for step := 0; step < 40; step++ {
			amount := decimal.New(int64(rng.Intn(60)-40), 0)
			appendPnL(t, store, "e-"+decimal.NewFromInt(int64(run*100+step)).String(), amount.String(), clock.Now())
			clock.Advance(time.Duration(rng.Intn(10)) * time.Minute)
			require.NoError(t, m.Recompute(ctx))

			snap := m.Snapshot()
			if !halted && snap.Level == types.LevelHalt {
				halted = true
				haltedUntil = snap.CooldownUntil
			}

			if halted && clock.Now().Before(haltedUntil) {
				dec := m.Check(testSignal(), d("1"))
				require.False(t, dec.Approved, "run %d step %d approved during halt cooldown", run, step)
			}

			pnl, err := store.SumLedger(ctx, types.DayStart(clock.Now()), types.DayStart(clock.Now()).Add(24*time.Hour))
			require.NoError(t, err)
			if pnl.LessThanOrEqual(limits.MaxDailyLoss.Neg()) {
				dec := m.Check(testSignal(), d("1"))
				require.False(t, dec.Approved, "run %d step %d approved with loss %s", run, step, pnl)
			}
		}
	}
}

// The breaker's daily P&L is always the ledger sum for the day.
func TestDailyPnL_EqualsLedgerSum(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	m, store, clock := newTestManager(t, testLimits())
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		amount := decimal.New(int64(rng.Intn(2000)-1000), -2)
		appendPnL(t, store, "x-"+decimal.NewFromInt(int64(i)).String(), amount.String(), clock.Now())
		require.NoError(t, m.Recompute(ctx))

		start := types.DayStart(clock.Now())
		sum, err := store.SumLedger(ctx, start, start.Add(24*time.Hour))
		require.NoError(t, err)
		assert.True(t, sum.Equal(m.Snapshot().DailyPnL), "ledger %s != breaker %s", sum, m.Snapshot().DailyPnL)
	}
}
