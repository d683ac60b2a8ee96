package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/internal/markets"
	"github.com/mselser95/dualleg-arb/internal/settlement"
	"github.com/mselser95/dualleg-arb/internal/storage"
	"github.com/mselser95/dualleg-arb/internal/testutil"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

type noFetcher struct{}

func (noFetcher) FetchMarket(context.Context, string) (*types.GammaMarket, error) {
	return nil, types.ErrNotFound
}

// Markets that resolved while the engine was down are settled at startup.
func TestApp_SettleResolvedAtStartup(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryStorage(logger)

	registry := markets.NewRegistry()
	won := testutil.Market("m1", time.Now().Add(-time.Hour))
	won.Status = types.MarketResolved
	won.WinningOutcome = types.OutcomeYes
	require.NoError(t, registry.Register(won))
	pending := testutil.Market("m2", time.Now().Add(-time.Hour))
	pending.Status = types.MarketResolved
	require.NoError(t, registry.Register(pending))
	require.NoError(t, registry.Register(testutil.Market("m3", time.Now().Add(time.Hour))))

	for _, p := range []*types.Position{
		{ID: "p1", MarketID: "m1", YesShares: testutil.D("20"), NoShares: testutil.D("20"),
			YesCost: testutil.D("9.2"), NoCost: testutil.D("10"), Status: types.PositionOpen},
		{ID: "p2", MarketID: "m2", YesShares: testutil.D("20"), YesCost: testutil.D("9.6"), Status: types.PositionNeedsReview},
		{ID: "p3", MarketID: "m3", YesShares: testutil.D("20"), NoShares: testutil.D("20"),
			YesCost: testutil.D("9.2"), NoCost: testutil.D("10"), Status: types.PositionOpen},
	} {
		p.OpenedAt = time.Now().Add(-time.Hour)
		require.NoError(t, store.SavePosition(ctx, p))
	}

	settler, err := settlement.New(&settlement.Config{
		Store:   store,
		Claimer: &testutil.MockClaimer{},
		Markets: registry,
		Logger:  logger,
	})
	require.NoError(t, err)

	watcher, err := markets.NewWatcher(markets.WatcherConfig{
		Registry: registry,
		Fetcher:  noFetcher{},
		Handler:  settler,
		Logger:   logger,
	})
	require.NoError(t, err)

	a := &App{ctx: ctx, logger: logger, registry: registry, settlement: settler, watcher: watcher}
	assert.Equal(t, 1, a.settleResolved())

	statuses := map[string]types.PositionStatus{
		"p1": types.PositionQueuedForSettlement,
		"p2": types.PositionNeedsReview,
		"p3": types.PositionOpen,
	}
	for id, want := range statuses {
		p, err := store.GetPosition(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, p.Status, id)
	}

	// m2 came back resolved without a winner; the watcher keeps it until
	// the handler succeeds.
	assert.Equal(t, []string{"m2"}, watcher.Retrying())

	report, err := settler.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Claimed)

	pnl, err := store.SumLedger(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, pnl.Equal(testutil.D("0.8")), "pnl %s", pnl)
}
