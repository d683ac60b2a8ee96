package arbitrage

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/internal/risk"
	"github.com/mselser95/dualleg-arb/internal/sizing"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeMarkets map[string]*types.Market

func (f fakeMarkets) Get(id string) (*types.Market, bool) {
	m, ok := f[id]
	return m, ok
}

func (f fakeMarkets) ActiveIDs() []string {
	var ids []string
	for id, m := range f {
		if m.Status == types.MarketActive {
			ids = append(ids, id)
		}
	}
	return ids
}

type fakeCapital struct {
	capital risk.Capital
}

func (f fakeCapital) Capital(string) risk.Capital {
	return f.capital
}

func testMarket() *types.Market {
	return &types.Market{
		ID:           "m1",
		Slug:         "btc-up-or-down",
		YesTokenID:   "yes-token",
		NoTokenID:    "no-token",
		Status:       types.MarketActive,
		EndTime:      testNow.Add(10 * time.Minute),
		TickSize:     d("0.01"),
		MinOrderSize: d("5"),
	}
}

func testBook(yesAsk, yesSize, noAsk, noSize string, ts time.Time) *types.MarketBook {
	yes := types.NewOrderBook("yes-token",
		[]types.Level{{Price: d("0.01"), Size: d("100")}},
		[]types.Level{{Price: d(yesAsk), Size: d(yesSize)}}, ts)
	no := types.NewOrderBook("no-token",
		[]types.Level{{Price: d("0.01"), Size: d("100")}},
		[]types.Level{{Price: d(noAsk), Size: d(noSize)}}, ts)

	return types.NewMarketBook("m1", yes, no)
}

func newTestDetector(t *testing.T, markets fakeMarkets) *Detector {
	t.Helper()

	sizer, err := sizing.New(sizing.Config{
		MaxTradeSizeUSD:  d("50"),
		MaxPerWindowUSD:  d("100"),
		BalanceSizingPct: d("0.10"),
	})
	require.NoError(t, err)

	det, err := New(Config{
		Enabled:          true,
		MinSpread:        d("0.02"),
		MinTimeRemaining: 2 * time.Minute,
		MaxBookAge:       2 * time.Second,
		SlippageBuffer:   d("0.01"),
		Sizer:            sizer,
		Markets:          markets,
		Capital:          fakeCapital{capital: risk.Capital{Balance: d("10000")}},
		Logger:           zaptest.NewLogger(t),
		Now:              func() time.Time { return testNow },
	})
	require.NoError(t, err)

	return det
}

func TestDetector_EmitsSignal(t *testing.T) {
	det := newTestDetector(t, fakeMarkets{"m1": testMarket()})

	signals := det.OnMarketData(testBook("0.48", "100", "0.48", "100", testNow))
	require.Len(t, signals, 1)

	s := signals[0]
	assert.Equal(t, StrategyName, s.Strategy)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.Spread.Equal(d("0.04")))
	assert.True(t, s.CombinedAsk.Equal(d("0.96")))
	assert.True(t, s.Yes.LimitPrice.Equal(d("0.49")))
	assert.True(t, s.No.LimitPrice.Equal(d("0.49")))
	assert.Equal(t, "yes-token", s.Yes.TokenID)
	assert.Equal(t, "no-token", s.No.TokenID)
	// 50 USD / 0.98 per pair, truncated.
	assert.True(t, s.Size().Equal(d("51.02")), "size = %s", s.Size())
	assert.Equal(t, 1, s.Tranches)
	assert.NotNil(t, s.Book)
}

func TestDetector_Rejections(t *testing.T) {
	closed := testMarket()
	closed.Status = types.MarketClosed

	closing := testMarket()
	closing.EndTime = testNow.Add(time.Minute)

	tests := []struct {
		name    string
		markets fakeMarkets
		book    *types.MarketBook
	}{
		{
			name:    "spread-below-threshold",
			markets: fakeMarkets{"m1": testMarket()},
			book:    testBook("0.50", "100", "0.49", "100", testNow),
		},
		{
			name:    "stale-book",
			markets: fakeMarkets{"m1": testMarket()},
			book:    testBook("0.48", "100", "0.48", "100", testNow.Add(-3*time.Second)),
		},
		{
			name:    "unknown-market",
			markets: fakeMarkets{},
			book:    testBook("0.48", "100", "0.48", "100", testNow),
		},
		{
			name:    "market-closed",
			markets: fakeMarkets{"m1": closed},
			book:    testBook("0.48", "100", "0.48", "100", testNow),
		},
		{
			name:    "too-close-to-end",
			markets: fakeMarkets{"m1": closing},
			book:    testBook("0.48", "100", "0.48", "100", testNow),
		},
		{
			name:    "insufficient-depth",
			markets: fakeMarkets{"m1": testMarket()},
			book:    testBook("0.48", "3", "0.48", "100", testNow),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := newTestDetector(t, tt.markets)
			assert.Empty(t, det.OnMarketData(tt.book))
		})
	}
}

func TestDetector_NoAsks(t *testing.T) {
	det := newTestDetector(t, fakeMarkets{"m1": testMarket()})

	book := testBook("0.48", "100", "0.48", "100", testNow)
	book.No.Asks = nil

	assert.Empty(t, det.OnMarketData(book))
}

func TestDetector_WindowBudgetExhausted(t *testing.T) {
	det := newTestDetector(t, fakeMarkets{"m1": testMarket()})
	det.config.Capital = fakeCapital{capital: risk.Capital{Balance: d("10000"), MarketExposure: d("98")}}

	// 2 USD left in the window buys fewer than 5 shares.
	assert.Empty(t, det.OnMarketData(testBook("0.48", "100", "0.48", "100", testNow)))
}

// Every emitted signal is priced from its own book and clears the threshold.
func TestDetector_SignalsMatchBook(t *testing.T) {
	det := newTestDetector(t, fakeMarkets{"m1": testMarket()})
	rng := rand.New(rand.NewSource(7))
	maxCombined := one.Sub(d("0.02"))

	emitted := 0
	for i := 0; i < 500; i++ {
		yesAsk := decimal.NewFromInt(int64(30 + rng.Intn(40))).Div(decimal.NewFromInt(100))
		noAsk := decimal.NewFromInt(int64(30 + rng.Intn(40))).Div(decimal.NewFromInt(100))
		size := decimal.NewFromInt(int64(1 + rng.Intn(200)))

		book := testBook(yesAsk.String(), size.String(), noAsk.String(), "150", testNow)
		for _, s := range det.OnMarketData(book) {
			emitted++
			assert.True(t, s.Yes.BestAsk.Add(s.No.BestAsk).LessThanOrEqual(maxCombined))
			assert.True(t, s.Yes.BestAsk.Equal(yesAsk))
			assert.True(t, s.No.BestAsk.Equal(noAsk))
			assert.True(t, s.Yes.LimitPrice.GreaterThanOrEqual(yesAsk))
			assert.True(t, s.No.LimitPrice.GreaterThanOrEqual(noAsk))
			assert.True(t, s.Size().LessThanOrEqual(size))
			assert.Same(t, book, s.Book)
		}
	}
	assert.Positive(t, emitted)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
