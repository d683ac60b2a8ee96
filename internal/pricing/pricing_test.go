package pricing

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func asks(levels ...string) []types.Level {
	out := make([]types.Level, 0, len(levels)/2)
	for i := 0; i+1 < len(levels); i += 2 {
		out = append(out, types.Level{Price: d(levels[i]), Size: d(levels[i+1])})
	}
	return out
}

func book(levels ...string) *types.OrderBook {
	return types.NewOrderBook("tok", nil, asks(levels...), time.Now())
}

func TestLimitPrice(t *testing.T) {
	tests := []struct {
		name   string
		book   *types.OrderBook
		buffer string
		tick   string
		want   string
	}{
		{name: "ask-plus-buffer", book: book("0.46", "100"), buffer: "0.02", tick: "0.01", want: "0.48"},
		{name: "snaps-down-to-tick", book: book("0.46", "100"), buffer: "0.025", tick: "0.01", want: "0.48"},
		{name: "zero-buffer", book: book("0.46", "100"), buffer: "0", tick: "0.01", want: "0.46"},
		{name: "capped-below-one", book: book("0.985", "10"), buffer: "0.02", tick: "0.001", want: "0.999"},
		{name: "capped-at-one-minus-tick", book: book("0.98", "10"), buffer: "0.05", tick: "0.01", want: "0.99"},
		{name: "coarse-tick-never-below-ask", book: book("0.465", "10"), buffer: "0", tick: "0.01", want: "0.465"},
		{name: "default-tick", book: book("0.50", "10"), buffer: "0.02", tick: "0", want: "0.52"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LimitPrice(tt.book, d(tt.buffer), d(tt.tick))
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "LimitPrice() = %s, want %s", got, tt.want)
		})
	}
}

func TestLimitPrice_NoAsks(t *testing.T) {
	_, err := LimitPrice(book(), d("0.02"), d("0.01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoLiquidity))
}

// Limit prices must track the book: two snapshots with different best asks
// can never produce the same limit price.
func TestLimitPrice_TracksSnapshot(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	buffer, tick := d("0.02"), d("0.01")
	seen := make(map[string]int)

	for i := 0; i < 500; i++ {
		a := decimal.New(int64(rng.Intn(96)+1), -2)
		b := decimal.New(int64(rng.Intn(96)+1), -2)

		pa, err := LimitPrice(book(a.String(), "10"), buffer, tick)
		require.NoError(t, err)
		pb, err := LimitPrice(book(b.String(), "10"), buffer, tick)
		require.NoError(t, err)

		if !a.Equal(b) {
			assert.False(t, pa.Equal(pb), "asks %s and %s produced the same limit %s", a, b, pa)
		}
		assert.True(t, pa.Sub(a).Equal(buffer), "limit %s should be ask %s plus buffer", pa, a)
		seen[pa.String()]++
	}

	assert.Greater(t, len(seen), 50, "limit prices should vary with the snapshot")
}

func TestSellLimitPrice(t *testing.T) {
	b := types.NewOrderBook("tok", asks("0.44", "10", "0.40", "20"), nil, time.Now())

	got, err := SellLimitPrice(b, d("0.02"), d("0.01"))
	require.NoError(t, err)
	assert.True(t, got.Equal(d("0.42")), got.String())

	_, err = SellLimitPrice(book("0.5", "1"), d("0.02"), d("0.01"))
	assert.ErrorIs(t, err, types.ErrNoLiquidity)
}

func TestDepthAtOrBelow(t *testing.T) {
	b := book("0.46", "10", "0.47", "15", "0.50", "100")

	assert.True(t, DepthAtOrBelow(b, d("0.45")).IsZero())
	assert.True(t, DepthAtOrBelow(b, d("0.46")).Equal(d("10")))
	assert.True(t, DepthAtOrBelow(b, d("0.48")).Equal(d("25")))
	assert.True(t, DepthAtOrBelow(b, d("0.99")).Equal(d("125")))
}

func TestWalkAsks(t *testing.T) {
	b := book("0.46", "10", "0.47", "15", "0.50", "100")

	fill := WalkAsks(b, d("20"), d("0.48"))
	assert.True(t, fill.Shares.Equal(d("20")))
	// 10*0.46 + 10*0.47
	assert.True(t, fill.Notional.Equal(d("9.3")), fill.Notional.String())
	assert.True(t, fill.AvgPrice().Equal(d("0.465")))

	partial := WalkAsks(b, d("50"), d("0.47"))
	assert.True(t, partial.Shares.Equal(d("25")))
}

func TestWalkBids(t *testing.T) {
	b := types.NewOrderBook("tok", asks("0.44", "10", "0.40", "20"), nil, time.Now())

	fill := WalkBids(b, d("15"), d("0.42"))
	assert.True(t, fill.Shares.Equal(d("10")))
	assert.True(t, fill.Notional.Equal(d("4.4")))
}

func TestPairDepth(t *testing.T) {
	yes := book("0.46", "10", "0.48", "50")
	no := book("0.50", "30", "0.52", "100")

	// Pairs: 10 @ 0.96, then 20 @ 0.98 (exceeds 0.97 cap).
	q := PairDepth(yes, no, d("0.48"), d("0.52"), d("0.97"))
	assert.True(t, q.Shares.Equal(d("10")), q.Shares.String())
	assert.True(t, q.Cost().Equal(d("9.6")))

	q = PairDepth(yes, no, d("0.48"), d("0.52"), d("0.985"))
	assert.True(t, q.Shares.Equal(d("30")), q.Shares.String())
	assert.True(t, q.Yes.Notional.Equal(d("14.2")), q.Yes.Notional.String())
	assert.True(t, q.No.Notional.Equal(d("15")), q.No.Notional.String())

	q = PairDepth(yes, no, d("0.46"), d("0.52"), d("1"))
	assert.True(t, q.Shares.Equal(d("10")), "yes limit bounds the walk")

	empty := PairDepth(yes, book(), d("1"), d("1"), d("1"))
	assert.True(t, empty.Shares.IsZero())
}
