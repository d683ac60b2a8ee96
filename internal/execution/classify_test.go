package execution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

func TestClassifyFills(t *testing.T) {
	result := func(status types.OrderStatus, shares string) *types.OrderResult {
		return &types.OrderResult{Status: status, FilledSize: d(shares)}
	}

	tests := []struct {
		name string
		yes  *types.OrderResult
		no   *types.OrderResult
		want AttemptState
	}{
		{"both filled", result(types.OrderFilled, "20"), result(types.OrderFilled, "20"), StateBothFilled},
		{"both unfilled", result(types.OrderUnfilled, "0"), result(types.OrderUnfilled, "0"), StateBothUnfilled},
		{"rejected and unfilled", result(types.OrderRejected, "0"), result(types.OrderUnfilled, "0"), StateBothUnfilled},
		{"yes only", result(types.OrderFilled, "20"), result(types.OrderUnfilled, "0"), StateOneLegFilled},
		{"no only", result(types.OrderUnfilled, "0"), result(types.OrderPartiallyFilled, "7"), StateOneLegFilled},
		{"one partial", result(types.OrderFilled, "20"), result(types.OrderPartiallyFilled, "8"), StatePartiallyFilled},
		{"nil leg", result(types.OrderFilled, "20"), nil, StateOneLegFilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyFills(tt.yes, tt.no))
		})
	}
}

func TestEvaluateHedge(t *testing.T) {
	minRatio, critical := d("0.8"), d("0.5")

	tests := []struct {
		name string
		yes  string
		no   string
		want HedgeAction
	}{
		{"perfect", "20", "20", Hedged},
		{"exactly min ratio", "100", "80", Hedged},
		{"just below min ratio", "100", "79.99", Rebalance},
		{"exactly critical ratio", "40", "80", Rebalance},
		{"just below critical", "100", "49.99", RebalanceCritical},
		{"one leg empty", "20", "0", RebalanceCritical},
		{"both empty", "0", "0", Hedged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateHedge(d(tt.yes), d(tt.no), minRatio, critical)
			assert.Equal(t, tt.want, got, "ratio %s", types.HedgeRatio(d(tt.yes), d(tt.no)))
		})
	}
}

func TestHedgeActionString(t *testing.T) {
	assert.Equal(t, "hedged", Hedged.String())
	assert.Equal(t, "rebalance", Rebalance.String())
	assert.Equal(t, "rebalance_critical", RebalanceCritical.String())
	assert.Equal(t, "unknown", HedgeAction(9).String())
}

func TestAggregate(t *testing.T) {
	legs := []LegOutcome{
		{Result: types.OrderResult{Status: types.OrderFilled, FilledSize: d("10")}},
		{Result: types.OrderResult{Status: types.OrderPartiallyFilled, FilledSize: d("4")}},
	}

	agg := aggregate(legs)
	assert.Equal(t, types.OrderPartiallyFilled, agg.Status)
	assert.True(t, agg.FilledSize.Equal(d("14")))

	empty := aggregate(nil)
	assert.Equal(t, types.OrderUnfilled, empty.Status)
	assert.True(t, empty.FilledSize.Equal(decimal.Zero))
}
