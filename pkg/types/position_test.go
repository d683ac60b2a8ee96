package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHedgeRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{name: "both-zero", a: "0", b: "0", want: "1"},
		{name: "yes-zero", a: "0", b: "10", want: "0"},
		{name: "no-zero", a: "10", b: "0", want: "0"},
		{name: "equal", a: "20", b: "20", want: "1"},
		{name: "partial", a: "100", b: "40", want: "0.4"},
		{name: "symmetric", a: "40", b: "100", want: "0.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HedgeRatio(d(tt.a), d(tt.b))
			assert.True(t, got.Equal(d(tt.want)), "HedgeRatio(%s,%s) = %s, want %s", tt.a, tt.b, got, tt.want)
		})
	}
}

func TestPosition_ExpectedProfitAndExposure(t *testing.T) {
	p := &Position{
		YesShares: d("20"), YesCost: d("9.2"),
		NoShares: d("20"), NoCost: d("10"),
	}
	assert.True(t, p.ExpectedProfit().Equal(d("0.8")))
	assert.True(t, p.UnhedgedExposure().IsZero())

	p.NoShares, p.NoCost = d("8"), d("4")
	// 12 excess YES shares at 0.46 each
	assert.True(t, p.UnhedgedExposure().Equal(d("5.52")), p.UnhedgedExposure().String())
}

func TestGammaMarket_ToMarket(t *testing.T) {
	raw := `{"id":"1","slug":"btc-up","active":true,"closed":true,
		"outcomes":"[\"Yes\",\"No\"]","clobTokenIds":"[\"t-yes\",\"t-no\"]",
		"outcomePrices":"[\"0\",\"1\"]","umaResolutionStatus":"resolved",
		"orderPriceMinTickSize":0.01,"orderMinSize":5}`

	var gm GammaMarket
	if err := gm.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}

	m, err := gm.ToMarket()
	if err != nil {
		t.Fatalf("ToMarket() error = %v", err)
	}
	assert.Equal(t, "t-yes", m.YesTokenID)
	assert.Equal(t, "t-no", m.NoTokenID)
	assert.Equal(t, MarketResolved, m.Status)
	assert.Equal(t, OutcomeNo, m.WinningOutcome)
	assert.True(t, m.TickSize.Equal(d("0.01")))
}
