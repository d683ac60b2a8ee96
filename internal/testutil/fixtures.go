// Package testutil holds fixtures and scripted collaborators shared by tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// D parses a decimal literal and panics on malformed input.
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Market creates an active binary market with tokens <id>-yes and <id>-no,
// a 0.01 tick and a 5 share minimum.
func Market(id string, endTime time.Time) *types.Market {
	return &types.Market{
		ID:           id,
		Slug:         id + "-slug",
		Question:     "Test market " + id,
		YesTokenID:   id + "-yes",
		NoTokenID:    id + "-no",
		Status:       types.MarketActive,
		EndTime:      endTime,
		TickSize:     D("0.01"),
		MinOrderSize: D("5"),
	}
}

// Levels builds book levels from price, size pairs.
func Levels(pairs ...string) []types.Level {
	if len(pairs)%2 != 0 {
		panic(fmt.Sprintf("testutil.Levels: odd number of arguments (%d)", len(pairs)))
	}

	levels := make([]types.Level, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		levels = append(levels, types.Level{Price: D(pairs[i]), Size: D(pairs[i+1])})
	}

	return levels
}

// MarketBook pairs YES and NO books for a market created by Market.
func MarketBook(m *types.Market, yesBids, yesAsks, noBids, noAsks []types.Level, ts time.Time) *types.MarketBook {
	return types.NewMarketBook(m.ID,
		types.NewOrderBook(m.YesTokenID, yesBids, yesAsks, ts),
		types.NewOrderBook(m.NoTokenID, noBids, noAsks, ts))
}
