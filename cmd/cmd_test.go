package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mselser95/dualleg-arb/pkg/types"
	"github.com/mselser95/dualleg-arb/pkg/wallet"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// TestCommands_Registered tests every command hangs off the root command
func TestCommands_Registered(t *testing.T) {
	want := []string{"run", "migrate", "review", "ledger", "balance", "list-markets", "watch-orderbook"}

	for _, name := range want {
		t.Run(name, func(t *testing.T) {
			found, _, err := rootCmd.Find([]string{name})
			if err != nil {
				t.Fatalf("find %s: %v", name, err)
			}

			if found.Name() != name {
				t.Errorf("expected command %s, got %s", name, found.Name())
			}

			if found.RunE == nil {
				t.Errorf("%s RunE function is nil", name)
			}
		})
	}
}

// TestCommands_Flags tests flag names, shorthands and defaults
func TestCommands_Flags(t *testing.T) {
	tests := []struct {
		cmd       *cobra.Command
		flag      string
		shorthand string
		defValue  string
	}{
		{cmd: runCmd, flag: "market", shorthand: "m", defValue: "[]"},
		{cmd: reviewCmd, flag: "all", shorthand: "a", defValue: "false"},
		{cmd: ledgerCmd, flag: "day", shorthand: "d", defValue: ""},
		{cmd: balanceCmd, flag: "rpc", shorthand: "r", defValue: ""},
		{cmd: listMarketsCmd, flag: "limit", shorthand: "l", defValue: "20"},
		{cmd: listMarketsCmd, flag: "sort", shorthand: "s", defValue: "volume24hr"},
		{cmd: listMarketsCmd, flag: "binary-only", shorthand: "b", defValue: "false"},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Name()+"/"+tt.flag, func(t *testing.T) {
			f := tt.cmd.Flags().Lookup(tt.flag)
			if f == nil {
				t.Fatalf("%s flag not defined", tt.flag)
			}

			if f.Shorthand != tt.shorthand {
				t.Errorf("expected %s shorthand '%s', got '%s'", tt.flag, tt.shorthand, f.Shorthand)
			}

			if f.DefValue != tt.defValue {
				t.Errorf("expected %s default '%s', got '%s'", tt.flag, tt.defValue, f.DefValue)
			}
		})
	}
}

// TestWatchOrderbookCommand_Args tests the slug argument is required
func TestWatchOrderbookCommand_Args(t *testing.T) {
	if err := watchOrderbookCmd.Args(watchOrderbookCmd, nil); err == nil {
		t.Error("expected error without a market slug")
	}

	if err := watchOrderbookCmd.Args(watchOrderbookCmd, []string{"some-slug"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDayRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)

	from, to, err := dayRange("", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !from.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %s", from)
	}
	if to.Sub(from) != 24*time.Hour {
		t.Errorf("range = %s, want 24h", to.Sub(from))
	}

	from, _, err = dayRange("2026-01-02", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !from.Equal(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %s", from)
	}

	if _, _, err := dayRange("02/01/2026", now); err == nil {
		t.Error("expected error for malformed day")
	}
}

func TestRenderPositions(t *testing.T) {
	var buf bytes.Buffer
	renderPositions(&buf, []*types.Position{{
		ID:        "p1",
		MarketID:  "m1",
		YesShares: d("10"),
		NoShares:  d("8"),
		YesCost:   d("4.5"),
		NoCost:    d("3.6"),
		Status:    types.PositionNeedsReview,
		Reason:    "leg-timeout",
		UpdatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	for _, want := range []string{"p1", "m1", "needs_review", "0.800", "$8.10", "leg-timeout", "1 position(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderPositions_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderPositions(&buf, nil)

	if !strings.Contains(buf.String(), "No positions found") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestRenderLedger(t *testing.T) {
	var buf bytes.Buffer
	entries := []*types.LedgerEntry{
		{PositionID: "p1", Amount: d("1.9"), Type: types.PnLTradeResolution, CreatedAt: time.Now()},
		{PositionID: "p2", Amount: d("-0.5"), Type: types.PnLAdjustment, Reason: "claim-abandoned", CreatedAt: time.Now()},
	}
	renderLedger(&buf, entries, d("1.4"))

	out := buf.String()
	for _, want := range []string{"p1", "trade_resolution", "$1.9000", "adjustment", "$-0.5000", "Total: $1.4000 across 2 entries"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderBalances(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	tests := []struct {
		name     string
		balances *wallet.Balances
		want     []string
	}{
		{
			name:     "ready",
			balances: &wallet.Balances{Gas: d("0.5"), Collateral: d("25"), Allowance: d("1000")},
			want:     []string{addr.Hex(), "25.00 USDC", "Ready to trade: YES"},
		},
		{
			name:     "missing allowance",
			balances: &wallet.Balances{Gas: d("0.5"), Collateral: d("0.5"), Allowance: decimal.Zero},
			want:     []string{"Ready to trade: NO", "Need more USDC", "not approved"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderBalances(&buf, addr, tt.balances)

			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestRenderMarkets(t *testing.T) {
	list := []types.GammaMarket{
		{
			Slug:     "binary-market",
			Question: "Will it rain?",
			Tokens:   []types.Token{{TokenID: "y", Outcome: "Yes"}, {TokenID: "n", Outcome: "No"}},
		},
		{
			Slug:     "multi-market",
			Question: "Who wins?",
			Tokens:   []types.Token{{TokenID: "a", Outcome: "A"}, {TokenID: "b", Outcome: "B"}, {TokenID: "c", Outcome: "C"}},
		},
	}

	var buf bytes.Buffer
	renderMarkets(&buf, list, false)
	if !strings.Contains(buf.String(), "multi-market") || !strings.Contains(buf.String(), "Showing 2 of 2") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}

	buf.Reset()
	renderMarkets(&buf, list, true)
	if strings.Contains(buf.String(), "multi-market") {
		t.Errorf("binary-only output lists multi-outcome market:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "Showing 1 of 2") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestPrintBookLine(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yes := types.NewOrderBook("y", nil, []types.Level{{Price: d("0.46"), Size: d("100")}}, now)
	no := types.NewOrderBook("n", nil, []types.Level{{Price: d("0.50"), Size: d("40")}}, now)

	var buf bytes.Buffer
	printBookLine(&buf, types.NewMarketBook("m1", yes, no), d("0.015"), now)

	out := buf.String()
	for _, want := range []string{"YES ask 0.46@100.00", "NO ask 0.5@40.00", "combined 0.96", "spread 0.04", "OPPORTUNITY"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	empty := types.NewOrderBook("n", nil, nil, now)
	printBookLine(&buf, types.NewMarketBook("m1", yes, empty), d("0.015"), now)
	if !strings.Contains(buf.String(), "combined N/A") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}
