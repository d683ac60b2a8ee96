package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mselser95/dualleg-arb/internal/app"
	"github.com/mselser95/dualleg-arb/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Check the funding wallet's on-chain balances",
	Long: `Display the holdings of the funding wallet (the proxy address when one is
configured, otherwise the address derived from POLYMARKET_PRIVATE_KEY):
- MATIC balance (for gas)
- USDC balance (for trading)
- USDC allowance (approved to the CTF Exchange)`,
	RunE: runBalance,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringP("rpc", "r", "", "Polygon RPC endpoint (default POLYGON_RPC_URL)")
}

// minTradeCollateral is the least USDC worth reporting as ready to trade.
var minTradeCollateral = decimal.NewFromInt(1) //nolint:gochecknoglobals // constant decimal

func runBalance(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.PolymarketPrivateKey == "" && cfg.PolymarketAddress == "" {
		return errors.New("POLYMARKET_PRIVATE_KEY or POLYMARKET_ADDRESS must be set")
	}

	rpcURL, _ := cmd.Flags().GetString("rpc")
	if rpcURL == "" {
		rpcURL = cfg.PolygonRPCURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := wallet.Dial(ctx, rpcURL, logger)
	if err != nil {
		return fmt.Errorf("connect to Polygon: %w", err)
	}
	defer client.Close()

	address := app.FundingAddress(cfg)
	balances, err := client.GetBalances(ctx, address)
	if err != nil {
		return fmt.Errorf("get balances: %w", err)
	}

	renderBalances(cmd.OutOrStdout(), address, balances)
	return nil
}

func renderBalances(w io.Writer, address common.Address, b *wallet.Balances) {
	fmt.Fprintf(w, "=== Wallet Balance Sheet ===\n\n")
	fmt.Fprintf(w, "Address: %s\n\n", address.Hex())
	fmt.Fprintf(w, "MATIC Balance:  %s MATIC\n", b.Gas.StringFixed(6))
	fmt.Fprintf(w, "USDC Balance:   %s USDC\n", b.Collateral.StringFixed(2))
	fmt.Fprintf(w, "USDC Allowance: %s USDC\n", b.Allowance.StringFixed(2))

	fmt.Fprintf(w, "\nReady to trade: ")
	if b.Collateral.GreaterThanOrEqual(minTradeCollateral) && b.Allowance.IsPositive() {
		fmt.Fprintln(w, "YES")
		return
	}

	fmt.Fprintln(w, "NO")
	if b.Collateral.LessThan(minTradeCollateral) {
		fmt.Fprintln(w, "  - Need more USDC (minimum $1.00)")
	}
	if !b.Allowance.IsPositive() {
		fmt.Fprintln(w, "  - USDC is not approved to the exchange")
	}
}
