package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mselser95/dualleg-arb/internal/app"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the arbitrage engine",
	Long: `Starts the dual-leg arbitrage engine, which will:
1. Load the configured markets from the Gamma API
2. Subscribe to their YES and NO orderbooks via WebSocket
3. Detect opportunities where YES ask + NO ask < 1.0 - min spread
4. Execute both legs in the configured mode (paper, dry-run or live)
5. Settle positions once their market resolves

Use --market to override MARKET_SLUGS for a single session.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceP("market", "m", nil, "Market slug to trade (repeatable, overrides MARKET_SLUGS)")
}

func runEngine(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	slugs, _ := cmd.Flags().GetStringSlice("market")

	application, err := app.New(cfg, logger, &app.Options{MarketSlugs: slugs})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
