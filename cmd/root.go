package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "dualleg-arb",
	Short: "Dual-leg YES/NO arbitrage engine for Polymarket",
	Long: `Dual-leg arbitrage engine for binary Polymarket markets.

The engine streams the YES and NO order books of the configured markets,
buys both sides when their combined ask is below the guaranteed $1 payout by
at least the minimum spread, keeps the two legs hedged, and claims the
proceeds once the market resolves. Every trade passes a daily-loss circuit
breaker first.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// loadEnv reads .env when present, then the configuration and logger every
// command needs.
func loadEnv() (*config.Config, *zap.Logger, error) {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}
