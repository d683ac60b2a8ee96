package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/app"
	"github.com/mselser95/dualleg-arb/internal/storage"
	"github.com/mselser95/dualleg-arb/pkg/config"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List positions that need manual review",
	Long: `Lists positions the engine could not classify on its own, such as a leg
whose fill state was unknown after a timeout or a rebalance that stayed
below the critical hedge ratio. Use --all to include every non-terminal
position.`,
	RunE: runReview,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().BoolP("all", "a", false, "Include open and queued positions")
}

func runReview(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	all, _ := cmd.Flags().GetBool("all")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	statuses := []types.PositionStatus{types.PositionNeedsReview}
	if all {
		statuses = append(statuses, types.PositionOpen, types.PositionQueuedForSettlement)
	}

	positions, err := store.ListPositions(ctx, statuses...)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}

	renderPositions(cmd.OutOrStdout(), positions)
	return nil
}

// openPostgres opens the persistent store; review and ledger have nothing to
// read from memory storage.
func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage.PostgresStorage, error) {
	if cfg.StorageMode != "postgres" {
		return nil, fmt.Errorf("STORAGE_MODE=%q: this command reads postgres storage", cfg.StorageMode)
	}

	store, err := storage.NewPostgresStorage(ctx, app.PostgresConfig(cfg, logger))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return store, nil
}

func renderPositions(w io.Writer, positions []*types.Position) {
	if len(positions) == 0 {
		fmt.Fprintln(w, "No positions found")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Market", "Status", "YES", "NO", "Hedge", "Cost", "Unhedged", "Reason", "Updated")

	for _, p := range positions {
		_ = table.Append(
			p.ID,
			p.MarketID,
			string(p.Status),
			p.YesShares.StringFixed(2),
			p.NoShares.StringFixed(2),
			p.HedgeRatio().StringFixed(3),
			"$"+p.EntryCost().StringFixed(2),
			"$"+p.UnhedgedExposure().StringFixed(2),
			p.Reason,
			p.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	_ = table.Render()
	fmt.Fprintf(w, "%d position(s)\n", len(positions))
}
