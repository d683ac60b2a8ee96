package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

//nolint:gochecknoglobals // Cobra boilerplate
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show realized PnL entries for a UTC day",
	Long: `Prints the append-only PnL ledger for one UTC day along with the day's
total. Defaults to today.

Example:
  dualleg-arb ledger --day 2026-03-10`,
	RunE: runLedger,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.Flags().StringP("day", "d", "", "UTC day as YYYY-MM-DD (default today)")
}

// dayRange returns the [start, end) bounds of a UTC day.
func dayRange(day string, now time.Time) (time.Time, time.Time, error) {
	if day == "" {
		start := now.UTC().Truncate(24 * time.Hour)
		return start, start.Add(24 * time.Hour), nil
	}

	start, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --day %q: want YYYY-MM-DD", day)
	}

	return start, start.Add(24 * time.Hour), nil
}

func runLedger(cmd *cobra.Command, _ []string) error {
	day, _ := cmd.Flags().GetString("day")
	from, to, err := dayRange(day, time.Now())
	if err != nil {
		return err
	}

	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openPostgres(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ListLedger(ctx, from, to)
	if err != nil {
		return fmt.Errorf("list ledger: %w", err)
	}

	total, err := store.SumLedger(ctx, from, to)
	if err != nil {
		return fmt.Errorf("sum ledger: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ledger for %s (UTC)\n\n", from.Format(time.DateOnly))
	renderLedger(cmd.OutOrStdout(), entries, total)
	return nil
}

func renderLedger(w io.Writer, entries []*types.LedgerEntry, total decimal.Decimal) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No ledger entries")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("Time", "Position", "Type", "Amount", "Reason")

	for _, e := range entries {
		_ = table.Append(
			e.CreatedAt.UTC().Format("15:04:05"),
			e.PositionID,
			string(e.Type),
			"$"+e.Amount.StringFixed(4),
			e.Reason,
		)
	}

	_ = table.Render()
	fmt.Fprintf(w, "Total: $%s across %d entries\n", total.StringFixed(4), len(entries))
}
