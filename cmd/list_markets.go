package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mselser95/dualleg-arb/internal/markets"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

const maxQuestionLen = 60

//nolint:gochecknoglobals // read-only
var validSorts = []string{"volume24hr", "createdAt", "endDate"}

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List active markets from Polymarket Gamma API",
	Long: `Fetches active markets from the Polymarket Gamma API and shows whether each
one is a binary YES/NO market the engine can trade. Use the slugs it prints
for MARKET_SLUGS or run --market.`,
	RunE: runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().IntP("limit", "l", 20, "Maximum number of markets to fetch")
	listMarketsCmd.Flags().StringP("sort", "s", "volume24hr", "Sort by: volume24hr, createdAt, endDate")
	listMarketsCmd.Flags().BoolP("binary-only", "b", false, "Hide markets without a YES/NO token pair")
}

func runListMarkets(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	sortBy, _ := cmd.Flags().GetString("sort")
	binaryOnly, _ := cmd.Flags().GetBool("binary-only")

	if !slices.Contains(validSorts, sortBy) {
		return fmt.Errorf("invalid sort option: %s. Valid options: volume24hr, createdAt, endDate", sortBy)
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

	client := markets.NewGammaClient(markets.GammaConfig{
		BaseURL: cfg.PolymarketGammaURL,
		Logger:  logger,
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Fetching up to %d active markets from Polymarket...\n\n", limit)

	list, err := client.FetchActiveMarkets(ctx, limit, sortBy)
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	renderMarkets(cmd.OutOrStdout(), list, binaryOnly)
	return nil
}

func renderMarkets(w io.Writer, list []types.GammaMarket, binaryOnly bool) {
	table := tablewriter.NewWriter(w)
	table.Header("Slug", "Question", "Ends", "Binary")

	shown := 0
	for i := range list {
		gm := &list[i]

		binary := "yes"
		if _, err := gm.ToMarket(); err != nil {
			if binaryOnly {
				continue
			}
			binary = "no"
		}

		question := gm.Question
		if len(question) > maxQuestionLen {
			question = question[:maxQuestionLen-3] + "..."
		}

		ends := "-"
		if !gm.EndDate.IsZero() {
			ends = gm.EndDate.UTC().Format("2006-01-02 15:04")
		}

		_ = table.Append(gm.Slug, question, ends, binary)
		shown++
	}

	if shown == 0 {
		fmt.Fprintln(w, "No active markets found.")
		return
	}

	_ = table.Render()
	fmt.Fprintf(w, "\nShowing %d of %d markets\n", shown, len(list))
}
