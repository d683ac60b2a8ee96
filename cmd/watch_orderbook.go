package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mselser95/dualleg-arb/internal/markets"
	"github.com/mselser95/dualleg-arb/internal/orderbook"
	"github.com/mselser95/dualleg-arb/pkg/types"
	"github.com/mselser95/dualleg-arb/pkg/websocket"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchOrderbookCmd = &cobra.Command{
	Use:   "watch-orderbook <market-slug>",
	Short: "Watch the paired YES/NO book of a market",
	Long: `Connects to the Polymarket WebSocket and prints the best YES and NO asks of
a market on every book update, with their combined ask and the spread below
the $1 payout. Lines whose spread clears MIN_SPREAD are flagged. Useful for
checking a market before adding it to MARKET_SLUGS.

Example:
  dualleg-arb watch-orderbook will-it-rain-in-nyc-tomorrow`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchOrderbook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchOrderbookCmd)
}

func runWatchOrderbook(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadEnv()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gamma := markets.NewGammaClient(markets.GammaConfig{
		BaseURL: cfg.PolymarketGammaURL,
		Logger:  logger,
	})

	gm, err := gamma.FetchMarketBySlug(ctx, args[0])
	if err != nil {
		return fmt.Errorf("fetch market: %w", err)
	}

	market, err := gm.ToMarket()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Market: %s\n", market.Question)
	fmt.Fprintf(out, "Slug: %s\n", market.Slug)
	fmt.Fprintf(out, "YES Token ID: %s\n", market.YesTokenID)
	fmt.Fprintf(out, "NO Token ID: %s\n\n", market.NoTokenID)

	wsManager := websocket.New(websocket.Config{
		URL:                   cfg.PolymarketWSURL,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	})
	defer wsManager.Close()

	obManager := orderbook.New(&orderbook.Config{
		Logger:       logger,
		EventChannel: wsManager.MessageChan(),
	})
	defer obManager.Close()
	obManager.Track(market)

	err = obManager.Start(ctx)
	if err != nil {
		return fmt.Errorf("start orderbook manager: %w", err)
	}

	err = wsManager.Start()
	if err != nil {
		return fmt.Errorf("start websocket: %w", err)
	}

	err = wsManager.Subscribe(ctx, []string{market.YesTokenID, market.NoTokenID})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	fmt.Fprintln(out, "Subscribed! Watching for orderbook updates...")

	updates := obManager.UpdateChan()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nShutting down...")
			return nil
		case marketID, ok := <-updates:
			if !ok {
				return errors.New("orderbook update channel closed")
			}

			book, paired := obManager.MarketBook(marketID)
			if !paired {
				continue
			}
			printBookLine(out, book, cfg.MinSpread, time.Now())
		}
	}
}

func formatLevel(book *types.OrderBook) string {
	level, ok := book.BestAsk()
	if !ok {
		return "N/A"
	}

	return fmt.Sprintf("%s@%s", level.Price.String(), level.Size.StringFixed(2))
}

// printBookLine writes one line per paired update: both best asks, their sum
// and the spread below $1.
func printBookLine(w io.Writer, book *types.MarketBook, minSpread decimal.Decimal, now time.Time) {
	line := fmt.Sprintf("[%s] YES ask %s  NO ask %s",
		now.Format("15:04:05"), formatLevel(book.Yes), formatLevel(book.No))

	combined, ok := book.CombinedAsk()
	if !ok {
		fmt.Fprintln(w, line+"  combined N/A")
		return
	}

	spread := decimal.NewFromInt(1).Sub(combined)
	line += fmt.Sprintf("  combined %s  spread %s", combined.String(), spread.String())
	if spread.GreaterThanOrEqual(minSpread) {
		line += "  << OPPORTUNITY"
	}

	fmt.Fprintln(w, line)
}
