package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/markets"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Subscriber manages the market data subscription.
type Subscriber interface {
	Subscribe(ctx context.Context, tokenIDs []string) error
	Unsubscribe(ctx context.Context, tokenIDs []string) error
}

// BookTracker pairs token books into market books.
type BookTracker interface {
	Track(market *types.Market)
	Untrack(marketID string)
}

// marketFeed keeps the book subscription in step with market status. Active
// markets are tracked and subscribed; once a market stops trading its books
// are dropped and lifecycle events are forwarded to next.
type marketFeed struct {
	subscriber Subscriber
	books      BookTracker
	next       markets.TransitionHandler
	logger     *zap.Logger
}

func newMarketFeed(subscriber Subscriber, books BookTracker, next markets.TransitionHandler, logger *zap.Logger) *marketFeed {
	return &marketFeed{subscriber: subscriber, books: books, next: next, logger: logger}
}

// subscribe starts streaming the YES and NO books of market.
func (f *marketFeed) subscribe(ctx context.Context, market *types.Market) error {
	if market.YesTokenID == "" || market.NoTokenID == "" {
		f.logger.Warn("market-missing-tokens",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug))
		return nil
	}

	f.books.Track(market)

	err := f.subscriber.Subscribe(ctx, []string{market.YesTokenID, market.NoTokenID})
	if err != nil {
		f.books.Untrack(market.ID)
		return err
	}

	f.logger.Info("subscribed-to-market",
		zap.String("slug", market.Slug),
		zap.String("question", market.Question))

	return nil
}

func (f *marketFeed) retire(ctx context.Context, market *types.Market) {
	f.books.Untrack(market.ID)

	err := f.subscriber.Unsubscribe(ctx, []string{market.YesTokenID, market.NoTokenID})
	if err != nil {
		f.logger.Warn("unsubscribe-failed", zap.String("market-id", market.ID), zap.Error(err))
	}
	MarketsRetiredTotal.Inc()
}

// OnMarketClosed drops the books of a market that stopped trading.
func (f *marketFeed) OnMarketClosed(ctx context.Context, market *types.Market) {
	f.retire(ctx, market)
	f.next.OnMarketClosed(ctx, market)
}

// OnMarketResolved handles markets that resolve without a Closed poll in between.
func (f *marketFeed) OnMarketResolved(ctx context.Context, market *types.Market) error {
	f.retire(ctx, market)
	return f.next.OnMarketResolved(ctx, market)
}
