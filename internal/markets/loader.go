package markets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// SlugFetcher fetches a market by slug.
type SlugFetcher interface {
	FetchMarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error)
}

// Loader resolves configured slugs into registered markets.
type Loader struct {
	Fetcher  SlugFetcher
	Metadata *CachedMetadataClient
	Registry *Registry
	Logger   *zap.Logger
}

// Load registers every slug it can resolve. Slugs that fail are logged and
// skipped; an error is returned only when nothing could be loaded.
func (l *Loader) Load(ctx context.Context, slugs []string) ([]*types.Market, error) {
	loaded := make([]*types.Market, 0, len(slugs))

	for _, slug := range slugs {
		market, err := l.loadOne(ctx, slug)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.Logger.Warn("market-load-failed", zap.String("slug", slug), zap.Error(err))
			continue
		}

		l.Logger.Info("market-loaded",
			zap.String("market-id", market.ID),
			zap.String("slug", market.Slug),
			zap.String("status", market.Status.String()),
			zap.Time("end-time", market.EndTime),
			zap.String("tick-size", market.TickSize.String()),
			zap.String("min-order-size", market.MinOrderSize.String()))
		loaded = append(loaded, market)
	}

	if len(slugs) > 0 && len(loaded) == 0 {
		return nil, fmt.Errorf("none of %d configured markets could be loaded", len(slugs))
	}

	return loaded, nil
}

func (l *Loader) loadOne(ctx context.Context, slug string) (*types.Market, error) {
	gm, err := l.Fetcher.FetchMarketBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	market, err := gm.ToMarket()
	if err != nil {
		return nil, err
	}

	if l.Metadata != nil {
		err = l.Metadata.Enrich(ctx, market)
		if err != nil {
			return nil, err
		}
	}
	if !market.TickSize.IsPositive() {
		market.TickSize = DefaultTickSize
	}
	if !market.MinOrderSize.IsPositive() {
		market.MinOrderSize = DefaultMinOrderSize
	}

	err = l.Registry.Register(market)
	if err != nil {
		return nil, err
	}

	return market, nil
}
