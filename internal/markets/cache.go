package markets

import (
	"context"
	"fmt"
	"time"

	"github.com/mselser95/dualleg-arb/pkg/cache"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// MetadataFetcher fetches token metadata from an upstream source.
type MetadataFetcher interface {
	FetchTokenMetadata(ctx context.Context, tokenID string) (*TokenMetadata, error)
}

// CachedMetadataClient wraps a MetadataFetcher with caching.
type CachedMetadataClient struct {
	client MetadataFetcher
	cache  cache.Cache
	ttl    time.Duration
}

// NewCachedMetadataClient creates a new cached metadata client. A nil cache
// disables caching.
func NewCachedMetadataClient(client MetadataFetcher, c cache.Cache) *CachedMetadataClient {
	return &CachedMetadataClient{
		client: client,
		cache:  c,
		ttl:    24 * time.Hour,
	}
}

func cacheKey(tokenID string) string {
	return fmt.Sprintf("metadata:%s", tokenID)
}

// GetTokenMetadata returns cached metadata or fetches it.
func (c *CachedMetadataClient) GetTokenMetadata(ctx context.Context, tokenID string) (*TokenMetadata, error) {
	if c.cache != nil {
		if meta, ok := cache.Get[*TokenMetadata](c.cache, cacheKey(tokenID)); ok {
			MetadataCacheHitsTotal.Inc()
			return meta, nil
		}
		MetadataCacheMissesTotal.Inc()
	}

	meta, err := c.client.FetchTokenMetadata(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(cacheKey(tokenID), meta, c.ttl)
	}

	return meta, nil
}

// Enrich fills a market's missing tick size and minimum order size. The
// stricter of the two tokens' values wins.
func (c *CachedMetadataClient) Enrich(ctx context.Context, market *types.Market) error {
	if market.TickSize.IsPositive() && market.MinOrderSize.IsPositive() {
		return nil
	}

	for _, token := range []string{market.YesTokenID, market.NoTokenID} {
		meta, err := c.GetTokenMetadata(ctx, token)
		if err != nil {
			return fmt.Errorf("metadata for %s: %w", token, err)
		}
		if meta.TickSize.GreaterThan(market.TickSize) {
			market.TickSize = meta.TickSize
		}
		if meta.MinOrderSize.GreaterThan(market.MinOrderSize) {
			market.MinOrderSize = meta.MinOrderSize
		}
	}

	return nil
}
