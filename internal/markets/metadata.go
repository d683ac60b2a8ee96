package markets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Defaults used when the CLOB API does not report a value.
var (
	DefaultTickSize     = decimal.RequireFromString("0.01")
	DefaultMinOrderSize = decimal.NewFromInt(5)
)

// TokenMetadata holds the trading constraints of one token.
type TokenMetadata struct {
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
	FetchedAt    time.Time
}

// MetadataClient fetches token metadata from the Polymarket CLOB API.
type MetadataClient struct {
	baseURL           string
	httpClient        *http.Client
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	logger            *zap.Logger
}

// NewMetadataClient creates a new metadata client.
func NewMetadataClient(baseURL string, logger *zap.Logger) *MetadataClient {
	return &MetadataClient{
		baseURL:           baseURL,
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		maxRetries:        3,
		initialBackoff:    200 * time.Millisecond,
		maxBackoff:        2 * time.Second,
		backoffMultiplier: 2.0,
		logger:            logger,
	}
}

// errRetryable marks responses worth retrying.
var errRetryable = errors.New("retryable")

// FetchTickSize fetches the tick size for a token.
func (c *MetadataClient) FetchTickSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	var data struct {
		MinimumTickSize decimal.Decimal `json:"minimum_tick_size"`
	}

	err := c.getWithRetry(ctx, fmt.Sprintf("%s/tick-size?token_id=%s", c.baseURL, tokenID), &data)
	if err != nil {
		return decimal.Zero, err
	}
	if !data.MinimumTickSize.IsPositive() {
		return DefaultTickSize, nil
	}

	return data.MinimumTickSize, nil
}

// FetchMinOrderSize fetches the minimum order size for a token from its book.
func (c *MetadataClient) FetchMinOrderSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	var data struct {
		MinOrderSize decimal.NullDecimal `json:"min_order_size"`
	}

	err := c.getWithRetry(ctx, fmt.Sprintf("%s/book?token_id=%s", c.baseURL, tokenID), &data)
	if err != nil {
		return decimal.Zero, err
	}
	if !data.MinOrderSize.Valid || !data.MinOrderSize.Decimal.IsPositive() {
		return DefaultMinOrderSize, nil
	}

	return data.MinOrderSize.Decimal, nil
}

// FetchTokenMetadata fetches tick size and minimum order size, falling
// back to defaults for whichever lookup fails.
func (c *MetadataClient) FetchTokenMetadata(ctx context.Context, tokenID string) (*TokenMetadata, error) {
	start := time.Now()
	defer func() {
		MetadataFetchDuration.Observe(time.Since(start).Seconds())
	}()

	meta := &TokenMetadata{FetchedAt: time.Now()}

	tick, err := c.FetchTickSize(ctx, tokenID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("tick-size-fetch-failed-using-default", zap.String("token-id", tokenID), zap.Error(err))
		tick = DefaultTickSize
	}
	meta.TickSize = tick

	minSize, err := c.FetchMinOrderSize(ctx, tokenID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("min-order-size-fetch-failed-using-default", zap.String("token-id", tokenID), zap.Error(err))
		minSize = DefaultMinOrderSize
	}
	meta.MinOrderSize = minSize

	return meta, nil
}

// getWithRetry retries timeouts, 429 and 5xx responses with exponential backoff.
func (c *MetadataClient) getWithRetry(ctx context.Context, requestURL string, out interface{}) error {
	backoff := c.initialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("metadata-fetch-retry",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * c.backoffMultiplier)
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
		}

		lastErr = c.get(ctx, requestURL, out)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, errRetryable) && !types.IsTransient(lastErr) {
			break
		}
	}

	MetadataFetchErrorsTotal.Inc()

	return lastErr
}

func (c *MetadataClient) get(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("do request: %w: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("status %d: %w", resp.StatusCode, errRetryable)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
