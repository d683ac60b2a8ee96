package markets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// MaxBatchSize is the maximum number of markets to fetch per API request.
const MaxBatchSize = 100

// GammaClient is an HTTP client for the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// GammaConfig holds Gamma client configuration.
type GammaConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// NewGammaClient creates a new Gamma API client.
func NewGammaClient(cfg GammaConfig) *GammaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &GammaClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     cfg.Logger,
	}
}

// FetchMarketBySlug fetches a single market by slug.
func (c *GammaClient) FetchMarketBySlug(ctx context.Context, slug string) (*types.GammaMarket, error) {
	params := url.Values{}
	params.Add("slug", slug)

	var markets []types.GammaMarket
	err := c.get(ctx, fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode()), &markets)
	if err != nil {
		return nil, err
	}

	for i := range markets {
		if markets[i].Slug == slug {
			return &markets[i], nil
		}
	}

	return nil, fmt.Errorf("market %s: %w", slug, types.ErrNotFound)
}

// FetchMarket fetches a single market by id.
func (c *GammaClient) FetchMarket(ctx context.Context, marketID string) (*types.GammaMarket, error) {
	var market types.GammaMarket
	err := c.get(ctx, fmt.Sprintf("%s/markets/%s", c.baseURL, url.PathEscape(marketID)), &market)
	if err != nil {
		return nil, err
	}

	return &market, nil
}

// FetchActiveMarkets fetches up to limit active markets ordered by orderBy.
// A limit of 0 fetches every page.
func (c *GammaClient) FetchActiveMarkets(ctx context.Context, limit int, orderBy string) ([]types.GammaMarket, error) {
	var all []types.GammaMarket
	fetchAll := limit == 0

	for offset := 0; ; offset += MaxBatchSize {
		pageSize := MaxBatchSize
		if !fetchAll {
			remaining := limit - len(all)
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		params := url.Values{}
		params.Add("closed", "false")
		params.Add("active", "true")
		params.Add("limit", strconv.Itoa(pageSize))
		params.Add("offset", strconv.Itoa(offset))
		params.Add("order", orderBy)
		if orderBy == "endDate" {
			params.Add("ascending", "true")
		} else {
			params.Add("ascending", "false")
		}

		var page []types.GammaMarket
		err := c.get(ctx, fmt.Sprintf("%s/markets?%s", c.baseURL, params.Encode()), &page)
		if err != nil {
			return nil, fmt.Errorf("fetch page at offset %d: %w", offset, err)
		}

		all = append(all, page...)
		c.logger.Debug("fetched-page",
			zap.Int("offset", offset),
			zap.Int("markets", len(page)),
			zap.Int("total", len(all)))

		if len(page) < pageSize {
			break
		}
	}

	return all, nil
}

func (c *GammaClient) get(ctx context.Context, requestURL string, out interface{}) error {
	err := c.limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "dualleg-arb/1.0")

	c.logger.Debug("gamma-request", zap.String("url", requestURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		GammaRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		GammaRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		GammaRequestsTotal.WithLabelValues("not_found").Inc()
		return fmt.Errorf("gamma %s: %w", requestURL, types.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		GammaRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		GammaRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("unmarshal response: %w", err)
	}
	GammaRequestsTotal.WithLabelValues("ok").Inc()

	return nil
}
