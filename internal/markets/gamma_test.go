package markets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

const gammaMarketJSON = `{
	"id": "123",
	"question": "Will BTC be up at 12:15?",
	"slug": "btc-up-1215",
	"conditionId": "0xcond",
	"active": true,
	"closed": false,
	"endDate": "2026-03-10T12:15:00Z",
	"outcomes": "[\"Yes\", \"No\"]",
	"clobTokenIds": "[\"tok-yes\", \"tok-no\"]",
	"outcomePrices": "[\"0.52\", \"0.48\"]",
	"orderPriceMinTickSize": 0.01,
	"orderMinSize": 5
}`

func newGammaServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("slug") == "btc-up-1215" {
			_, _ = w.Write([]byte("[" + gammaMarketJSON + "]"))
			return
		}
		_, _ = w.Write([]byte("[]"))
	})
	mux.HandleFunc("/markets/123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(gammaMarketJSON))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestGammaClient_FetchMarketBySlug(t *testing.T) {
	srv := newGammaServer(t)
	client := NewGammaClient(GammaConfig{BaseURL: srv.URL, RequestsPerSecond: 100, Logger: zaptest.NewLogger(t)})

	gm, err := client.FetchMarketBySlug(context.Background(), "btc-up-1215")
	require.NoError(t, err)

	m, err := gm.ToMarket()
	require.NoError(t, err)
	assert.Equal(t, "123", m.ID)
	assert.Equal(t, "tok-yes", m.YesTokenID)
	assert.Equal(t, "tok-no", m.NoTokenID)
	assert.Equal(t, types.MarketActive, m.Status)
	assert.Equal(t, "0.01", m.TickSize.String())

	_, err = client.FetchMarketBySlug(context.Background(), "unknown")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGammaClient_FetchMarket(t *testing.T) {
	srv := newGammaServer(t)
	client := NewGammaClient(GammaConfig{BaseURL: srv.URL, RequestsPerSecond: 100, Logger: zaptest.NewLogger(t)})

	gm, err := client.FetchMarket(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "btc-up-1215", gm.Slug)

	_, err = client.FetchMarket(context.Background(), "999")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestGammaClient_FetchActiveMarketsPaginates(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		if r.URL.Query().Get("offset") == "0" {
			body := "["
			for i := 0; i < MaxBatchSize; i++ {
				if i > 0 {
					body += ","
				}
				body += `{"id":"x"}`
			}
			_, _ = w.Write([]byte(body + "]"))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"y"}]`))
	}))
	defer srv.Close()

	client := NewGammaClient(GammaConfig{BaseURL: srv.URL, RequestsPerSecond: 1000, Logger: zaptest.NewLogger(t)})

	markets, err := client.FetchActiveMarkets(context.Background(), 0, "volume24hr")
	require.NoError(t, err)
	assert.Len(t, markets, MaxBatchSize+1)
	assert.Equal(t, []string{"0", "100"}, offsets)
}
