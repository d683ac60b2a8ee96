package markets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newFastClient(t *testing.T, url string) *MetadataClient {
	t.Helper()

	c := NewMetadataClient(url, zaptest.NewLogger(t))
	c.initialBackoff = 5 * time.Millisecond
	c.maxBackoff = 20 * time.Millisecond

	return c
}

func TestFetchTickSize_RetryOn429(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"minimum_tick_size": 0.001}`))
	}))
	defer srv.Close()

	tick, err := newFastClient(t, srv.URL).FetchTickSize(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "0.001", tick.String())
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchTickSize_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newFastClient(t, srv.URL).FetchTickSize(context.Background(), "tok")
	assert.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetchTokenMetadata_FallsBackToDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tick-size":
			_, _ = w.Write([]byte(`{"minimum_tick_size": 0.01}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	meta, err := newFastClient(t, srv.URL).FetchTokenMetadata(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "0.01", meta.TickSize.String())
	assert.True(t, meta.MinOrderSize.Equal(DefaultMinOrderSize))
}

func TestFetchMinOrderSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"market": "0xabc", "min_order_size": "15", "bids": [], "asks": []}`))
	}))
	defer srv.Close()

	size, err := newFastClient(t, srv.URL).FetchMinOrderSize(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "15", size.String())
}
