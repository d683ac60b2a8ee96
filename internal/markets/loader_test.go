package markets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

func TestLoader_Load(t *testing.T) {
	srv := newGammaServer(t)
	reg := NewRegistry()

	loader := &Loader{
		Fetcher:  NewGammaClient(GammaConfig{BaseURL: srv.URL, RequestsPerSecond: 100, Logger: zaptest.NewLogger(t)}),
		Registry: reg,
		Logger:   zaptest.NewLogger(t),
	}

	loaded, err := loader.Load(context.Background(), []string{"btc-up-1215", "missing-slug"})
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	m, ok := reg.GetBySlug("btc-up-1215")
	require.True(t, ok)
	assert.Equal(t, types.MarketActive, m.Status)
	assert.Equal(t, "5", m.MinOrderSize.String())

	_, err = loader.Load(context.Background(), []string{"missing-slug"})
	assert.Error(t, err)
}
