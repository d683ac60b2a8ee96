package markets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

func testMarket(id string) *types.Market {
	return &types.Market{
		ID:         id,
		Slug:       "slug-" + id,
		YesTokenID: id + "-yes",
		NoTokenID:  id + "-no",
		Status:     types.MarketActive,
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(testMarket("m1")))
	require.NoError(t, r.Register(testMarket("m2")))

	m, ok := r.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "m1-yes", m.YesTokenID)

	m.Status = types.MarketResolved
	again, _ := r.Get("m1")
	assert.Equal(t, types.MarketActive, again.Status, "Get returns a copy")

	bySlug, ok := r.GetBySlug("slug-m2")
	require.True(t, ok)
	assert.Equal(t, "m2", bySlug.ID)

	assert.Equal(t, []string{"m1", "m2"}, r.ActiveIDs())
	assert.Len(t, r.All(), 2)
}

func TestRegistry_RegisterRejectsBadMarkets(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(&types.Market{}))

	same := testMarket("m1")
	same.NoTokenID = same.YesTokenID
	assert.Error(t, r.Register(same))
}

func TestRegistry_TransitionsAreMonotonic(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testMarket("m1")))

	m, changed, err := r.Transition("m1", types.MarketClosed, "")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.MarketClosed, m.Status)

	_, changed, err = r.Transition("m1", types.MarketClosed, "")
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = r.Transition("m1", types.MarketActive, "")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, _, err = r.Transition("m1", types.MarketResolved, "")
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "resolution needs a winner")

	m, changed, err = r.Transition("m1", types.MarketResolved, types.OutcomeNo)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.OutcomeNo, m.WinningOutcome)

	// Resolved is immutable, including through Register.
	active := testMarket("m1")
	assert.ErrorIs(t, r.Register(active), types.ErrInvalidTransition)
	assert.Empty(t, r.UnresolvedIDs())
	assert.Empty(t, r.ActiveIDs())

	_, _, err = r.Transition("missing", types.MarketClosed, "")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
