// Package markets tracks binary markets, their metadata and their lifecycle.
package markets

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Registry holds the markets the engine trades. Status only moves forward:
// Active, then Closed, then Resolved.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*types.Market
	bySlug  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		markets: make(map[string]*types.Market),
		bySlug:  make(map[string]string),
	}
}

// Register adds a market, or merges a newer view of a known one. A view
// that would move the status backwards is rejected.
func (r *Registry) Register(market *types.Market) error {
	if market == nil || market.ID == "" {
		return fmt.Errorf("market id cannot be empty")
	}
	if market.YesTokenID == "" || market.NoTokenID == "" || market.YesTokenID == market.NoTokenID {
		return fmt.Errorf("market %s: need two distinct outcome tokens", market.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.markets[market.ID]; ok {
		if market.Status < existing.Status {
			return fmt.Errorf("market %s: %s -> %s: %w", market.ID, existing.Status, market.Status, types.ErrInvalidTransition)
		}
		if existing.Status == types.MarketResolved {
			return nil
		}
	}

	cp := *market
	r.markets[market.ID] = &cp
	if market.Slug != "" {
		r.bySlug[market.Slug] = market.ID
	}
	MarketsRegistered.WithLabelValues(cp.Status.String()).Inc()

	return nil
}

// Get returns a copy of a market.
func (r *Registry) Get(marketID string) (*types.Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.markets[marketID]
	if !ok {
		return nil, false
	}
	cp := *m

	return &cp, true
}

// GetBySlug returns a copy of a market by slug.
func (r *Registry) GetBySlug(slug string) (*types.Market, bool) {
	r.mu.RLock()
	id, ok := r.bySlug[slug]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	return r.Get(id)
}

// ActiveIDs returns the ids of active markets, sorted.
func (r *Registry) ActiveIDs() []string {
	return r.ids(func(m *types.Market) bool { return m.Status == types.MarketActive })
}

// UnresolvedIDs returns the ids of markets not yet resolved, sorted.
func (r *Registry) UnresolvedIDs() []string {
	return r.ids(func(m *types.Market) bool { return m.Status != types.MarketResolved })
}

func (r *Registry) ids(keep func(*types.Market) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.markets))
	for id, m := range r.markets {
		if keep(m) {
			out = append(out, id)
		}
	}
	sort.Strings(out)

	return out
}

// All returns copies of every market.
func (r *Registry) All() []*types.Market {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.Market, 0, len(r.markets))
	for _, m := range r.markets {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Transition moves a market forward. changed is false when the market is
// already in the target status. Resolving requires a winner.
func (r *Registry) Transition(marketID string, to types.MarketStatus, winner types.Outcome) (*types.Market, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markets[marketID]
	if !ok {
		return nil, false, fmt.Errorf("market %s: %w", marketID, types.ErrNotFound)
	}

	if to == m.Status {
		cp := *m
		return &cp, false, nil
	}
	if to < m.Status {
		return nil, false, fmt.Errorf("market %s: %s -> %s: %w", marketID, m.Status, to, types.ErrInvalidTransition)
	}
	if to == types.MarketResolved && winner != types.OutcomeYes && winner != types.OutcomeNo {
		return nil, false, fmt.Errorf("market %s: resolved without winner: %w", marketID, types.ErrInvalidTransition)
	}

	m.Status = to
	if to == types.MarketResolved {
		m.WinningOutcome = winner
	}
	TransitionsTotal.WithLabelValues(to.String()).Inc()
	cp := *m

	return &cp, true, nil
}
