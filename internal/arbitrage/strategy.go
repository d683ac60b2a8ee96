package arbitrage

import (
	"fmt"
	"sync"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Strategy turns market data into trading signals. OnMarketData must not
// block on I/O.
type Strategy interface {
	Name() string
	Enabled() bool
	SubscribedMarkets() []string
	OnMarketData(book *types.MarketBook) []types.TradingSignal
}

// Registry holds the registered strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
	byName     map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Strategy)}
}

// Register adds a strategy. Names must be unique.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[s.Name()]; exists {
		return fmt.Errorf("strategy %q already registered", s.Name())
	}

	r.byName[s.Name()] = s
	r.strategies = append(r.strategies, s)

	return nil
}

// All returns every registered strategy in registration order.
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Strategy, len(r.strategies))
	copy(out, r.strategies)

	return out
}

// ForMarket returns the enabled strategies subscribed to marketID.
func (r *Registry) ForMarket(marketID string) []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Strategy
	for _, s := range r.strategies {
		if !s.Enabled() {
			continue
		}
		for _, id := range s.SubscribedMarkets() {
			if id == marketID {
				out = append(out, s)
				break
			}
		}
	}

	return out
}

// Evaluate runs every matching strategy against book.
func (r *Registry) Evaluate(book *types.MarketBook) []types.TradingSignal {
	var signals []types.TradingSignal
	for _, s := range r.ForMarket(book.MarketID) {
		signals = append(signals, s.OnMarketData(book)...)
	}

	return signals
}
