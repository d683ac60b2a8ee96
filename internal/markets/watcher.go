package markets

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// MarketFetcher fetches the current view of a market.
type MarketFetcher interface {
	FetchMarket(ctx context.Context, marketID string) (*types.GammaMarket, error)
}

// TransitionHandler reacts to market lifecycle changes.
type TransitionHandler interface {
	OnMarketClosed(ctx context.Context, market *types.Market)
	OnMarketResolved(ctx context.Context, market *types.Market) error
}

// WatcherConfig holds watcher configuration.
type WatcherConfig struct {
	Registry *Registry
	Fetcher  MarketFetcher
	Handler  TransitionHandler
	Interval time.Duration
	Logger   *zap.Logger
}

// Watcher polls unresolved markets and reports Closed and Resolved
// transitions. A resolved market whose handler failed is retried on every
// poll until the handler succeeds.
type Watcher struct {
	registry *Registry
	fetcher  MarketFetcher
	handler  TransitionHandler
	interval time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup

	mu      sync.Mutex
	retries map[string]*types.Market
}

// NewWatcher creates a new resolution watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if cfg.Handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	return &Watcher{
		registry: cfg.Registry,
		fetcher:  cfg.Fetcher,
		handler:  cfg.Handler,
		interval: interval,
		logger:   cfg.Logger,
		retries:  make(map[string]*types.Market),
	}, nil
}

// Start begins polling until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("market-watcher-starting", zap.Duration("interval", w.interval))

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.logger.Info("market-watcher-stopping")
				return
			case <-ticker.C:
				w.Poll(ctx)
			}
		}
	}()
}

// Poll retries failed resolution handlers, then checks every unresolved
// market once.
func (w *Watcher) Poll(ctx context.Context) {
	w.retryResolved(ctx)

	for _, id := range w.registry.UnresolvedIDs() {
		if ctx.Err() != nil {
			return
		}

		gm, err := w.fetcher.FetchMarket(ctx, id)
		if err != nil {
			WatcherPollErrorsTotal.Inc()
			w.logger.Warn("market-poll-failed", zap.String("market-id", id), zap.Error(err))
			continue
		}

		w.apply(ctx, id, gm.Status(), gm.Winner())
	}
}

func (w *Watcher) apply(ctx context.Context, id string, status types.MarketStatus, winner types.Outcome) {
	market, changed, err := w.registry.Transition(id, status, winner)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTransition) {
			w.logger.Debug("market-transition-ignored", zap.String("market-id", id), zap.Error(err))
			return
		}
		w.logger.Warn("market-transition-failed", zap.String("market-id", id), zap.Error(err))
		return
	}
	if !changed {
		return
	}

	w.logger.Info("market-status-changed",
		zap.String("market-id", id),
		zap.String("status", market.Status.String()),
		zap.String("winner", string(market.WinningOutcome)))

	switch market.Status {
	case types.MarketClosed:
		w.handler.OnMarketClosed(ctx, market)
	case types.MarketResolved:
		w.resolve(ctx, market)
	}
}

// Retry schedules the resolution handler for a resolved market on the next
// poll.
func (w *Watcher) Retry(market *types.Market) {
	w.mu.Lock()
	w.retries[market.ID] = market
	w.mu.Unlock()
}

// Retrying returns the ids of resolved markets awaiting a handler retry, sorted.
func (w *Watcher) Retrying() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.retries))
	for id := range w.retries {
		out = append(out, id)
	}
	sort.Strings(out)

	return out
}

func (w *Watcher) resolve(ctx context.Context, market *types.Market) bool {
	err := w.handler.OnMarketResolved(ctx, market)
	if err != nil {
		HandlerRetriesTotal.Inc()
		w.logger.Error("market-resolution-handler-failed", zap.String("market-id", market.ID), zap.Error(err))
		w.Retry(market)
		return false
	}

	w.mu.Lock()
	delete(w.retries, market.ID)
	w.mu.Unlock()

	return true
}

func (w *Watcher) retryResolved(ctx context.Context) {
	for _, id := range w.Retrying() {
		if ctx.Err() != nil {
			return
		}

		w.mu.Lock()
		market, ok := w.retries[id]
		w.mu.Unlock()
		if !ok {
			continue
		}

		if w.resolve(ctx, market) {
			w.logger.Info("market-resolution-handler-recovered", zap.String("market-id", id))
		}
	}
}

// Close waits for the polling loop to exit.
func (w *Watcher) Close() {
	w.wg.Wait()
}
