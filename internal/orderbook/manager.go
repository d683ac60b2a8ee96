// Package orderbook maintains full-depth books for subscribed outcome tokens.
package orderbook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Manager manages orderbook state for all tracked tokens.
type Manager struct {
	books      map[string]*types.OrderBook // key: token_id
	tokens     map[string]tokenRef         // token_id -> market
	markets    map[string]*types.Market
	mu         sync.RWMutex
	logger     *zap.Logger
	eventChan  <-chan *types.MarketEvent
	updateChan chan string
	now        func() time.Time
	wg         sync.WaitGroup
}

type tokenRef struct {
	marketID string
	outcome  types.Outcome
}

// Config holds orderbook manager configuration.
type Config struct {
	Logger           *zap.Logger
	EventChannel     <-chan *types.MarketEvent
	UpdateBufferSize int
	Now              func() time.Time
}

// New creates a new orderbook manager.
func New(cfg *Config) *Manager {
	size := cfg.UpdateBufferSize
	if size <= 0 {
		size = 1024
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Manager{
		books:      make(map[string]*types.OrderBook),
		tokens:     make(map[string]tokenRef),
		markets:    make(map[string]*types.Market),
		logger:     cfg.Logger,
		eventChan:  cfg.EventChannel,
		updateChan: make(chan string, size),
		now:        now,
	}
}

// Track registers a market so its token books can be paired.
func (m *Manager) Track(market *types.Market) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.markets[market.ID] = market
	m.tokens[market.YesTokenID] = tokenRef{marketID: market.ID, outcome: types.OutcomeYes}
	m.tokens[market.NoTokenID] = tokenRef{marketID: market.ID, outcome: types.OutcomeNo}
	MarketsTracked.Set(float64(len(m.markets)))
}

// Untrack forgets a market and drops its books.
func (m *Manager) Untrack(marketID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	market, ok := m.markets[marketID]
	if !ok {
		return
	}
	for _, token := range []string{market.YesTokenID, market.NoTokenID} {
		delete(m.tokens, token)
		delete(m.books, token)
	}
	delete(m.markets, marketID)
	MarketsTracked.Set(float64(len(m.markets)))
	SnapshotsTracked.Set(float64(len(m.books)))
}

// Start starts the orderbook manager.
func (m *Manager) Start(ctx context.Context) error {
	if m.eventChan == nil {
		return fmt.Errorf("event channel cannot be nil")
	}

	m.logger.Info("orderbook-manager-starting")

	m.wg.Add(1)
	go m.processEvents(ctx)

	return nil
}

func (m *Manager) processEvents(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("orderbook-manager-stopping")
			return
		case event, ok := <-m.eventChan:
			if !ok {
				m.logger.Info("event-channel-closed")
				return
			}

			err := m.HandleEvent(event)
			if err != nil {
				m.logger.Warn("handle-event-error",
					zap.Error(err),
					zap.String("event-type", event.EventType()))
			}
		}
	}
}

// HandleEvent applies one market event and notifies the affected markets.
func (m *Manager) HandleEvent(event *types.MarketEvent) error {
	timer := prometheus.NewTimer(UpdateProcessingDuration)
	defer timer.ObserveDuration()

	UpdatesTotal.WithLabelValues(event.EventType()).Inc()

	received := event.ReceivedAt
	if received.IsZero() {
		received = m.now()
	}

	var touched []string
	var err error
	switch {
	case event.Book != nil:
		touched, err = m.applyBook(event.Book, received)
	case event.PriceChange != nil:
		touched = m.applyPriceChange(event.PriceChange, received)
	}
	if err != nil {
		return err
	}

	for _, marketID := range touched {
		m.notify(marketID)
	}

	return nil
}

// applyBook replaces the full depth of one token.
func (m *Manager) applyBook(msg *types.OrderbookMessage, received time.Time) ([]string, error) {
	if msg.AssetID == "" {
		return nil, fmt.Errorf("book message without asset id")
	}

	book := types.NewOrderBook(msg.AssetID, types.ParseLevels(msg.Bids), types.ParseLevels(msg.Asks), received)

	m.mu.Lock()
	ref, tracked := m.tokens[msg.AssetID]
	if tracked {
		m.books[msg.AssetID] = book
		SnapshotsTracked.Set(float64(len(m.books)))
	}
	m.mu.Unlock()

	if !tracked {
		UpdatesIgnoredTotal.WithLabelValues("untracked_token").Inc()
		return nil, nil
	}

	m.logger.Debug("orderbook-snapshot-updated",
		zap.String("token-id", msg.AssetID),
		zap.Int("bid-levels", len(book.Bids)),
		zap.Int("ask-levels", len(book.Asks)))

	return []string{ref.marketID}, nil
}

// applyPriceChange applies level deltas. Deltas for tokens without a
// snapshot are dropped; the next book message restores them.
func (m *Manager) applyPriceChange(msg *types.PriceChangeMessage, received time.Time) []string {
	seen := make(map[string]bool)
	var touched []string

	m.mu.Lock()
	for _, change := range msg.PriceChanges {
		ref, tracked := m.tokens[change.AssetID]
		book, ok := m.books[change.AssetID]
		if !tracked || !ok {
			UpdatesIgnoredTotal.WithLabelValues("no_snapshot").Inc()
			continue
		}

		price, err := decimal.NewFromString(change.Price)
		if err != nil {
			UpdatesIgnoredTotal.WithLabelValues("bad_price").Inc()
			continue
		}
		size, err := decimal.NewFromString(change.Size)
		if err != nil {
			UpdatesIgnoredTotal.WithLabelValues("bad_size").Inc()
			continue
		}

		switch change.Side {
		case "BUY":
			book.Bids = setLevel(book.Bids, price, size, true)
		case "SELL":
			book.Asks = setLevel(book.Asks, price, size, false)
		default:
			UpdatesIgnoredTotal.WithLabelValues("bad_side").Inc()
			continue
		}
		book.Timestamp = received

		if !seen[ref.marketID] {
			seen[ref.marketID] = true
			touched = append(touched, ref.marketID)
		}
	}
	m.mu.Unlock()

	return touched
}

// setLevel upserts or removes (size zero) a level, keeping the ladder sorted.
func setLevel(levels []types.Level, price, size decimal.Decimal, descending bool) []types.Level {
	before := func(a, b decimal.Decimal) bool {
		if descending {
			return a.GreaterThan(b)
		}
		return a.LessThan(b)
	}

	i := sort.Search(len(levels), func(i int) bool {
		return !before(levels[i].Price, price)
	})

	if i < len(levels) && levels[i].Price.Equal(price) {
		if !size.IsPositive() {
			return append(levels[:i], levels[i+1:]...)
		}
		levels[i].Size = size
		return levels
	}

	if !size.IsPositive() {
		return levels
	}

	levels = append(levels, types.Level{})
	copy(levels[i+1:], levels[i:])
	levels[i] = types.Level{Price: price, Size: size}

	return levels
}

func (m *Manager) notify(marketID string) {
	select {
	case m.updateChan <- marketID:
	default:
		m.logger.Warn("orderbook-update-channel-full",
			zap.String("market-id", marketID),
			zap.Int("buffer-size", cap(m.updateChan)))
		UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

// Book returns a copy of the book for a token.
func (m *Manager) Book(tokenID string) (*types.OrderBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	book, ok := m.books[tokenID]
	if !ok {
		return nil, false
	}

	return book.Clone(), true
}

// MarketBook returns copies of both books of a market, paired with the
// older of their timestamps. False until both sides have a snapshot.
func (m *Manager) MarketBook(marketID string) (*types.MarketBook, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	market, ok := m.markets[marketID]
	if !ok {
		return nil, false
	}

	yes, okYes := m.books[market.YesTokenID]
	no, okNo := m.books[market.NoTokenID]
	if !okYes || !okNo {
		return nil, false
	}

	return types.NewMarketBook(marketID, yes.Clone(), no.Clone()), true
}

// UpdateChan delivers the id of each market whose book changed.
func (m *Manager) UpdateChan() <-chan string {
	return m.updateChan
}

// Close waits for the processing loop and closes the update channel.
func (m *Manager) Close() error {
	m.logger.Info("closing-orderbook-manager")
	m.wg.Wait()
	close(m.updateChan)
	m.logger.Info("orderbook-manager-closed")
	return nil
}
