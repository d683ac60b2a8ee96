package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/internal/risk"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// MockExchange is a scripted exchange. Without a SubmitFunc every order
// fills in full at its limit price.
type MockExchange struct {
	SubmitFunc func(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error)
	Open       []types.OpenOrder
	Balance    decimal.Decimal

	mu       sync.Mutex
	requests []types.OrderRequest
	canceled []string
}

// SubmitOrder records req and delegates to SubmitFunc.
func (m *MockExchange) SubmitOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	fn := m.SubmitFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	return Fill(req, req.Size, req.LimitPrice), nil
}

// CancelOrder records the id and removes it from Open.
func (m *MockExchange) CancelOrder(_ context.Context, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.canceled = append(m.canceled, orderID)
	for i, o := range m.Open {
		if o.OrderID == orderID {
			m.Open = append(m.Open[:i], m.Open[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

// GetBalance returns Balance.
func (m *MockExchange) GetBalance(_ context.Context) (decimal.Decimal, error) {
	return m.Balance, nil
}

// OpenOrders returns a copy of Open.
func (m *MockExchange) OpenOrders(_ context.Context) ([]types.OpenOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]types.OpenOrder(nil), m.Open...), nil
}

// Requests returns every submitted request in order.
func (m *MockExchange) Requests() []types.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]types.OrderRequest(nil), m.requests...)
}

// Canceled returns every order id passed to CancelOrder.
func (m *MockExchange) Canceled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]string(nil), m.canceled...)
}

// Fill builds a result for req filled with shares at price.
func Fill(req *types.OrderRequest, shares, price decimal.Decimal) *types.OrderResult {
	status := types.OrderFilled
	switch {
	case shares.IsZero():
		status = types.OrderUnfilled
		price = decimal.Zero
	case shares.LessThan(req.Size):
		status = types.OrderPartiallyFilled
	}

	return &types.OrderResult{
		OrderID:       "ord-" + req.ClientOrderID,
		ClientOrderID: req.ClientOrderID,
		Status:        status,
		FilledSize:    shares,
		AvgPrice:      price,
	}
}

// Books is an in-memory book source.
type Books struct {
	mu    sync.Mutex
	books map[string]*types.MarketBook
}

// NewBooks creates a book source holding the given market books.
func NewBooks(books ...*types.MarketBook) *Books {
	b := &Books{books: make(map[string]*types.MarketBook)}
	for _, mb := range books {
		b.Set(mb)
	}

	return b
}

// Set replaces the book of a market.
func (b *Books) Set(mb *types.MarketBook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.books[mb.MarketID] = mb
}

// Book returns the book of a token.
func (b *Books) Book(tokenID string) (*types.OrderBook, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, mb := range b.books {
		if mb.Yes.TokenID == tokenID {
			return mb.Yes.Clone(), true
		}
		if mb.No.TokenID == tokenID {
			return mb.No.Clone(), true
		}
	}

	return nil, false
}

// MarketBook returns the paired book of a market.
func (b *Books) MarketBook(marketID string) (*types.MarketBook, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mb, ok := b.books[marketID]
	if !ok {
		return nil, false
	}

	return types.NewMarketBook(mb.MarketID, mb.Yes.Clone(), mb.No.Clone()), true
}

// Markets is a map-backed market source.
type Markets map[string]*types.Market

// Get returns a market by id.
func (m Markets) Get(id string) (*types.Market, bool) {
	market, ok := m[id]
	return market, ok
}

// RecordedTrade is one RecordTrade call.
type RecordedTrade struct {
	MarketID  string
	Committed decimal.Decimal
	Failed    bool
}

// MockRisk approves every signal at its proposed size unless CheckFunc is set.
type MockRisk struct {
	CheckFunc func(signal *types.TradingSignal, minShares decimal.Decimal) risk.Decision

	mu     sync.Mutex
	trades []RecordedTrade
}

// Check delegates to CheckFunc.
func (m *MockRisk) Check(signal *types.TradingSignal, minShares decimal.Decimal) risk.Decision {
	if m.CheckFunc != nil {
		return m.CheckFunc(signal, minShares)
	}

	return risk.Decision{Approved: true, Size: signal.Size()}
}

// RecordTrade records the call.
func (m *MockRisk) RecordTrade(_ context.Context, marketID string, committed decimal.Decimal, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.trades = append(m.trades, RecordedTrade{MarketID: marketID, Committed: committed, Failed: failed})
	return nil
}

// Trades returns every recorded trade.
func (m *MockRisk) Trades() []RecordedTrade {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]RecordedTrade(nil), m.trades...)
}

// MockClaimer is a scripted settlement claimer. Without a ClaimFunc it pays
// the winning side's shares.
type MockClaimer struct {
	ClaimFunc func(ctx context.Context, e *types.SettlementEntry) (decimal.Decimal, error)

	mu    sync.Mutex
	calls map[string]int
}

// ClaimSettlement records the call and delegates to ClaimFunc.
func (m *MockClaimer) ClaimSettlement(ctx context.Context, e *types.SettlementEntry) (decimal.Decimal, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[e.PositionID]++
	fn := m.ClaimFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, e)
	}
	if e.Winner == types.OutcomeNo {
		return e.NoShares, nil
	}

	return e.YesShares, nil
}

// Calls returns the number of claims for a position.
func (m *MockClaimer) Calls(positionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[positionID]
}
