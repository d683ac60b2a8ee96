package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/pricing"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// PaperExchange simulates immediate fills against the live book. It never
// rests orders.
type PaperExchange struct {
	books   BookSource
	logger  *zap.Logger
	mu      sync.Mutex
	balance decimal.Decimal
	results map[string]*types.OrderResult // by client order id
}

// NewPaperExchange creates a paper exchange with a starting balance.
func NewPaperExchange(books BookSource, balance decimal.Decimal, logger *zap.Logger) *PaperExchange {
	return &PaperExchange{
		books:   books,
		logger:  logger,
		balance: balance,
		results: make(map[string]*types.OrderResult),
	}
}

// SubmitOrder fills against the current book. Resubmitting a client order
// id returns the original result.
func (p *PaperExchange) SubmitOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.results[req.ClientOrderID]; ok {
		cp := *prev
		return &cp, nil
	}

	result := &types.OrderResult{
		OrderID:       "paper-" + uuid.New().String(),
		ClientOrderID: req.ClientOrderID,
		Status:        types.OrderUnfilled,
	}

	book, ok := p.books.Book(req.TokenID)
	if !ok {
		result.Status = types.OrderRejected
		result.Err = &types.OrderError{Code: types.ErrMarketNotReady, Message: "no book", Side: string(req.Outcome)}
		return p.store(result, start), nil
	}

	var fill pricing.Fill
	if req.Side == types.Buy {
		fill = pricing.WalkAsks(book, req.Size, req.LimitPrice)
	} else {
		fill = pricing.WalkBids(book, req.Size, req.LimitPrice)
	}

	if req.TimeInForce == types.FillOrKill && fill.Shares.LessThan(req.Size) {
		fill = pricing.Fill{}
	}

	if req.Side == types.Buy && fill.Notional.GreaterThan(p.balance) {
		result.Status = types.OrderRejected
		result.Err = &types.OrderError{Code: types.ErrNotEnoughBalance, Message: "insufficient balance", Side: string(req.Outcome)}
		return p.store(result, start), nil
	}

	if fill.Shares.IsPositive() {
		result.FilledSize = fill.Shares
		result.AvgPrice = fill.AvgPrice()
		result.Status = types.OrderPartiallyFilled
		if fill.Shares.Equal(req.Size) {
			result.Status = types.OrderFilled
		}
		if req.Side == types.Buy {
			p.balance = p.balance.Sub(fill.Notional)
		} else {
			p.balance = p.balance.Add(fill.Notional)
		}
	}

	p.logger.Debug("paper-order-filled",
		zap.String("client-order-id", req.ClientOrderID),
		zap.String("token-id", req.TokenID),
		zap.String("side", string(req.Side)),
		zap.String("limit", req.LimitPrice.String()),
		zap.String("requested", req.Size.String()),
		zap.String("filled", result.FilledSize.String()),
		zap.String("avg-price", result.AvgPrice.String()))

	return p.store(result, start), nil
}

func (p *PaperExchange) store(result *types.OrderResult, start time.Time) *types.OrderResult {
	result.Latency = time.Since(start)
	p.results[result.ClientOrderID] = result
	cp := *result

	return &cp
}

// CancelOrder always reports false; paper orders never rest.
func (p *PaperExchange) CancelOrder(_ context.Context, orderID string) (bool, error) {
	if orderID == "" {
		return false, fmt.Errorf("order id cannot be empty")
	}

	return false, nil
}

// GetBalance returns the simulated collateral balance.
func (p *PaperExchange) GetBalance(_ context.Context) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.balance, nil
}

// Credit adds simulated settlement proceeds.
func (p *PaperExchange) Credit(amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.balance = p.balance.Add(amount)
}

// OpenOrders is always empty.
func (p *PaperExchange) OpenOrders(_ context.Context) ([]types.OpenOrder, error) {
	return nil, nil
}
