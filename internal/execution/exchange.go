// Package execution turns trading signals into hedged two-leg positions.
package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// Exchange is the order venue. SubmitOrder returns an error only when the
// outcome is unknown (network failure, timeout, rate limit); an exchange
// rejection is a result with status Rejected.
type Exchange interface {
	SubmitOrder(ctx context.Context, req *types.OrderRequest) (*types.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	OpenOrders(ctx context.Context) ([]types.OpenOrder, error)
}

// BookSource provides current book snapshots.
type BookSource interface {
	Book(tokenID string) (*types.OrderBook, bool)
	MarketBook(marketID string) (*types.MarketBook, bool)
}
