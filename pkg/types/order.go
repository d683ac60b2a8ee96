package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

// Order sides.
const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// TimeInForce controls how an unfilled remainder is handled.
type TimeInForce string

// Supported time-in-force policies. Both never rest on the book.
const (
	FillOrKill        TimeInForce = "FOK"
	ImmediateOrCancel TimeInForce = "FAK"
)

// OrderRequest is a single leg order. ClientOrderID is the idempotency key
// and is reused verbatim on retry.
type OrderRequest struct {
	ClientOrderID string
	MarketID      string
	TokenID       string
	Outcome       Outcome
	Side          Side
	Size          decimal.Decimal // shares
	LimitPrice    decimal.Decimal
	TimeInForce   TimeInForce
	TickSize      decimal.Decimal
}

// OrderStatus is the fill state of an order.
type OrderStatus string

// Order statuses. IOC/FOK orders are terminal once any result is known;
// OrderPending marks an order recorded before the exchange answered.
// OrderFillUnknown closes a pending order whose result was never learned.
const (
	OrderPending         OrderStatus = "pending"
	OrderUnfilled        OrderStatus = "unfilled"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderRejected        OrderStatus = "rejected"
	OrderExpired         OrderStatus = "expired"
	OrderFillUnknown     OrderStatus = "fill_unknown"
)

// OrderResult is the exchange's answer to an OrderRequest.
type OrderResult struct {
	OrderID       string
	ClientOrderID string
	Status        OrderStatus
	FilledSize    decimal.Decimal
	AvgPrice      decimal.Decimal
	Latency       time.Duration
	Err           error
}

// Cost returns FilledSize * AvgPrice.
func (r *OrderResult) Cost() decimal.Decimal {
	return r.FilledSize.Mul(r.AvgPrice)
}

// OrderRecord is the persisted history of a submitted order.
type OrderRecord struct {
	Request    OrderRequest
	Result     OrderResult
	PositionID string
	Purpose    string // entry, rebalance
	CreatedAt  time.Time
}

// Terminal reports whether the order can no longer change.
func (r *OrderRecord) Terminal() bool {
	return r.Result.Status != OrderPending
}
