package types

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// OrderError represents an error that occurred during order placement or execution.
type OrderError struct {
	Code    string // API error code or internal error code
	Message string // Human-readable error message
	OrderID string // Order ID if available
	Side    string // YES or NO
}

func (e *OrderError) Error() string {
	if e.OrderID != "" {
		return fmt.Sprintf("%s order failed (ID: %s): %s (%s)", e.Side, e.OrderID, e.Message, e.Code)
	}

	return fmt.Sprintf("%s order failed: %s (%s)", e.Side, e.Message, e.Code)
}

// Known CLOB API error codes
const (
	ErrInvalidMinTickSize = "INVALID_ORDER_MIN_TICK_SIZE"
	ErrNotEnoughBalance   = "INVALID_ORDER_NOT_ENOUGH_BALANCE"
	ErrFOKNotFilled       = "FOK_ORDER_NOT_FILLED_ERROR"
	ErrMarketNotReady     = "MARKET_NOT_READY"
	ErrUnmatched          = "UNMATCHED"
	ErrUnknownStatus      = "UNKNOWN_STATUS"
	ErrRateLimited        = "RATE_LIMITED"
	ErrServerError        = "SERVER_ERROR"
)

var (
	// ErrStaleBook is returned when a book snapshot is older than the staleness threshold.
	ErrStaleBook = errors.New("order book is stale")
	// ErrNoLiquidity is returned when a side has no asks.
	ErrNoLiquidity = errors.New("no liquidity")
	// ErrPriceSourceMismatch marks a leg price that was not derived from the evaluated book.
	ErrPriceSourceMismatch = errors.New("leg price not derived from evaluated book")
	// ErrSizeSourceMismatch marks a leg size exceeding the liquidity of the evaluated book.
	ErrSizeSourceMismatch = errors.New("leg size exceeds evaluated book liquidity")
	// ErrDuplicateSettlementClaim is returned when a second settlement_claim entry is written for a position.
	ErrDuplicateSettlementClaim = errors.New("duplicate settlement claim")
	// ErrExecutionInFlight is returned when a market already has an execution attempt running.
	ErrExecutionInFlight = errors.New("execution already in flight for market")
	// ErrTransient wraps retryable failures from collaborators.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned for status regressions.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var orderErr *OrderError
	if errors.As(err, &orderErr) {
		return orderErr.Code == ErrRateLimited || orderErr.Code == ErrServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
