package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

const (
	purposeEntry     = "entry"
	purposeRebalance = "rebalance"
)

// LegOutcome is the engine's view of one submitted order. Unknown marks a
// leg whose exchange outcome was never learned; it counts as unfilled and its
// order record stays pending for reconciliation.
type LegOutcome struct {
	Request types.OrderRequest
	Result  types.OrderResult
	Unknown bool
}

func newOrder(market *types.Market, outcome types.Outcome, side types.Side, shares, limit decimal.Decimal, tif types.TimeInForce) *types.OrderRequest {
	return &types.OrderRequest{
		ClientOrderID: uuid.NewString(),
		MarketID:      market.ID,
		TokenID:       market.TokenID(outcome),
		Outcome:       outcome,
		Side:          side,
		Size:          shares,
		LimitPrice:    limit,
		TimeInForce:   tif,
		TickSize:      market.TickSize,
	}
}

// submitPair sends both legs concurrently and waits for both results.
func (e *Executor) submitPair(ctx context.Context, positionID string, yes, no *types.OrderRequest) (LegOutcome, LegOutcome) {
	var wg sync.WaitGroup
	var yesOut, noOut LegOutcome

	wg.Add(2)
	go func() {
		defer wg.Done()
		yesOut = e.submitLeg(ctx, yes, positionID, purposeEntry)
	}()
	go func() {
		defer wg.Done()
		noOut = e.submitLeg(ctx, no, positionID, purposeEntry)
	}()
	wg.Wait()

	return yesOut, noOut
}

// submitLeg records the order as pending, then submits it under the leg
// timeout, retrying transient failures with the same client order id.
func (e *Executor) submitLeg(ctx context.Context, req *types.OrderRequest, positionID, purpose string) LegOutcome {
	out := LegOutcome{Request: *req}
	rec := &types.OrderRecord{
		Request:    *req,
		Result:     types.OrderResult{ClientOrderID: req.ClientOrderID, Status: types.OrderPending},
		PositionID: positionID,
		Purpose:    purpose,
		CreatedAt:  e.now(),
	}

	if err := e.store.SaveOrder(ctx, rec); err != nil {
		e.logger.Error("order-record-failed",
			zap.String("client-order-id", req.ClientOrderID),
			zap.Error(err))
		out.Result = types.OrderResult{ClientOrderID: req.ClientOrderID, Status: types.OrderRejected, Err: err}
		LegOrdersTotal.WithLabelValues(purpose, string(types.OrderRejected)).Inc()
		return out
	}

	legCtx, cancel := context.WithTimeout(ctx, e.legTimeout)
	defer cancel()

	start := time.Now()
	backoff := e.retryBackoff
	var result *types.OrderResult
	var err error

	for attempt := 1; ; attempt++ {
		result, err = e.exchange.SubmitOrder(legCtx, req)
		if err == nil || !types.IsTransient(err) || attempt > e.submitRetries || legCtx.Err() != nil {
			break
		}

		LegRetriesTotal.Inc()
		e.logger.Warn("leg-submit-retry",
			zap.String("client-order-id", req.ClientOrderID),
			zap.String("outcome", string(req.Outcome)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-legCtx.Done():
		case <-timer.C:
		}
		timer.Stop()
		backoff *= 2
	}
	LegLatencySeconds.Observe(time.Since(start).Seconds())

	if err != nil || result == nil {
		LegUnknownTotal.Inc()
		LegOrdersTotal.WithLabelValues(purpose, "unknown").Inc()
		e.logger.Warn("leg-outcome-unknown",
			zap.String("client-order-id", req.ClientOrderID),
			zap.String("outcome", string(req.Outcome)),
			zap.Error(err))

		out.Unknown = true
		out.Result = types.OrderResult{ClientOrderID: req.ClientOrderID, Status: types.OrderUnfilled, Err: err}
		return out
	}

	out.Result = *result
	out.Result.ClientOrderID = req.ClientOrderID
	rec.Result = out.Result
	if err := e.store.SaveOrder(ctx, rec); err != nil {
		e.logger.Error("order-record-failed",
			zap.String("client-order-id", req.ClientOrderID),
			zap.Error(err))
	}

	LegOrdersTotal.WithLabelValues(purpose, string(result.Status)).Inc()
	e.activity.add(Activity{
		Kind:     ActivityOrder,
		MarketID: req.MarketID,
		ID:       req.ClientOrderID,
		Detail:   string(req.Side) + " " + string(req.Outcome) + " " + string(result.Status),
		Shares:   result.FilledSize,
		Price:    result.AvgPrice,
		At:       e.now(),
	})

	e.logger.Info("leg-completed",
		zap.String("client-order-id", req.ClientOrderID),
		zap.String("order-id", result.OrderID),
		zap.String("purpose", purpose),
		zap.String("outcome", string(req.Outcome)),
		zap.String("side", string(req.Side)),
		zap.Stringer("limit", req.LimitPrice),
		zap.Stringer("size", req.Size),
		zap.String("status", string(result.Status)),
		zap.Stringer("filled", result.FilledSize),
		zap.Stringer("avg-price", result.AvgPrice),
		zap.Error(result.Err))

	return out
}
