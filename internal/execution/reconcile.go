package execution

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

// ReconcileReport summarizes a startup consistency check.
type ReconcileReport struct {
	Canceled    int
	FillUnknown int
	Flagged     int
}

// Reconcile compares exchange open orders with locally pending orders after
// a restart. Open exchange orders are canceled, since the engine never rests
// orders. Local pending orders are closed as fill_unknown and their
// positions are flagged for review.
func (e *Executor) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	if e.exchange != nil {
		canceled, err := e.CancelOutstanding(ctx)
		if err != nil {
			return report, err
		}
		report.Canceled = canceled
	}

	pending, err := e.store.ListPendingOrders(ctx)
	if err != nil {
		return report, fmt.Errorf("list pending orders: %w", err)
	}

	flagged := make(map[string]bool)
	for _, rec := range pending {
		rec.Result.Status = types.OrderFillUnknown
		if err := e.store.SaveOrder(ctx, rec); err != nil {
			return report, fmt.Errorf("close order %s: %w", rec.Request.ClientOrderID, err)
		}
		report.FillUnknown++
		ReconcileActionsTotal.WithLabelValues("fill_unknown").Inc()

		if rec.PositionID == "" || flagged[rec.PositionID] {
			continue
		}
		flagged[rec.PositionID] = true

		pos, err := e.store.GetPosition(ctx, rec.PositionID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return report, fmt.Errorf("get position %s: %w", rec.PositionID, err)
		}
		if pos.Terminal() || pos.Status == types.PositionNeedsReview {
			continue
		}

		pos.Status = types.PositionNeedsReview
		pos.Reason = "order fill unknown after restart"
		pos.UpdatedAt = e.now()
		if err := e.store.SavePosition(ctx, pos); err != nil {
			return report, fmt.Errorf("flag position %s: %w", pos.ID, err)
		}
		report.Flagged++
		ReconcileActionsTotal.WithLabelValues("flagged").Inc()

		e.logger.Warn("position-flagged-on-reconcile",
			zap.String("position-id", pos.ID),
			zap.String("market-id", pos.MarketID),
			zap.String("client-order-id", rec.Request.ClientOrderID))
	}

	e.logger.Info("reconcile-completed",
		zap.Int("canceled", report.Canceled),
		zap.Int("fill-unknown", report.FillUnknown),
		zap.Int("flagged", report.Flagged))

	return report, nil
}

// CancelOutstanding cancels every order resting on the exchange.
func (e *Executor) CancelOutstanding(ctx context.Context) (int, error) {
	if e.exchange == nil {
		return 0, nil
	}

	open, err := e.exchange.OpenOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}

	canceled := 0
	for _, o := range open {
		ok, err := e.exchange.CancelOrder(ctx, o.OrderID)
		if err != nil {
			e.logger.Error("cancel-order-failed", zap.String("order-id", o.OrderID), zap.Error(err))
			continue
		}
		if ok {
			canceled++
			ReconcileActionsTotal.WithLabelValues("canceled").Inc()
			e.logger.Info("order-canceled",
				zap.String("order-id", o.OrderID),
				zap.String("token-id", o.TokenID))
		}
	}

	return canceled, nil
}
