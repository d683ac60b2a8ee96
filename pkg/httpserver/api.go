package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/internal/execution"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

// RiskSource exposes the circuit-breaker state.
type RiskSource interface {
	Snapshot() types.CircuitBreakerState
}

// ExecutionSource exposes executor state and the recent-activity feed.
type ExecutionSource interface {
	Snapshot() execution.Snapshot
	RecentActivity(limit int) []execution.Activity
}

// PositionSource lists stored positions.
type PositionSource interface {
	ListPositions(ctx context.Context, statuses ...types.PositionStatus) ([]*types.Position, error)
}

// OrderSource lists persisted orders.
type OrderSource interface {
	ListRecentOrders(ctx context.Context, limit int) ([]*types.OrderRecord, error)
}

// LedgerSource sums realized P&L.
type LedgerSource interface {
	SumLedger(ctx context.Context, from, to time.Time) (decimal.Decimal, error)
}

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

type api struct {
	breaker   RiskSource
	execution ExecutionSource
	store     PositionSource
	orders    OrderSource
	ledger    LedgerSource
	logger    *zap.Logger
	now       func() time.Time
}

func newAPI(cfg *Config) *api {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &api{
		breaker:   cfg.Risk,
		execution: cfg.Execution,
		store:     cfg.Positions,
		orders:    cfg.Orders,
		ledger:    cfg.Ledger,
		logger:    cfg.Logger,
		now:       now,
	}
}

// RiskResponse is the body of GET /api/risk.
type RiskResponse struct {
	Breaker   types.CircuitBreakerState `json:"breaker"`
	Execution *execution.Snapshot       `json:"execution,omitempty"`
}

func (a *api) risk(w http.ResponseWriter, _ *http.Request) {
	resp := RiskResponse{Breaker: a.breaker.Snapshot()}
	if a.execution != nil {
		snap := a.execution.Snapshot()
		resp.Execution = &snap
	}

	a.writeJSON(w, http.StatusOK, resp)
}

// PositionView is the JSON form of a position.
type PositionView struct {
	ID               string               `json:"id"`
	MarketID         string               `json:"market_id"`
	Status           types.PositionStatus `json:"status"`
	Reason           string               `json:"reason,omitempty"`
	YesShares        decimal.Decimal      `json:"yes_shares"`
	NoShares         decimal.Decimal      `json:"no_shares"`
	EntryCost        decimal.Decimal      `json:"entry_cost"`
	HedgeRatio       decimal.Decimal      `json:"hedge_ratio"`
	ExpectedProfit   decimal.Decimal      `json:"expected_profit"`
	UnhedgedExposure decimal.Decimal      `json:"unhedged_exposure"`
	OpenedAt         time.Time            `json:"opened_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func newPositionView(p *types.Position) PositionView {
	return PositionView{
		ID:               p.ID,
		MarketID:         p.MarketID,
		Status:           p.Status,
		Reason:           p.Reason,
		YesShares:        p.YesShares,
		NoShares:         p.NoShares,
		EntryCost:        p.EntryCost(),
		HedgeRatio:       p.HedgeRatio(),
		ExpectedProfit:   p.ExpectedProfit(),
		UnhedgedExposure: p.UnhedgedExposure(),
		OpenedAt:         p.OpenedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

var knownStatuses = map[types.PositionStatus]bool{
	types.PositionOpen:                true,
	types.PositionQueuedForSettlement: true,
	types.PositionClaimed:             true,
	types.PositionResolvedStale:       true,
	types.PositionNeedsReview:         true,
}

// positions handles GET /api/positions?status=open,needs_review.
func (a *api) positions(w http.ResponseWriter, r *http.Request) {
	var statuses []types.PositionStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := types.PositionStatus(strings.TrimSpace(s))
			if !knownStatuses[status] {
				a.writeError(w, http.StatusBadRequest, "unknown status: "+string(status))
				return
			}
			statuses = append(statuses, status)
		}
	}

	positions, err := a.store.ListPositions(r.Context(), statuses...)
	if err != nil {
		a.logger.Error("list-positions-failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, newPositionView(p))
	}

	a.writeJSON(w, http.StatusOK, views)
}

// parseLimit reads ?limit=N, capped at maxActivityLimit.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultActivityLimit, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}

	return min(n, maxActivityLimit), true
}

// activity handles GET /api/activity?limit=N.
func (a *api) activity(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	a.writeJSON(w, http.StatusOK, a.execution.RecentActivity(limit))
}

// OrderView is the JSON form of a persisted order.
type OrderView struct {
	ClientOrderID string            `json:"client_order_id"`
	OrderID       string            `json:"order_id,omitempty"`
	PositionID    string            `json:"position_id"`
	MarketID      string            `json:"market_id"`
	Purpose       string            `json:"purpose"`
	Outcome       types.Outcome     `json:"outcome"`
	Side          types.Side        `json:"side"`
	Size          decimal.Decimal   `json:"size"`
	LimitPrice    decimal.Decimal   `json:"limit_price"`
	TimeInForce   types.TimeInForce `json:"time_in_force"`
	Status        types.OrderStatus `json:"status"`
	FilledSize    decimal.Decimal   `json:"filled_size"`
	AvgPrice      decimal.Decimal   `json:"avg_price"`
	CreatedAt     time.Time         `json:"created_at"`
}

func newOrderView(rec *types.OrderRecord) OrderView {
	return OrderView{
		ClientOrderID: rec.Request.ClientOrderID,
		OrderID:       rec.Result.OrderID,
		PositionID:    rec.PositionID,
		MarketID:      rec.Request.MarketID,
		Purpose:       rec.Purpose,
		Outcome:       rec.Request.Outcome,
		Side:          rec.Request.Side,
		Size:          rec.Request.Size,
		LimitPrice:    rec.Request.LimitPrice,
		TimeInForce:   rec.Request.TimeInForce,
		Status:        rec.Result.Status,
		FilledSize:    rec.Result.FilledSize,
		AvgPrice:      rec.Result.AvgPrice,
		CreatedAt:     rec.CreatedAt,
	}
}

// recentOrders handles GET /api/orders?limit=N, newest first. Unlike the
// activity feed it reads from storage and so survives restarts.
func (a *api) recentOrders(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	records, err := a.orders.ListRecentOrders(r.Context(), limit)
	if err != nil {
		a.logger.Error("list-orders-failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	views := make([]OrderView, 0, len(records))
	for _, rec := range records {
		views = append(views, newOrderView(rec))
	}

	a.writeJSON(w, http.StatusOK, views)
}

// PnLResponse is the body of GET /api/pnl.
type PnLResponse struct {
	Day      string          `json:"day"`
	Realized decimal.Decimal `json:"realized"`
}

// pnl handles GET /api/pnl?day=YYYY-MM-DD, defaulting to the current UTC day.
func (a *api) pnl(w http.ResponseWriter, r *http.Request) {
	day := a.now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	sum, err := a.ledger.SumLedger(r.Context(), day, day.Add(24*time.Hour))
	if err != nil {
		a.logger.Error("sum-ledger-failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to sum ledger")
		return
	}

	a.writeJSON(w, http.StatusOK, PnLResponse{Day: day.Format(time.DateOnly), Realized: sum})
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (a *api) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, ErrorResponse{Error: message})
}

func (a *api) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}
