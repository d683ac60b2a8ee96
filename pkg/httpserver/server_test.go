package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/internal/execution"
	"github.com/mselser95/dualleg-arb/pkg/healthprobe"
	"github.com/mselser95/dualleg-arb/pkg/types"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeRisk struct{}

func (fakeRisk) Snapshot() types.CircuitBreakerState {
	return types.CircuitBreakerState{
		Level:    types.LevelWarning,
		Reason:   "daily loss at 72% of limit",
		DailyPnL: decimal.RequireFromString("-72"),
		Day:      "2026-03-10",
	}
}

type fakeExecution struct {
	limit int
}

func (f *fakeExecution) Snapshot() execution.Snapshot {
	return execution.Snapshot{Mode: "paper", InFlight: []string{"m1"}}
}

func (f *fakeExecution) RecentActivity(limit int) []execution.Activity {
	f.limit = limit
	return []execution.Activity{{Kind: execution.ActivitySignal, MarketID: "m1", ID: "s1"}}
}

type fakePositions struct {
	statuses []types.PositionStatus
	err      error
}

func (f *fakePositions) ListPositions(_ context.Context, statuses ...types.PositionStatus) ([]*types.Position, error) {
	f.statuses = statuses
	if f.err != nil {
		return nil, f.err
	}
	return []*types.Position{{
		ID:        "p1",
		MarketID:  "m1",
		YesShares: decimal.NewFromInt(20),
		NoShares:  decimal.NewFromInt(20),
		YesCost:   decimal.RequireFromString("9.2"),
		NoCost:    decimal.NewFromInt(10),
		Status:    types.PositionOpen,
		OpenedAt:  now,
	}}, nil
}

type fakeOrders struct {
	limit int
	err   error
}

func (f *fakeOrders) ListRecentOrders(_ context.Context, limit int) ([]*types.OrderRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []*types.OrderRecord{{
		Request: types.OrderRequest{
			ClientOrderID: "c1",
			MarketID:      "m1",
			Outcome:       types.OutcomeNo,
			Side:          types.Buy,
			Size:          decimal.NewFromInt(60),
			LimitPrice:    decimal.RequireFromString("0.52"),
			TimeInForce:   types.ImmediateOrCancel,
		},
		Result: types.OrderResult{
			OrderID:    "o1",
			Status:     types.OrderFilled,
			FilledSize: decimal.NewFromInt(60),
			AvgPrice:   decimal.RequireFromString("0.51"),
		},
		PositionID: "p1",
		Purpose:    "rebalance",
		CreatedAt:  now,
	}}, nil
}

type fakeLedger struct {
	from, to time.Time
}

func (f *fakeLedger) SumLedger(_ context.Context, from, to time.Time) (decimal.Decimal, error) {
	f.from, f.to = from, to
	return decimal.RequireFromString("1.25"), nil
}

type fixture struct {
	router    http.Handler
	health    *healthprobe.HealthChecker
	execution *fakeExecution
	positions *fakePositions
	orders    *fakeOrders
	ledger    *fakeLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		health:    healthprobe.New(),
		execution: &fakeExecution{},
		positions: &fakePositions{},
		orders:    &fakeOrders{},
		ledger:    &fakeLedger{},
	}
	f.router = NewRouter(&Config{
		Port:          "0",
		Logger:        zaptest.NewLogger(t),
		HealthChecker: f.health,
		Risk:          fakeRisk{},
		Execution:     f.execution,
		Positions:     f.positions,
		Orders:        f.orders,
		Ledger:        f.ledger,
		Now:           func() time.Time { return now },
	})

	return f
}

func (f *fixture) get(t *testing.T, path string, out interface{}) int {
	t.Helper()

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code < 500 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}

	return rec.Code
}

func TestRouter_Probes(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.get(t, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/ready", nil))

	f.health.SetReady(true)
	assert.Equal(t, http.StatusOK, f.get(t, "/ready", nil))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRouter_Risk(t *testing.T) {
	f := newFixture(t)

	var resp struct {
		Breaker struct {
			Level    string `json:"level"`
			Reason   string `json:"reason"`
			DailyPnL string `json:"daily_pnl"`
		} `json:"breaker"`
		Execution struct {
			Mode     string   `json:"mode"`
			InFlight []string `json:"in_flight"`
		} `json:"execution"`
	}
	require.Equal(t, http.StatusOK, f.get(t, "/api/risk", &resp))

	assert.Equal(t, "warning", resp.Breaker.Level)
	assert.Equal(t, "-72", resp.Breaker.DailyPnL)
	assert.Equal(t, "paper", resp.Execution.Mode)
	assert.Equal(t, []string{"m1"}, resp.Execution.InFlight)
}

func TestRouter_Positions(t *testing.T) {
	f := newFixture(t)

	var views []PositionView
	require.Equal(t, http.StatusOK, f.get(t, "/api/positions?status=open,needs_review", &views))
	assert.Equal(t, []types.PositionStatus{types.PositionOpen, types.PositionNeedsReview}, f.positions.statuses)

	require.Len(t, views, 1)
	assert.Equal(t, "p1", views[0].ID)
	assert.True(t, views[0].EntryCost.Equal(decimal.RequireFromString("19.2")))
	assert.True(t, views[0].ExpectedProfit.Equal(decimal.RequireFromString("0.8")))
	assert.True(t, views[0].HedgeRatio.Equal(decimal.NewFromInt(1)))

	require.Equal(t, http.StatusOK, f.get(t, "/api/positions", &views))
	assert.Empty(t, f.positions.statuses)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/positions?status=bogus", &errResp))
	assert.Contains(t, errResp.Error, "bogus")

	f.positions.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/positions", nil))
}

func TestRouter_Activity(t *testing.T) {
	f := newFixture(t)

	var feed []execution.Activity
	require.Equal(t, http.StatusOK, f.get(t, "/api/activity", &feed))
	assert.Equal(t, defaultActivityLimit, f.execution.limit)
	require.Len(t, feed, 1)
	assert.Equal(t, "s1", feed[0].ID)

	require.Equal(t, http.StatusOK, f.get(t, "/api/activity?limit=10000", &feed))
	assert.Equal(t, maxActivityLimit, f.execution.limit)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/activity?limit=-1", nil))
}

func TestRouter_Orders(t *testing.T) {
	f := newFixture(t)

	var orders []OrderView
	require.Equal(t, http.StatusOK, f.get(t, "/api/orders", &orders))
	assert.Equal(t, defaultActivityLimit, f.orders.limit)
	require.Len(t, orders, 1)
	assert.Equal(t, "c1", orders[0].ClientOrderID)
	assert.Equal(t, "rebalance", orders[0].Purpose)
	assert.Equal(t, types.OrderFilled, orders[0].Status)
	assert.True(t, orders[0].FilledSize.Equal(decimal.NewFromInt(60)))

	require.Equal(t, http.StatusOK, f.get(t, "/api/orders?limit=5", &orders))
	assert.Equal(t, 5, f.orders.limit)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/orders?limit=abc", nil))

	f.orders.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/api/orders", nil))
}

func TestRouter_PnL(t *testing.T) {
	f := newFixture(t)

	var resp PnLResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/pnl", &resp))
	assert.Equal(t, "2026-03-10", resp.Day)
	assert.True(t, resp.Realized.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), f.ledger.from)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), f.ledger.to)

	require.Equal(t, http.StatusOK, f.get(t, "/api/pnl?day=2026-03-01", &resp))
	assert.Equal(t, "2026-03-01", resp.Day)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/pnl?day=yesterday", nil))
}

func TestRouter_OptionalRoutes(t *testing.T) {
	router := NewRouter(&Config{
		Port:          "0",
		Logger:        zaptest.NewLogger(t),
		HealthChecker: healthprobe.New(),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/risk", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StartShutdown(t *testing.T) {
	s := New(&Config{
		Port:          "0",
		Logger:        zaptest.NewLogger(t),
		HealthChecker: healthprobe.New(),
	})

	done := make(chan error, 1)
	go func() { done <- s.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Shutdown")
	}
}
