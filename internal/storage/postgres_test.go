package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"go.uber.org/zap/zaptest"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

func newMockStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}, mock
}

func TestPostgresStorage_AppendLedger(t *testing.T) {
	store, mock := newMockStorage(t)
	now := time.Now()

	entry := &types.LedgerEntry{ID: "l1", PositionID: "p1", Amount: d("0.8"), Type: types.PnLSettlementClaim, Reason: "claim", CreatedAt: now}

	mock.ExpectExec("INSERT INTO realized_pnl_ledger").
		WithArgs("l1", "p1", sqlmock.AnyArg(), "settlement_claim", "claim", now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.AppendLedger(context.Background(), entry); err != nil {
		t.Fatalf("AppendLedger() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_AppendLedger_DuplicateClaim(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO realized_pnl_ledger").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := store.AppendLedger(context.Background(), &types.LedgerEntry{ID: "l2", PositionID: "p1", Type: types.PnLSettlementClaim})
	if !errors.Is(err, types.ErrDuplicateSettlementClaim) {
		t.Fatalf("expected ErrDuplicateSettlementClaim, got %v", err)
	}
}

func TestPostgresStorage_AppendLedger_OtherError(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO realized_pnl_ledger").WillReturnError(sqlmock.ErrCancelled)

	err := store.AppendLedger(context.Background(), &types.LedgerEntry{ID: "l3", PositionID: "p1", Type: types.PnLAdjustment})
	if err == nil || errors.Is(err, types.ErrDuplicateSettlementClaim) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestPostgresStorage_CompleteSettlement(t *testing.T) {
	store, mock := newMockStorage(t)
	now := time.Now()
	proceeds := d("20")

	entry := &types.SettlementEntry{PositionID: "p1", Claimed: true, Proceeds: &proceeds, Attempts: 1, ClaimedAt: now}
	ledger := &types.LedgerEntry{ID: "l1", PositionID: "p1", Amount: d("0.8"), Type: types.PnLSettlementClaim, CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE settlement_queue").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO realized_pnl_ledger").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE positions SET status").
		WithArgs("p1", "claimed", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.CompleteSettlement(context.Background(), entry, ledger, types.PositionClaimed); err != nil {
		t.Fatalf("CompleteSettlement() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_CompleteSettlement_AlreadyClaimed(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE settlement_queue").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.CompleteSettlement(context.Background(),
		&types.SettlementEntry{PositionID: "p1"},
		&types.LedgerEntry{ID: "l1", PositionID: "p1", Type: types.PnLSettlementClaim},
		types.PositionClaimed)
	if !errors.Is(err, types.ErrDuplicateSettlementClaim) {
		t.Fatalf("expected ErrDuplicateSettlementClaim, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_SumLedger(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "with-entries", value: "-12.5", want: "-12.5"},
		{name: "empty-day", value: nil, want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStorage(t)
			from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

			mock.ExpectQuery(`SELECT SUM\(pnl_amount\) FROM realized_pnl_ledger`).
				WithArgs(from, from.Add(24*time.Hour)).
				WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(tt.value))

			sum, err := store.SumLedger(context.Background(), from, from.Add(24*time.Hour))
			if err != nil {
				t.Fatalf("SumLedger() error = %v", err)
			}
			if !sum.Equal(d(tt.want)) {
				t.Errorf("SumLedger() = %s, want %s", sum, tt.want)
			}
		})
	}
}

func TestPostgresStorage_GetDailyStats_NoRow(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT exposure, trade_count, failures FROM daily_stats").
		WithArgs("2026-03-01").
		WillReturnRows(sqlmock.NewRows([]string{"exposure", "trade_count", "failures"}))

	st, err := store.GetDailyStats(context.Background(), "2026-03-01")
	if err != nil {
		t.Fatalf("GetDailyStats() error = %v", err)
	}
	if !st.Exposure.IsZero() || st.TradeCount != 0 {
		t.Errorf("expected zeroed stats, got %+v", st)
	}
}

func TestPostgresStorage_ListPositions(t *testing.T) {
	store, mock := newMockStorage(t)
	now := time.Now()

	cols := []string{"id", "market_id", "yes_shares", "no_shares", "yes_cost", "no_cost", "status", "reason", "opened_at", "updated_at"}
	mock.ExpectQuery("SELECT (.+) FROM positions WHERE status = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("p1", "m1", "100", "40", "46", "20", "needs_review", "rebalance failed", now, now))

	positions, err := store.ListPositions(context.Background(), types.PositionNeedsReview)
	if err != nil {
		t.Fatalf("ListPositions() error = %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(positions))
	}
	p := positions[0]
	if p.Status != types.PositionNeedsReview || !p.HedgeRatio().Equal(d("0.4")) {
		t.Errorf("unexpected position %+v", p)
	}
}

func TestPostgresStorage_GetPosition_NotFound(t *testing.T) {
	store, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT (.+) FROM positions WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetPosition(context.Background(), "missing")
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStorage_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	store := &PostgresStorage{db: db, logger: zaptest.NewLogger(t)}
	mock.ExpectClose()

	if err := store.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStorage_ListDueSettlements(t *testing.T) {
	now := time.Now()
	cols := []string{
		"position_id", "market_id", "winner", "yes_shares", "no_shares", "entry_cost", "proceeds", "claimed",
		"gave_up", "attempts", "next_retry_at", "last_error", "queued_at", "claimed_at",
	}

	tests := []struct {
		name  string
		limit int
		query string
		args  []driver.Value
	}{
		{name: "unbounded", limit: 0, query: `ORDER BY next_retry_at$`, args: []driver.Value{now}},
		{name: "negative is unbounded", limit: -1, query: `ORDER BY next_retry_at$`, args: []driver.Value{now}},
		{name: "bounded", limit: 5, query: `ORDER BY next_retry_at LIMIT \$2$`, args: []driver.Value{now, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStorage(t)

			mock.ExpectQuery(tt.query).
				WithArgs(tt.args...).
				WillReturnRows(sqlmock.NewRows(cols).
					AddRow("p1", "m1", "YES", "20", "0", "9.6", nil, false, false, 0, now, "", now, nil).
					AddRow("p2", "m1", "YES", "10", "10", "9.5", nil, false, false, 1, now, "rpc down", now, nil))

			due, err := store.ListDueSettlements(context.Background(), now, tt.limit)
			if err != nil {
				t.Fatalf("ListDueSettlements() error = %v", err)
			}
			if len(due) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(due))
			}
			if due[0].PositionID != "p1" || due[0].Winner != types.OutcomeYes {
				t.Errorf("unexpected entry %+v", due[0])
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}
