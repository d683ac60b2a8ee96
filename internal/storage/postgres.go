package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mselser95/dualleg-arb/pkg/types"
)

const uniqueViolation = "23505"

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage connects to PostgreSQL and applies pending migrations.
func NewPostgresStorage(ctx context.Context, cfg *PostgresConfig) (*PostgresStorage, error) {
	db, err := OpenPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(ctx, db, cfg.Logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &PostgresStorage{db: db, logger: cfg.Logger}, nil
}

// OpenPostgres opens and pings a connection pool without migrating.
func OpenPostgres(ctx context.Context, cfg *PostgresConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return db, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const upsertPosition = `
	INSERT INTO positions (
		id, market_id, yes_shares, no_shares, yes_cost, no_cost, status, reason, opened_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		yes_shares = EXCLUDED.yes_shares,
		no_shares = EXCLUDED.no_shares,
		yes_cost = EXCLUDED.yes_cost,
		no_cost = EXCLUDED.no_cost,
		status = EXCLUDED.status,
		reason = EXCLUDED.reason,
		updated_at = EXCLUDED.updated_at
`

const selectPosition = `
	SELECT id, market_id, yes_shares, no_shares, yes_cost, no_cost, status, reason, opened_at, updated_at
	FROM positions
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func savePosition(ctx context.Context, ex execer, p *types.Position) error {
	_, err := ex.ExecContext(ctx, upsertPosition,
		p.ID, p.MarketID, p.YesShares, p.NoShares, p.YesCost, p.NoCost,
		string(p.Status), p.Reason, p.OpenedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// SavePosition inserts or replaces a position.
func (p *PostgresStorage) SavePosition(ctx context.Context, pos *types.Position) error {
	return savePosition(ctx, p.db, pos)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (*types.Position, error) {
	var pos types.Position
	var status string
	err := row.Scan(&pos.ID, &pos.MarketID, &pos.YesShares, &pos.NoShares, &pos.YesCost, &pos.NoCost,
		&status, &pos.Reason, &pos.OpenedAt, &pos.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pos.Status = types.PositionStatus(status)
	return &pos, nil
}

// GetPosition returns a position by id.
func (p *PostgresStorage) GetPosition(ctx context.Context, id string) (*types.Position, error) {
	pos, err := scanPosition(p.db.QueryRowContext(ctx, selectPosition+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select position: %w", err)
	}
	return pos, nil
}

// ListPositions returns positions in any of statuses, or all.
func (p *PostgresStorage) ListPositions(ctx context.Context, statuses ...types.PositionStatus) ([]*types.Position, error) {
	query := selectPosition
	args := make([]any, 0, 1)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY opened_at, id`

	return p.queryPositions(ctx, query, args...)
}

// ListPositionsByMarket returns positions on a market.
func (p *PostgresStorage) ListPositionsByMarket(ctx context.Context, marketID string) ([]*types.Position, error) {
	return p.queryPositions(ctx, selectPosition+` WHERE market_id = $1 ORDER BY opened_at, id`, marketID)
}

func (p *PostgresStorage) queryPositions(ctx context.Context, query string, args ...any) ([]*types.Position, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []*types.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, pos)
	}

	return out, rows.Err()
}

// ResolvePosition stores the position and optional ledger entry in one transaction.
func (p *PostgresStorage) ResolvePosition(ctx context.Context, pos *types.Position, entry *types.LedgerEntry) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		if entry != nil {
			if err := appendLedger(ctx, tx, entry); err != nil {
				return err
			}
		}
		return savePosition(ctx, tx, pos)
	})
}

const upsertOrder = `
	INSERT INTO orders (
		client_order_id, order_id, position_id, market_id, token_id, outcome, side, size,
		limit_price, time_in_force, purpose, status, filled_size, avg_price, latency_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (client_order_id) DO UPDATE SET
		order_id = EXCLUDED.order_id,
		position_id = EXCLUDED.position_id,
		status = EXCLUDED.status,
		filled_size = EXCLUDED.filled_size,
		avg_price = EXCLUDED.avg_price,
		latency_ms = EXCLUDED.latency_ms
`

const selectOrder = `
	SELECT client_order_id, order_id, position_id, market_id, token_id, outcome, side, size,
		limit_price, time_in_force, purpose, status, filled_size, avg_price, latency_ms, created_at
	FROM orders
`

// SaveOrder inserts or updates an order record.
func (p *PostgresStorage) SaveOrder(ctx context.Context, rec *types.OrderRecord) error {
	req, res := rec.Request, rec.Result
	_, err := p.db.ExecContext(ctx, upsertOrder,
		req.ClientOrderID, res.OrderID, rec.PositionID, req.MarketID, req.TokenID, string(req.Outcome),
		string(req.Side), req.Size, req.LimitPrice, string(req.TimeInForce), rec.Purpose,
		string(res.Status), res.FilledSize, res.AvgPrice, res.Latency.Milliseconds(), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert order: %w", err)
	}
	return nil
}

func scanOrder(row scanner) (*types.OrderRecord, error) {
	var rec types.OrderRecord
	var outcome, side, tif, status string
	var latencyMs int64
	err := row.Scan(&rec.Request.ClientOrderID, &rec.Result.OrderID, &rec.PositionID, &rec.Request.MarketID,
		&rec.Request.TokenID, &outcome, &side, &rec.Request.Size, &rec.Request.LimitPrice, &tif,
		&rec.Purpose, &status, &rec.Result.FilledSize, &rec.Result.AvgPrice, &latencyMs, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Request.Outcome = types.Outcome(outcome)
	rec.Request.Side = types.Side(side)
	rec.Request.TimeInForce = types.TimeInForce(tif)
	rec.Result.Status = types.OrderStatus(status)
	rec.Result.ClientOrderID = rec.Request.ClientOrderID
	rec.Result.Latency = time.Duration(latencyMs) * time.Millisecond
	return &rec, nil
}

func (p *PostgresStorage) queryOrders(ctx context.Context, query string, args ...any) ([]*types.OrderRecord, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []*types.OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, rec)
	}

	return out, rows.Err()
}

// ListPendingOrders returns orders without a known result.
func (p *PostgresStorage) ListPendingOrders(ctx context.Context) ([]*types.OrderRecord, error) {
	return p.queryOrders(ctx, selectOrder+` WHERE status = $1 ORDER BY created_at`, string(types.OrderPending))
}

// ListRecentOrders returns the newest orders first.
func (p *PostgresStorage) ListRecentOrders(ctx context.Context, limit int) ([]*types.OrderRecord, error) {
	return p.queryOrders(ctx, selectOrder+` ORDER BY created_at DESC LIMIT $1`, limit)
}

const selectSettlement = `
	SELECT position_id, market_id, winner, yes_shares, no_shares, entry_cost, proceeds, claimed,
		gave_up, attempts, next_retry_at, last_error, queued_at, claimed_at
	FROM settlement_queue
`

// EnqueueSettlement adds an entry; existing entries are left untouched.
func (p *PostgresStorage) EnqueueSettlement(ctx context.Context, e *types.SettlementEntry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settlement_queue (
			position_id, market_id, winner, yes_shares, no_shares, entry_cost,
			attempts, next_retry_at, queued_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (position_id) DO NOTHING`,
		e.PositionID, e.MarketID, string(e.Winner), e.YesShares, e.NoShares, e.EntryCost,
		e.Attempts, e.NextRetryAt, e.QueuedAt)
	if err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func scanSettlement(row scanner) (*types.SettlementEntry, error) {
	var e types.SettlementEntry
	var winner string
	var proceeds decimal.NullDecimal
	var claimedAt sql.NullTime
	err := row.Scan(&e.PositionID, &e.MarketID, &winner, &e.YesShares, &e.NoShares, &e.EntryCost,
		&proceeds, &e.Claimed, &e.GaveUp, &e.Attempts, &e.NextRetryAt, &e.LastError, &e.QueuedAt, &claimedAt)
	if err != nil {
		return nil, err
	}
	e.Winner = types.Outcome(winner)
	if proceeds.Valid {
		v := proceeds.Decimal
		e.Proceeds = &v
	}
	if claimedAt.Valid {
		e.ClaimedAt = claimedAt.Time
	}
	return &e, nil
}

// GetSettlement returns the queue entry for a position.
func (p *PostgresStorage) GetSettlement(ctx context.Context, positionID string) (*types.SettlementEntry, error) {
	e, err := scanSettlement(p.db.QueryRowContext(ctx, selectSettlement+` WHERE position_id = $1`, positionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement %s: %w", positionID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select settlement: %w", err)
	}
	return e, nil
}

// ListDueSettlements returns unclaimed entries due at now. A limit of zero
// or less returns every due entry.
func (p *PostgresStorage) ListDueSettlements(ctx context.Context, now time.Time, limit int) ([]*types.SettlementEntry, error) {
	query := selectSettlement + ` WHERE NOT claimed AND next_retry_at <= $1 ORDER BY next_retry_at`
	args := []any{now}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query settlements: %w", err)
	}
	defer rows.Close()

	var out []*types.SettlementEntry
	for rows.Next() {
		e, err := scanSettlement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

// UpdateSettlement persists retry bookkeeping for an unclaimed entry.
func (p *PostgresStorage) UpdateSettlement(ctx context.Context, e *types.SettlementEntry) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE settlement_queue SET attempts = $2, next_retry_at = $3, last_error = $4
		WHERE position_id = $1 AND NOT claimed`,
		e.PositionID, e.Attempts, e.NextRetryAt, e.LastError)
	if err != nil {
		return fmt.Errorf("update settlement: %w", err)
	}
	return nil
}

// CompleteSettlement marks the claim, appends the ledger entry and updates the position atomically.
func (p *PostgresStorage) CompleteSettlement(
	ctx context.Context,
	e *types.SettlementEntry,
	entry *types.LedgerEntry,
	status types.PositionStatus,
) error {
	return p.withTx(ctx, func(tx *sql.Tx) error {
		var proceeds decimal.NullDecimal
		if e.Proceeds != nil {
			proceeds = decimal.NewNullDecimal(*e.Proceeds)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE settlement_queue
			SET claimed = TRUE, gave_up = $2, proceeds = $3, attempts = $4, last_error = $5, claimed_at = $6
			WHERE position_id = $1 AND NOT claimed`,
			e.PositionID, e.GaveUp, proceeds, e.Attempts, e.LastError, e.ClaimedAt)
		if err != nil {
			return fmt.Errorf("mark claimed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("position %s: %w", e.PositionID, types.ErrDuplicateSettlementClaim)
		}

		if err := appendLedger(ctx, tx, entry); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE positions SET status = $2, updated_at = $3 WHERE id = $1`,
			e.PositionID, string(status), entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("update position status: %w", err)
		}

		return nil
	})
}

func appendLedger(ctx context.Context, ex execer, e *types.LedgerEntry) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO realized_pnl_ledger (id, position_id, pnl_amount, pnl_type, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.PositionID, e.Amount, string(e.Type), e.Reason, e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("position %s: %w", e.PositionID, types.ErrDuplicateSettlementClaim)
	}
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// AppendLedger writes an immutable ledger entry.
func (p *PostgresStorage) AppendLedger(ctx context.Context, e *types.LedgerEntry) error {
	return appendLedger(ctx, p.db, e)
}

// SumLedger sums entries created in [from, to).
func (p *PostgresStorage) SumLedger(ctx context.Context, from, to time.Time) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := p.db.QueryRowContext(ctx,
		`SELECT SUM(pnl_amount) FROM realized_pnl_ledger WHERE created_at >= $1 AND created_at < $2`,
		from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum ledger: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}

// ListLedger returns entries created in [from, to), oldest first.
func (p *PostgresStorage) ListLedger(ctx context.Context, from, to time.Time) ([]*types.LedgerEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, position_id, pnl_amount, pnl_type, reason, created_at
		FROM realized_pnl_ledger WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []*types.LedgerEntry
	for rows.Next() {
		var e types.LedgerEntry
		var pnlType string
		if err := rows.Scan(&e.ID, &e.PositionID, &e.Amount, &pnlType, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.Type = types.PnLType(pnlType)
		out = append(out, &e)
	}

	return out, rows.Err()
}

// GetDailyStats returns zeroed stats for days without rows.
func (p *PostgresStorage) GetDailyStats(ctx context.Context, day string) (*types.DailyStats, error) {
	st := &types.DailyStats{Day: day}
	err := p.db.QueryRowContext(ctx,
		`SELECT exposure, trade_count, failures FROM daily_stats WHERE day = $1`, day).
		Scan(&st.Exposure, &st.TradeCount, &st.Failures)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select daily stats: %w", err)
	}
	return st, nil
}

// RecordDailyTrade adds exposure and a trade to the day.
func (p *PostgresStorage) RecordDailyTrade(ctx context.Context, day string, exposure decimal.Decimal, failed bool) error {
	failures := 0
	if failed {
		failures = 1
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO daily_stats (day, exposure, trade_count, failures) VALUES ($1, $2, 1, $3)
		ON CONFLICT (day) DO UPDATE SET
			exposure = daily_stats.exposure + EXCLUDED.exposure,
			trade_count = daily_stats.trade_count + 1,
			failures = daily_stats.failures + EXCLUDED.failures`,
		day, exposure, failures)
	if err != nil {
		return fmt.Errorf("upsert daily stats: %w", err)
	}
	return nil
}

// AppendRiskEvent records a risk event.
func (p *PostgresStorage) AppendRiskEvent(ctx context.Context, e *types.RiskEvent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO risk_events (id, event_type, from_level, to_level, reason, daily_pnl, exposure, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, string(e.Type), e.From.String(), e.To.String(), e.Reason, e.DailyPnL, e.Exposure, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert risk event: %w", err)
	}
	return nil
}

func (p *PostgresStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			p.logger.Warn("rollback-failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
