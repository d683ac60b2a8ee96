package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Migration is a forward-only schema change. Statements must be safe to
// re-run on an already migrated database.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrations is the ordered schema history.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "positions_and_orders",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS positions (
				id          TEXT PRIMARY KEY,
				market_id   TEXT NOT NULL,
				yes_shares  NUMERIC NOT NULL DEFAULT 0,
				no_shares   NUMERIC NOT NULL DEFAULT 0,
				yes_cost    NUMERIC NOT NULL DEFAULT 0,
				no_cost     NUMERIC NOT NULL DEFAULT 0,
				status      TEXT NOT NULL,
				reason      TEXT NOT NULL DEFAULT '',
				opened_at   TIMESTAMPTZ NOT NULL,
				updated_at  TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS positions_status_idx ON positions (status)`,
			`CREATE INDEX IF NOT EXISTS positions_market_idx ON positions (market_id)`,
			`CREATE TABLE IF NOT EXISTS orders (
				client_order_id TEXT PRIMARY KEY,
				order_id        TEXT NOT NULL DEFAULT '',
				position_id     TEXT NOT NULL DEFAULT '',
				market_id       TEXT NOT NULL,
				token_id        TEXT NOT NULL,
				outcome         TEXT NOT NULL,
				side            TEXT NOT NULL,
				size            NUMERIC NOT NULL,
				limit_price     NUMERIC NOT NULL,
				time_in_force   TEXT NOT NULL,
				purpose         TEXT NOT NULL,
				status          TEXT NOT NULL,
				filled_size     NUMERIC NOT NULL DEFAULT 0,
				avg_price       NUMERIC NOT NULL DEFAULT 0,
				latency_ms      BIGINT NOT NULL DEFAULT 0,
				created_at      TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
		},
	},
	{
		Version: 2,
		Name:    "settlement_queue_and_ledger",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS settlement_queue (
				position_id   TEXT PRIMARY KEY,
				market_id     TEXT NOT NULL,
				winner        TEXT NOT NULL,
				yes_shares    NUMERIC NOT NULL,
				no_shares     NUMERIC NOT NULL,
				entry_cost    NUMERIC NOT NULL,
				proceeds      NUMERIC,
				claimed       BOOLEAN NOT NULL DEFAULT FALSE,
				gave_up       BOOLEAN NOT NULL DEFAULT FALSE,
				attempts      INTEGER NOT NULL DEFAULT 0,
				next_retry_at TIMESTAMPTZ NOT NULL,
				last_error    TEXT NOT NULL DEFAULT '',
				queued_at     TIMESTAMPTZ NOT NULL,
				claimed_at    TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS settlement_queue_due_idx ON settlement_queue (next_retry_at) WHERE NOT claimed`,
			`CREATE TABLE IF NOT EXISTS realized_pnl_ledger (
				id          TEXT PRIMARY KEY,
				position_id TEXT NOT NULL,
				pnl_amount  NUMERIC NOT NULL,
				pnl_type    TEXT NOT NULL,
				reason      TEXT NOT NULL DEFAULT '',
				created_at  TIMESTAMPTZ NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS realized_pnl_ledger_one_claim_idx
				ON realized_pnl_ledger (position_id) WHERE pnl_type = 'settlement_claim'`,
			`CREATE INDEX IF NOT EXISTS realized_pnl_ledger_created_idx ON realized_pnl_ledger (created_at)`,
		},
	},
	{
		Version: 3,
		Name:    "daily_stats_and_risk_events",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS daily_stats (
				day         TEXT PRIMARY KEY,
				exposure    NUMERIC NOT NULL DEFAULT 0,
				trade_count INTEGER NOT NULL DEFAULT 0,
				failures    INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE TABLE IF NOT EXISTS risk_events (
				id         TEXT PRIMARY KEY,
				event_type TEXT NOT NULL,
				from_level TEXT NOT NULL,
				to_level   TEXT NOT NULL,
				reason     TEXT NOT NULL DEFAULT '',
				daily_pnl  NUMERIC NOT NULL DEFAULT 0,
				exposure   NUMERIC NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL
			)`,
		},
	},
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate applies pending migrations in version order, each in its own
// transaction. It returns the number of migrations applied.
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) (int, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range Migrations {
		if applied[m.Version] {
			continue
		}

		if err := applyMigration(ctx, db, m); err != nil {
			return count, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		count++

		logger.Info("migration-applied",
			zap.Int("version", m.Version),
			zap.String("name", m.Name))
	}

	return count, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}

	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2) ON CONFLICT (version) DO NOTHING`,
		m.Version, m.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit()
}
