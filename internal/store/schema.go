package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/momentum/pkg/logger"
)

// statements are ordered: option_legs references positions.
var statements = []string{
	`CREATE TABLE IF NOT EXISTS daily_prices (
		ticker       TEXT             NOT NULL,
		trade_date   DATE             NOT NULL,
		open_price   DOUBLE PRECISION NOT NULL,
		high_price   DOUBLE PRECISION NOT NULL,
		low_price    DOUBLE PRECISION NOT NULL,
		close_price  DOUBLE PRECISION NOT NULL,
		volume       DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (ticker, trade_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices (trade_date)`,

	`CREATE TABLE IF NOT EXISTS rank_snapshots (
		cohort            TEXT             NOT NULL,
		ticker            TEXT             NOT NULL,
		snapshot_date     DATE             NOT NULL,
		current_return    DOUBLE PRECISION NOT NULL,
		last_week_return  DOUBLE PRECISION NOT NULL,
		last_month_return DOUBLE PRECISION NOT NULL,
		current_rank      INTEGER          NOT NULL,
		last_month_rank   INTEGER          NOT NULL,
		rank_change       INTEGER          NOT NULL,
		streak            INTEGER          NOT NULL DEFAULT 1,
		streak_start      DATE             NOT NULL,
		PRIMARY KEY (cohort, ticker, snapshot_date)
	)`,

	`CREATE TABLE IF NOT EXISTS positions (
		trade_id       TEXT PRIMARY KEY,
		cohort         TEXT NOT NULL,
		ticker         TEXT NOT NULL,
		signal_date    DATE NOT NULL,
		buy_date       DATE,
		buy_price      DOUBLE PRECISION,
		spy_buy_price  DOUBLE PRECISION,
		drop_date      DATE,
		sell_date      DATE,
		sell_price     DOUBLE PRECISION,
		spy_sell_price DOUBLE PRECISION,
		status         TEXT NOT NULL DEFAULT 'OPEN',
		user_action    TEXT NOT NULL DEFAULT 'WATCH'
	)`,
	// One live trade per ticker per cohort.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_positions_open
		ON positions (cohort, ticker) WHERE status = 'OPEN'`,

	`CREATE TABLE IF NOT EXISTS option_legs (
		trade_id      TEXT             NOT NULL REFERENCES positions (trade_id),
		strategy      TEXT             NOT NULL,
		option_symbol TEXT             NOT NULL,
		expiration    DATE             NOT NULL,
		strike        DOUBLE PRECISION NOT NULL,
		contract_type TEXT             NOT NULL,
		entry_date    DATE,
		entry_price   DOUBLE PRECISION,
		exit_date     DATE,
		exit_price    DOUBLE PRECISION,
		status        TEXT             NOT NULL DEFAULT 'OPEN',
		PRIMARY KEY (trade_id, strategy)
	)`,

	`CREATE TABLE IF NOT EXISTS universe_members (
		cohort TEXT             NOT NULL,
		symbol TEXT             NOT NULL,
		name   TEXT             NOT NULL DEFAULT '',
		weight DOUBLE PRECISION NOT NULL DEFAULT 0,
		PRIMARY KEY (cohort, symbol)
	)`,

	`CREATE TABLE IF NOT EXISTS universe_changes (
		id          BIGSERIAL PRIMARY KEY,
		change_date DATE NOT NULL,
		cohort      TEXT NOT NULL,
		action      TEXT NOT NULL,
		symbol      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_universe_changes_cohort ON universe_changes (cohort, change_date)`,
}

// Migrate creates the schema. Every statement is idempotent, so running it
// on an initialized database is harmless.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	log.Info("Database schema up to date")
	return nil
}
