package ranking

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/momentum/internal/contracts"
)

// Repository implements contracts.SnapshotRepository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new rank-snapshot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LatestDateBefore returns the cohort's most recent snapshot date strictly
// before the given date, or nil when there is no history.
func (r *Repository) LatestDateBefore(ctx context.Context, cohort string, date time.Time) (*time.Time, error) {
	var latest *time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT MAX(snapshot_date) FROM rank_snapshots WHERE cohort = $1 AND snapshot_date < $2`,
		cohort, date,
	).Scan(&latest)
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// GetByCohortAndDate retrieves one cohort's snapshot for one date, best
// rank first.
func (r *Repository) GetByCohortAndDate(ctx context.Context, cohort string, date time.Time) ([]contracts.RankSnapshot, error) {
	query := `
		SELECT cohort, ticker, snapshot_date, current_return, last_week_return, last_month_return,
		       current_rank, last_month_rank, rank_change, streak, streak_start
		FROM rank_snapshots
		WHERE cohort = $1 AND snapshot_date = $2
		ORDER BY current_return DESC
	`

	rows, err := r.pool.Query(ctx, query, cohort, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// LatestByCohort retrieves the cohort's most recent snapshot, for the
// read-only projection API.
func (r *Repository) LatestByCohort(ctx context.Context, cohort string) ([]contracts.RankSnapshot, error) {
	latest, err := r.LatestDateBefore(ctx, cohort, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return r.GetByCohortAndDate(ctx, cohort, *latest)
}

// ReplaceForDate deletes the cohort's rows for the date and inserts the new
// snapshots in one transaction. Rerunning a report for the same date is
// safe.
func (r *Repository) ReplaceForDate(ctx context.Context, cohort string, date time.Time, snaps []contracts.RankSnapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM rank_snapshots WHERE cohort = $1 AND snapshot_date = $2`,
		cohort, date,
	); err != nil {
		return err
	}

	query := `
		INSERT INTO rank_snapshots (
			cohort, ticker, snapshot_date, current_return, last_week_return, last_month_return,
			current_rank, last_month_rank, rank_change, streak, streak_start
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for _, s := range snaps {
		if _, err := tx.Exec(ctx, query,
			s.Cohort, s.Ticker, s.Date, s.CurrentReturn, s.LastWeekReturn, s.LastMonthReturn,
			s.CurrentRank, s.LastMonthRank, s.RankChange, s.Streak, s.StreakStart,
		); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func scanSnapshots(rows pgx.Rows) ([]contracts.RankSnapshot, error) {
	var snaps []contracts.RankSnapshot
	for rows.Next() {
		var s contracts.RankSnapshot
		if err := rows.Scan(
			&s.Cohort, &s.Ticker, &s.Date, &s.CurrentReturn, &s.LastWeekReturn, &s.LastMonthReturn,
			&s.CurrentRank, &s.LastMonthRank, &s.RankChange, &s.Streak, &s.StreakStart,
		); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return snaps, nil
}
