package universe

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/momentum/internal/contracts"
)

// Repository implements contracts.UniverseRepository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new universe repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetCohort returns the cohort's members, heaviest weight first.
func (r *Repository) GetCohort(ctx context.Context, cohort string) ([]contracts.Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT symbol, name, weight FROM universe_members WHERE cohort = $1 ORDER BY weight DESC, symbol`,
		cohort,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []contracts.Member
	for rows.Next() {
		var m contracts.Member
		if err := rows.Scan(&m.Symbol, &m.Name, &m.Weight); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// AllTickers returns the distinct symbols across every cohort.
func (r *Repository) AllTickers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT symbol FROM universe_members ORDER BY symbol`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		tickers = append(tickers, s)
	}
	return tickers, rows.Err()
}

// ReplaceCohort swaps the cohort's membership in one transaction and appends
// the resulting adds and drops to the change log.
func (r *Repository) ReplaceCohort(ctx context.Context, cohort string, members []contracts.Member, asOf time.Time) (added, dropped []string, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`SELECT symbol FROM universe_members WHERE cohort = $1`, cohort,
	)
	if err != nil {
		return nil, nil, err
	}
	var current []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			rows.Close()
			return nil, nil, err
		}
		current = append(current, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	added, dropped = DiffMembership(current, members)

	if _, err := tx.Exec(ctx,
		`DELETE FROM universe_members WHERE cohort = $1`, cohort,
	); err != nil {
		return nil, nil, err
	}

	for _, m := range members {
		if _, err := tx.Exec(ctx,
			`INSERT INTO universe_members (cohort, symbol, name, weight) VALUES ($1, $2, $3, $4)`,
			cohort, m.Symbol, m.Name, m.Weight,
		); err != nil {
			return nil, nil, err
		}
	}

	for _, s := range added {
		if _, err := tx.Exec(ctx,
			`INSERT INTO universe_changes (change_date, cohort, action, symbol) VALUES ($1, $2, 'ADDED', $3)`,
			asOf, cohort, s,
		); err != nil {
			return nil, nil, err
		}
	}
	for _, s := range dropped {
		if _, err := tx.Exec(ctx,
			`INSERT INTO universe_changes (change_date, cohort, action, symbol) VALUES ($1, $2, 'DROPPED', $3)`,
			asOf, cohort, s,
		); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return added, dropped, nil
}

// ChangeLog returns the cohort's membership changes, newest first.
func (r *Repository) ChangeLog(ctx context.Context, cohort string) ([]contracts.UniverseChange, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT change_date, cohort, action, symbol FROM universe_changes WHERE cohort = $1 ORDER BY change_date DESC, symbol`,
		cohort,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []contracts.UniverseChange
	for rows.Next() {
		var c contracts.UniverseChange
		if err := rows.Scan(&c.Date, &c.Cohort, &c.Action, &c.Symbol); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// DiffMembership compares the current symbols against the incoming members
// and returns sorted add and drop lists.
func DiffMembership(current []string, next []contracts.Member) (added, dropped []string) {
	have := make(map[string]struct{}, len(current))
	for _, s := range current {
		have[s] = struct{}{}
	}

	want := make(map[string]struct{}, len(next))
	for _, m := range next {
		want[m.Symbol] = struct{}{}
		if _, ok := have[m.Symbol]; !ok {
			added = append(added, m.Symbol)
		}
	}

	for _, s := range current {
		if _, ok := want[s]; !ok {
			dropped = append(dropped, s)
		}
	}

	sort.Strings(added)
	sort.Strings(dropped)
	return added, dropped
}
