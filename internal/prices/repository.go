package prices

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/momentum/internal/contracts"
)

// Repository implements contracts.BarRepository on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new daily-bar repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert saves a single bar. Re-fetching the same (ticker, date) replaces
// the row in place.
func (r *Repository) Upsert(ctx context.Context, bar *contracts.DailyBar) error {
	query := `
		INSERT INTO daily_prices (ticker, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	_, err := r.pool.Exec(ctx, query,
		bar.Ticker, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
	)
	return err
}

// UpsertBatch saves one day's filtered bulk fetch in a single batch.
func (r *Repository) UpsertBatch(ctx context.Context, bars []contracts.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO daily_prices (ticker, trade_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (ticker, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`
	for _, bar := range bars {
		batch.Queue(query, bar.Ticker, bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}

	return r.pool.SendBatch(ctx, batch).Close()
}

// Get retrieves one bar, or nil when the key is absent.
func (r *Repository) Get(ctx context.Context, ticker string, date time.Time) (*contracts.DailyBar, error) {
	query := `
		SELECT ticker, trade_date, open_price, high_price, low_price, close_price, volume
		FROM daily_prices
		WHERE ticker = $1 AND trade_date = $2
	`

	var b contracts.DailyBar
	err := r.pool.QueryRow(ctx, query, ticker, date).Scan(
		&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CountByDate returns how many distinct tickers are cached for a date.
func (r *Repository) CountByDate(ctx context.Context, date time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM daily_prices WHERE trade_date = $1`, date,
	).Scan(&count)
	return count, err
}

// Exists reports whether a bar is cached for (ticker, date).
func (r *Repository) Exists(ctx context.Context, ticker string, date time.Time) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM daily_prices WHERE ticker = $1 AND trade_date = $2`, ticker, date,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByTickersAndDates retrieves cached bars for the cross product of the
// given tickers and dates. Missing combinations are simply absent.
func (r *Repository) GetByTickersAndDates(ctx context.Context, tickers []string, dates []time.Time) ([]contracts.DailyBar, error) {
	query := `
		SELECT ticker, trade_date, open_price, high_price, low_price, close_price, volume
		FROM daily_prices
		WHERE ticker = ANY($1) AND trade_date = ANY($2)
		ORDER BY ticker, trade_date
	`

	rows, err := r.pool.Query(ctx, query, tickers, dates)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []contracts.DailyBar
	for rows.Next() {
		var b contracts.DailyBar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
