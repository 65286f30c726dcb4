package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/momentum/internal/contracts"
)

// PositionRepository implements contracts.PositionRepository on PostgreSQL.
//
// A partial unique index on (cohort, ticker) WHERE status = 'OPEN' backs the
// one-open-position-per-ticker rule at the storage level.
type PositionRepository struct {
	pool *pgxpool.Pool
}

// NewPositionRepository creates a new position repository.
func NewPositionRepository(pool *pgxpool.Pool) *PositionRepository {
	return &PositionRepository{pool: pool}
}

const positionColumns = `
	trade_id, cohort, ticker, signal_date,
	buy_date, buy_price, spy_buy_price,
	drop_date, sell_date, sell_price, spy_sell_price,
	status, user_action
`

// Create inserts a new position. Inserting an existing trade_id is a no-op,
// so replaying a signal date never duplicates or resets a trade.
func (r *PositionRepository) Create(ctx context.Context, p *contracts.Position) error {
	query := `
		INSERT INTO positions (
			trade_id, cohort, ticker, signal_date, status, user_action
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trade_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		p.TradeID, p.Cohort, p.Ticker, p.SignalDate, p.Status, p.UserAction,
	)
	return err
}

// OpenByCohort returns the cohort's OPEN positions.
func (r *PositionRepository) OpenByCohort(ctx context.Context, cohort string) ([]contracts.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE cohort = $1 AND status = 'OPEN' ORDER BY signal_date, ticker`,
		cohort,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// Get retrieves one position, or nil when the trade is unknown.
func (r *PositionRepository) Get(ctx context.Context, tradeID string) (*contracts.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE trade_id = $1`, tradeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ps, err := scanPositions(rows)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, nil
	}
	return &ps[0], nil
}

// All returns every position, newest signal first.
func (r *PositionRepository) All(ctx context.Context) ([]contracts.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions ORDER BY signal_date DESC, ticker`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// Close marks a position CLOSED with its drop date. The sell fill stays
// unresolved until a later pricing pass.
func (r *PositionRepository) Close(ctx context.Context, tradeID string, dropDate time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE positions SET status = 'CLOSED', drop_date = $2 WHERE trade_id = $1 AND status = 'OPEN'`,
		tradeID, dropDate,
	)
	return err
}

// NeedsBuyResolution returns positions still missing their entry fill.
func (r *PositionRepository) NeedsBuyResolution(ctx context.Context) ([]contracts.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE buy_price IS NULL ORDER BY signal_date, ticker`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// NeedsSellResolution returns dropped positions still missing their exit fill.
func (r *PositionRepository) NeedsSellResolution(ctx context.Context) ([]contracts.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE drop_date IS NOT NULL AND sell_price IS NULL ORDER BY drop_date, ticker`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPositions(rows)
}

// SetBuyFill records the resolved entry: the fill date, the stock price and
// the benchmark price on the same day.
func (r *PositionRepository) SetBuyFill(ctx context.Context, tradeID string, date time.Time, price, benchPrice float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE positions SET buy_date = $2, buy_price = $3, spy_buy_price = $4 WHERE trade_id = $1`,
		tradeID, date, price, benchPrice,
	)
	return err
}

// SetSellFill records the resolved exit.
func (r *PositionRepository) SetSellFill(ctx context.Context, tradeID string, date time.Time, price, benchPrice float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE positions SET sell_date = $2, sell_price = $3, spy_sell_price = $4 WHERE trade_id = $1`,
		tradeID, date, price, benchPrice,
	)
	return err
}

func scanPositions(rows pgx.Rows) ([]contracts.Position, error) {
	var ps []contracts.Position
	for rows.Next() {
		var p contracts.Position
		if err := rows.Scan(
			&p.TradeID, &p.Cohort, &p.Ticker, &p.SignalDate,
			&p.BuyDate, &p.BuyPrice, &p.SpyBuyPrice,
			&p.DropDate, &p.SellDate, &p.SellPrice, &p.SpySellPrice,
			&p.Status, &p.UserAction,
		); err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return ps, nil
}

// LegRepository implements contracts.LegRepository on PostgreSQL.
type LegRepository struct {
	pool *pgxpool.Pool
}

// NewLegRepository creates a new option-leg repository.
func NewLegRepository(pool *pgxpool.Pool) *LegRepository {
	return &LegRepository{pool: pool}
}

const legColumns = `
	trade_id, strategy, option_symbol, expiration, strike, contract_type,
	entry_date, entry_price, exit_date, exit_price, status
`

// Create inserts a leg. The primary key is (trade_id, strategy), so a rerun
// that picks a different contract for an existing leg changes nothing.
func (r *LegRepository) Create(ctx context.Context, leg *contracts.OptionLeg) error {
	query := `
		INSERT INTO option_legs (
			trade_id, strategy, option_symbol, expiration, strike, contract_type, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (trade_id, strategy) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		leg.TradeID, leg.Strategy, leg.OptionSymbol, leg.Expiration, leg.Strike, leg.ContractType, leg.Status,
	)
	return err
}

// ByTradeID returns the legs attached to one trade.
func (r *LegRepository) ByTradeID(ctx context.Context, tradeID string) ([]contracts.OptionLeg, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+legColumns+` FROM option_legs WHERE trade_id = $1 ORDER BY strategy`, tradeID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLegs(rows)
}

// All returns every leg in the ledger.
func (r *LegRepository) All(ctx context.Context) ([]contracts.OptionLeg, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+legColumns+` FROM option_legs ORDER BY trade_id, strategy`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLegs(rows)
}

// CloseForTrade closes all of a trade's OPEN legs alongside the stock close.
func (r *LegRepository) CloseForTrade(ctx context.Context, tradeID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE option_legs SET status = 'CLOSED' WHERE trade_id = $1 AND status = 'OPEN'`,
		tradeID,
	)
	return err
}

// NeedsEntryResolution returns legs missing their entry fill, each paired
// with the position's resolved stock dates.
func (r *LegRepository) NeedsEntryResolution(ctx context.Context) ([]contracts.LegResolution, error) {
	query := `
		SELECT ` + legColumns + `, p.buy_date, p.sell_date
		FROM option_legs l
		JOIN positions p USING (trade_id)
		WHERE l.entry_price IS NULL
		ORDER BY l.trade_id, l.strategy
	`
	return r.queryResolutions(ctx, query)
}

// NeedsExitResolution returns closed legs missing their exit fill.
func (r *LegRepository) NeedsExitResolution(ctx context.Context) ([]contracts.LegResolution, error) {
	query := `
		SELECT ` + legColumns + `, p.buy_date, p.sell_date
		FROM option_legs l
		JOIN positions p USING (trade_id)
		WHERE l.status = 'CLOSED' AND l.exit_price IS NULL
		ORDER BY l.trade_id, l.strategy
	`
	return r.queryResolutions(ctx, query)
}

func (r *LegRepository) queryResolutions(ctx context.Context, query string) ([]contracts.LegResolution, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.LegResolution
	for rows.Next() {
		var lr contracts.LegResolution
		if err := rows.Scan(
			&lr.Leg.TradeID, &lr.Leg.Strategy, &lr.Leg.OptionSymbol, &lr.Leg.Expiration,
			&lr.Leg.Strike, &lr.Leg.ContractType,
			&lr.Leg.EntryDate, &lr.Leg.EntryPrice, &lr.Leg.ExitDate, &lr.Leg.ExitPrice,
			&lr.Leg.Status,
			&lr.BuyDate, &lr.SellDate,
		); err != nil {
			return nil, err
		}
		out = append(out, lr)
	}
	return out, rows.Err()
}

// SetEntryFill records a leg's resolved entry.
func (r *LegRepository) SetEntryFill(ctx context.Context, tradeID string, strategy contracts.Strategy, date time.Time, price float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE option_legs SET entry_date = $3, entry_price = $4 WHERE trade_id = $1 AND strategy = $2`,
		tradeID, strategy, date, price,
	)
	return err
}

// SetExitFill records a leg's resolved exit.
func (r *LegRepository) SetExitFill(ctx context.Context, tradeID string, strategy contracts.Strategy, date time.Time, price float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE option_legs SET exit_date = $3, exit_price = $4 WHERE trade_id = $1 AND strategy = $2`,
		tradeID, strategy, date, price,
	)
	return err
}

func scanLegs(rows pgx.Rows) ([]contracts.OptionLeg, error) {
	var legs []contracts.OptionLeg
	for rows.Next() {
		var l contracts.OptionLeg
		if err := rows.Scan(
			&l.TradeID, &l.Strategy, &l.OptionSymbol, &l.Expiration, &l.Strike, &l.ContractType,
			&l.EntryDate, &l.EntryPrice, &l.ExitDate, &l.ExitPrice, &l.Status,
		); err != nil {
			return nil, err
		}
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return legs, nil
}
