package contracts

import (
	"context"
	"time"
)

// Repository interfaces are defined here; pgx implementations live in the
// owning domain packages.

// BarRepository manages cached daily bars.
type BarRepository interface {
	Upsert(ctx context.Context, bar *DailyBar) error
	UpsertBatch(ctx context.Context, bars []DailyBar) error
	Get(ctx context.Context, ticker string, date time.Time) (*DailyBar, error)
	// CountByDate returns the number of distinct tickers cached for a date.
	CountByDate(ctx context.Context, date time.Time) (int, error)
	Exists(ctx context.Context, ticker string, date time.Time) (bool, error)
	GetByTickersAndDates(ctx context.Context, tickers []string, dates []time.Time) ([]DailyBar, error)
}

// SnapshotRepository manages persisted per-cohort top-10 snapshots.
type SnapshotRepository interface {
	// LatestDateBefore returns the most recent snapshot date strictly
	// before the given date, or nil when the cohort has no history.
	LatestDateBefore(ctx context.Context, cohort string, date time.Time) (*time.Time, error)
	GetByCohortAndDate(ctx context.Context, cohort string, date time.Time) ([]RankSnapshot, error)
	// ReplaceForDate deletes the cohort's rows for the date and inserts the
	// given snapshots in one transaction, making reruns idempotent.
	ReplaceForDate(ctx context.Context, cohort string, date time.Time, snaps []RankSnapshot) error
}

// PositionRepository manages the stock leg of the trade ledger.
type PositionRepository interface {
	Create(ctx context.Context, p *Position) error
	OpenByCohort(ctx context.Context, cohort string) ([]Position, error)
	Get(ctx context.Context, tradeID string) (*Position, error)
	All(ctx context.Context) ([]Position, error)
	// Close marks the position CLOSED with the given drop date.
	Close(ctx context.Context, tradeID string, dropDate time.Time) error
	// NeedsBuyResolution returns positions with a signal date but no buy price.
	NeedsBuyResolution(ctx context.Context) ([]Position, error)
	// NeedsSellResolution returns positions with a drop date but no sell price.
	NeedsSellResolution(ctx context.Context) ([]Position, error)
	SetBuyFill(ctx context.Context, tradeID string, date time.Time, price, benchPrice float64) error
	SetSellFill(ctx context.Context, tradeID string, date time.Time, price, benchPrice float64) error
}

// LegResolution pairs a leg with its position's resolved stock dates.
type LegResolution struct {
	Leg      OptionLeg
	BuyDate  *time.Time
	SellDate *time.Time
}

// LegRepository manages the option legs of the trade ledger.
type LegRepository interface {
	// Create inserts a leg; a second insert for the same (trade, strategy)
	// is a no-op.
	Create(ctx context.Context, leg *OptionLeg) error
	ByTradeID(ctx context.Context, tradeID string) ([]OptionLeg, error)
	All(ctx context.Context) ([]OptionLeg, error)
	// CloseForTrade closes all of a trade's OPEN legs.
	CloseForTrade(ctx context.Context, tradeID string) error
	NeedsEntryResolution(ctx context.Context) ([]LegResolution, error)
	NeedsExitResolution(ctx context.Context) ([]LegResolution, error)
	SetEntryFill(ctx context.Context, tradeID string, strategy Strategy, date time.Time, price float64) error
	SetExitFill(ctx context.Context, tradeID string, strategy Strategy, date time.Time, price float64) error
}

// UniverseRepository exposes cohort membership and its change log.
type UniverseRepository interface {
	GetCohort(ctx context.Context, cohort string) ([]Member, error)
	// AllTickers returns the union of all cohort members.
	AllTickers(ctx context.Context) ([]string, error)
	// ReplaceCohort swaps the cohort's membership and appends add/drop
	// entries to the change log.
	ReplaceCohort(ctx context.Context, cohort string, members []Member, asOf time.Time) (added, dropped []string, err error)
	ChangeLog(ctx context.Context, cohort string) ([]UniverseChange, error)
}
