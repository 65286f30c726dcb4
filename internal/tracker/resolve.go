package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/internal/external/polygon"
	"github.com/wonny/momentum/internal/prices"
	"github.com/wonny/momentum/pkg/logger"
)

// maxFillScan is the calendar-day window a fill search examines before
// deferring to the next run. Weekend days inside the window are skipped,
// they do not extend it.
const maxFillScan = 5

// DayScanner makes one specific day's stock bars available in the cache.
type DayScanner interface {
	EnsureDay(ctx context.Context, day time.Time) (bool, error)
}

// OptionQuoter fetches a single option contract's daily bar.
type OptionQuoter interface {
	DailyBar(ctx context.Context, ticker string, day time.Time) (*polygon.Bar, error)
}

// Backfiller resolves the ledger's pending fills. Signals fire after the
// close, so every fill lands on a later trading day than the event that
// caused it; fills whose day has no data yet simply stay pending.
type Backfiller struct {
	positions contracts.PositionRepository
	legs      contracts.LegRepository
	bars      contracts.BarRepository
	scanner   DayScanner
	quotes    OptionQuoter
	benchmark string
	logger    *logger.Logger

	now func() time.Time
}

// NewBackfiller creates a fill backfiller.
func NewBackfiller(positions contracts.PositionRepository, legs contracts.LegRepository, bars contracts.BarRepository, scanner DayScanner, quotes OptionQuoter, benchmark string, log *logger.Logger) *Backfiller {
	return &Backfiller{
		positions: positions,
		legs:      legs,
		bars:      bars,
		scanner:   scanner,
		quotes:    quotes,
		benchmark: benchmark,
		logger:    log,
		now:       time.Now,
	}
}

// ResolvePrices runs all four pending-fill passes. Individual fills that
// cannot resolve yet are skipped; only repository failures abort.
func (b *Backfiller) ResolvePrices(ctx context.Context) error {
	if err := b.resolveBuys(ctx); err != nil {
		return err
	}
	if err := b.resolveSells(ctx); err != nil {
		return err
	}
	if err := b.resolveEntries(ctx); err != nil {
		return err
	}
	return b.resolveExits(ctx)
}

// resolveBuys fills stock entries: the high of the first trading day after
// the signal date. A fill can never land on or after the drop date, so a
// position dropped before its data arrived stays buyless forever.
func (b *Backfiller) resolveBuys(ctx context.Context) error {
	pending, err := b.positions.NeedsBuyResolution(ctx)
	if err != nil {
		return fmt.Errorf("load pending buys: %w", err)
	}

	// Today itself is excluded everywhere fills scan: its bar is not final
	// until the close, so a same-day fill waits for the next run.
	today := prices.Day(b.now())
	for _, p := range pending {
		stop := func(t time.Time) bool {
			if !t.Before(today) {
				return true
			}
			return p.DropDate != nil && !t.Before(*p.DropDate)
		}

		fill, err := b.findStockFill(ctx, p.Ticker, p.SignalDate.AddDate(0, 0, 1), stop)
		if err != nil {
			return err
		}
		if fill == nil {
			continue
		}

		if err := b.positions.SetBuyFill(ctx, p.TradeID, fill.date, fill.bar.High, fill.bench.High); err != nil {
			return fmt.Errorf("save buy fill %s: %w", p.TradeID, err)
		}

		b.logger.WithFields(map[string]interface{}{
			"trade": p.TradeID,
			"date":  fill.date.Format("2006-01-02"),
			"price": fill.bar.High,
		}).Info("Resolved buy fill")
	}

	return nil
}

// resolveSells fills stock exits: the low of the first trading day after the
// drop date, never on or before the buy date.
func (b *Backfiller) resolveSells(ctx context.Context) error {
	pending, err := b.positions.NeedsSellResolution(ctx)
	if err != nil {
		return fmt.Errorf("load pending sells: %w", err)
	}

	today := prices.Day(b.now())
	for _, p := range pending {
		if p.DropDate == nil {
			continue
		}

		start := p.DropDate.AddDate(0, 0, 1)
		if p.BuyDate != nil && !start.After(*p.BuyDate) {
			start = p.BuyDate.AddDate(0, 0, 1)
		}

		stop := func(t time.Time) bool { return !t.Before(today) }

		fill, err := b.findStockFill(ctx, p.Ticker, start, stop)
		if err != nil {
			return err
		}
		if fill == nil {
			continue
		}

		if err := b.positions.SetSellFill(ctx, p.TradeID, fill.date, fill.bar.Low, fill.bench.Low); err != nil {
			return fmt.Errorf("save sell fill %s: %w", p.TradeID, err)
		}

		b.logger.WithFields(map[string]interface{}{
			"trade": p.TradeID,
			"date":  fill.date.Format("2006-01-02"),
			"price": fill.bar.Low,
		}).Info("Resolved sell fill")
	}

	return nil
}

// resolveEntries fills option entries at the close of the leg's first quoted
// day, starting from the position's stock buy date. Legs whose stock fill is
// still pending are not ready yet.
func (b *Backfiller) resolveEntries(ctx context.Context) error {
	pending, err := b.legs.NeedsEntryResolution(ctx)
	if err != nil {
		return fmt.Errorf("load pending leg entries: %w", err)
	}

	for _, lr := range pending {
		if lr.BuyDate == nil {
			continue
		}

		date, price, ok := b.findOptionFill(ctx, lr.Leg.OptionSymbol, *lr.BuyDate)
		if !ok {
			continue
		}

		if err := b.legs.SetEntryFill(ctx, lr.Leg.TradeID, lr.Leg.Strategy, date, price); err != nil {
			return fmt.Errorf("save leg entry %s/%s: %w", lr.Leg.TradeID, lr.Leg.Strategy, err)
		}

		b.logger.WithFields(map[string]interface{}{
			"trade":    lr.Leg.TradeID,
			"strategy": string(lr.Leg.Strategy),
			"date":     date.Format("2006-01-02"),
			"price":    price,
		}).Info("Resolved option entry")
	}

	return nil
}

// resolveExits fills option exits, starting from the position's stock sell
// date.
func (b *Backfiller) resolveExits(ctx context.Context) error {
	pending, err := b.legs.NeedsExitResolution(ctx)
	if err != nil {
		return fmt.Errorf("load pending leg exits: %w", err)
	}

	for _, lr := range pending {
		if lr.SellDate == nil {
			continue
		}

		date, price, ok := b.findOptionFill(ctx, lr.Leg.OptionSymbol, *lr.SellDate)
		if !ok {
			continue
		}

		if err := b.legs.SetExitFill(ctx, lr.Leg.TradeID, lr.Leg.Strategy, date, price); err != nil {
			return fmt.Errorf("save leg exit %s/%s: %w", lr.Leg.TradeID, lr.Leg.Strategy, err)
		}

		b.logger.WithFields(map[string]interface{}{
			"trade":    lr.Leg.TradeID,
			"strategy": string(lr.Leg.Strategy),
			"date":     date.Format("2006-01-02"),
			"price":    price,
		}).Info("Resolved option exit")
	}

	return nil
}

type stockFill struct {
	date  time.Time
	bar   *contracts.DailyBar
	bench *contracts.DailyBar
}

// findStockFill walks the calendar-day window from start, ensuring each
// weekday's bars are cached, until it finds a day with both the ticker and
// the benchmark quoted. stop bounds the walk; nil means no fill yet.
func (b *Backfiller) findStockFill(ctx context.Context, ticker string, start time.Time, stop func(time.Time) bool) (*stockFill, error) {
	first := prices.Day(start)

	for i := 0; i < maxFillScan; i++ {
		curr := first.AddDate(0, 0, i)
		if prices.IsWeekend(curr) {
			continue
		}
		if stop(curr) {
			return nil, nil
		}

		ok, err := b.scanner.EnsureDay(ctx, curr)
		if err != nil {
			return nil, fmt.Errorf("ensure %s for %s fill: %w", curr.Format("2006-01-02"), ticker, err)
		}
		if !ok {
			continue
		}

		bar, err := b.bars.Get(ctx, ticker, curr)
		if err != nil {
			return nil, err
		}
		if bar == nil {
			continue
		}

		bench, err := b.bars.Get(ctx, b.benchmark, curr)
		if err != nil {
			return nil, err
		}
		if bench != nil {
			return &stockFill{date: curr, bar: bar, bench: bench}, nil
		}
	}

	return nil, nil
}

// findOptionFill walks the calendar-day window from start until the
// contract has a quoted bar. Thinly traded contracts may not print every
// day; the fill lands on the first day that actually traded. Upstream
// failures defer the leg to the next run.
func (b *Backfiller) findOptionFill(ctx context.Context, symbol string, start time.Time) (time.Time, float64, bool) {
	today := prices.Day(b.now())
	first := prices.Day(start)

	for i := 0; i < maxFillScan; i++ {
		curr := first.AddDate(0, 0, i)
		if prices.IsWeekend(curr) {
			continue
		}
		if !curr.Before(today) {
			return time.Time{}, 0, false
		}

		bar, err := b.quotes.DailyBar(ctx, symbol, curr)
		if err != nil {
			b.logger.WithError(err).WithFields(map[string]interface{}{
				"symbol": symbol,
				"date":   curr.Format("2006-01-02"),
			}).Warn("Option quote fetch failed")
			return time.Time{}, 0, false
		}
		if bar != nil {
			return curr, bar.Close, true
		}
	}

	return time.Time{}, 0, false
}
