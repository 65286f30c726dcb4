package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

// SignalCount is how many of a cohort's ranked tickers generate positions.
const SignalCount = 5

// ContractPicker selects one option contract per strategy for a new leg.
type ContractPicker interface {
	FindBestContract(ctx context.Context, ticker string, stockPrice float64, strategy contracts.Strategy) (*contracts.SelectedContract, error)
}

// Tracker maintains the hypothetical trade ledger: it opens a position when a
// ticker enters a cohort's top signals, closes it when the ticker drops out,
// and attaches the three option legs to every open position.
//
// Every mutation is idempotent, so an interrupted run is simply rerun.
type Tracker struct {
	positions contracts.PositionRepository
	legs      contracts.LegRepository
	bars      contracts.BarRepository
	picker    ContractPicker
	logger    *logger.Logger
}

// NewTracker creates a tracker.
func NewTracker(positions contracts.PositionRepository, legs contracts.LegRepository, bars contracts.BarRepository, picker ContractPicker, log *logger.Logger) *Tracker {
	return &Tracker{
		positions: positions,
		legs:      legs,
		bars:      bars,
		picker:    picker,
		logger:    log,
	}
}

// ProcessSignals reconciles one cohort's ledger against the run's snapshot.
// The snapshot is expected best-first; its top entries are the signal set.
// dateMap supplies the resolved latest trading date, whose close prices seed
// option contract selection.
func (t *Tracker) ProcessSignals(ctx context.Context, cohort string, snaps []contracts.RankSnapshot, dateMap map[string]time.Time, runDate time.Time) error {
	signals := snaps
	if len(signals) > SignalCount {
		signals = signals[:SignalCount]
	}

	inSignal := make(map[string]struct{}, len(signals))
	for _, s := range signals {
		inSignal[s.Ticker] = struct{}{}
	}

	open, err := t.positions.OpenByCohort(ctx, cohort)
	if err != nil {
		return fmt.Errorf("load open positions for %s: %w", cohort, err)
	}

	openByTicker := make(map[string]contracts.Position, len(open))
	for _, p := range open {
		openByTicker[p.Ticker] = p
	}

	latestDate := dateMap[contracts.LabelLatestTrading]

	// Entries.
	for _, s := range signals {
		if _, ok := openByTicker[s.Ticker]; ok {
			continue
		}

		pos := contracts.Position{
			TradeID:    contracts.TradeID(s.Ticker, runDate),
			Cohort:     cohort,
			Ticker:     s.Ticker,
			SignalDate: runDate,
			Status:     contracts.StatusOpen,
			UserAction: "WATCH",
		}
		if err := t.positions.Create(ctx, &pos); err != nil {
			return fmt.Errorf("open position %s: %w", pos.TradeID, err)
		}

		t.logger.WithFields(map[string]interface{}{
			"trade":  pos.TradeID,
			"cohort": cohort,
		}).Info("Opened position")

		openByTicker[s.Ticker] = pos
	}

	// Leg backfill covers every open position, including ones about to
	// close below: a drop must not strand a legless trade.
	for _, pos := range openByTicker {
		t.backfillLegs(ctx, &pos, latestDate)
	}

	// Exits: anything open that fell out of the signal set.
	for ticker, pos := range openByTicker {
		if _, ok := inSignal[ticker]; ok {
			continue
		}

		if err := t.positions.Close(ctx, pos.TradeID, runDate); err != nil {
			return fmt.Errorf("close position %s: %w", pos.TradeID, err)
		}
		if err := t.legs.CloseForTrade(ctx, pos.TradeID); err != nil {
			return fmt.Errorf("close legs for %s: %w", pos.TradeID, err)
		}

		t.logger.WithFields(map[string]interface{}{
			"trade":  pos.TradeID,
			"cohort": cohort,
		}).Info("Closed position")
	}

	return nil
}

// backfillLegs attaches any missing option legs to an open position. A leg
// that cannot be selected this run is left for the next one; that is a
// warning, not an error.
func (t *Tracker) backfillLegs(ctx context.Context, pos *contracts.Position, latestDate time.Time) {
	existing, err := t.legs.ByTradeID(ctx, pos.TradeID)
	if err != nil {
		t.logger.WithError(err).WithField("trade", pos.TradeID).Warn("Leg lookup failed")
		return
	}
	if len(existing) == len(contracts.Strategies) {
		return
	}

	have := make(map[contracts.Strategy]struct{}, len(existing))
	for _, l := range existing {
		have[l.Strategy] = struct{}{}
	}

	price, ok := t.referencePrice(ctx, pos, latestDate)
	if !ok {
		t.logger.WithField("trade", pos.TradeID).Warn("No reference price for leg selection")
		return
	}

	for _, strat := range contracts.Strategies {
		if _, ok := have[strat]; ok {
			continue
		}

		picked, err := t.picker.FindBestContract(ctx, pos.Ticker, price, strat)
		if err != nil {
			t.logger.WithError(err).WithFields(map[string]interface{}{
				"trade":    pos.TradeID,
				"strategy": string(strat),
			}).Warn("Contract selection failed")
			continue
		}
		if picked == nil {
			continue
		}

		leg := contracts.OptionLeg{
			TradeID:      pos.TradeID,
			Strategy:     strat,
			OptionSymbol: picked.OptionSymbol,
			Expiration:   picked.Expiration,
			Strike:       picked.Strike,
			ContractType: picked.ContractType,
			Status:       contracts.StatusOpen,
		}
		if err := t.legs.Create(ctx, &leg); err != nil {
			t.logger.WithError(err).WithField("trade", pos.TradeID).Warn("Leg save failed")
			continue
		}

		t.logger.WithFields(map[string]interface{}{
			"trade":    pos.TradeID,
			"strategy": string(strat),
			"symbol":   picked.OptionSymbol,
		}).Info("Attached option leg")
	}
}

// referencePrice returns the stock price contract selection is anchored to:
// the latest cached close, falling back to the position's own entry fill.
func (t *Tracker) referencePrice(ctx context.Context, pos *contracts.Position, latestDate time.Time) (float64, bool) {
	bar, err := t.bars.Get(ctx, pos.Ticker, latestDate)
	if err == nil && bar != nil {
		return bar.Close, true
	}
	if pos.BuyPrice != nil {
		return *pos.BuyPrice, true
	}
	return 0, false
}
