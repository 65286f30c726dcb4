package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

// DateResolver prepares the run's target dates and the price cache behind
// them.
type DateResolver interface {
	RefreshUniverse(ctx context.Context) error
	ResolveTargetDates(ctx context.Context, runDate time.Time) (map[string]time.Time, error)
	Snapshots(ctx context.Context, tickers []string, dateMap map[string]time.Time) ([]contracts.DailyBar, error)
}

// Ranker turns cached closes into a persisted top-pick snapshot.
type Ranker interface {
	CalculateRanks(bars []contracts.DailyBar, dateMap map[string]time.Time) []contracts.Ranked
	ExtractTopPicks(ctx context.Context, ranked []contracts.Ranked, cohort string, runDate time.Time) ([]contracts.RankSnapshot, error)
}

// SignalProcessor reconciles the trade ledger against a cohort snapshot.
type SignalProcessor interface {
	ProcessSignals(ctx context.Context, cohort string, snaps []contracts.RankSnapshot, dateMap map[string]time.Time, runDate time.Time) error
}

// FillResolver resolves the ledger's pending fills.
type FillResolver interface {
	ResolvePrices(ctx context.Context) error
}

// Runner executes one weekly momentum run end to end: pending fills first,
// then date resolution, then ranking and signal processing per cohort.
type Runner struct {
	resolver DateResolver
	ranker   Ranker
	signals  SignalProcessor
	fills    FillResolver
	universe contracts.UniverseRepository
	logger   *logger.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(resolver DateResolver, ranker Ranker, signals SignalProcessor, fills FillResolver, universe contracts.UniverseRepository, log *logger.Logger) *Runner {
	return &Runner{
		resolver: resolver,
		ranker:   ranker,
		signals:  signals,
		fills:    fills,
		universe: universe,
		logger:   log,
	}
}

// Run executes the pipeline for one run date. A failed date resolution
// aborts the whole run; a failed cohort is logged and the remaining cohorts
// still run. The run is idempotent and can be repeated after any failure.
func (r *Runner) Run(ctx context.Context, runDate time.Time) error {
	start := time.Now()
	r.logger.WithField("date", runDate.Format("2006-01-02")).Info("Momentum run started")

	// Old business first: fills that were waiting on market data.
	if err := r.fills.ResolvePrices(ctx); err != nil {
		return fmt.Errorf("resolve pending fills: %w", err)
	}

	if err := r.resolver.RefreshUniverse(ctx); err != nil {
		r.logger.WithError(err).Warn("Universe refresh failed, continuing with previous whitelist")
	}

	dateMap, err := r.resolver.ResolveTargetDates(ctx, runDate)
	if err != nil {
		return fmt.Errorf("resolve target dates: %w", err)
	}

	var failed int
	for _, cohort := range contracts.Cohorts {
		if err := r.runCohort(ctx, cohort, dateMap, runDate); err != nil {
			failed++
			r.logger.WithError(err).WithField("cohort", cohort).Error("Cohort run failed")
		}
	}

	r.logger.WithFields(map[string]interface{}{
		"date":     runDate.Format("2006-01-02"),
		"cohorts":  len(contracts.Cohorts),
		"failed":   failed,
		"duration": time.Since(start).String(),
	}).Info("Momentum run finished")

	if failed == len(contracts.Cohorts) {
		return fmt.Errorf("all %d cohorts failed", failed)
	}
	return nil
}

func (r *Runner) runCohort(ctx context.Context, cohort string, dateMap map[string]time.Time, runDate time.Time) error {
	members, err := r.universe.GetCohort(ctx, cohort)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	if len(members) == 0 {
		r.logger.WithField("cohort", cohort).Warn("Cohort is empty, skipping")
		return nil
	}

	tickers := make([]string, 0, len(members))
	for _, m := range members {
		tickers = append(tickers, m.Symbol)
	}

	bars, err := r.resolver.Snapshots(ctx, tickers, dateMap)
	if err != nil {
		return fmt.Errorf("load cached bars: %w", err)
	}

	ranked := r.ranker.CalculateRanks(bars, dateMap)
	if len(ranked) == 0 {
		r.logger.WithField("cohort", cohort).Warn("No rankable tickers, skipping")
		return nil
	}

	snaps, err := r.ranker.ExtractTopPicks(ctx, ranked, cohort, runDate)
	if err != nil {
		return fmt.Errorf("extract top picks: %w", err)
	}

	if err := r.signals.ProcessSignals(ctx, cohort, snaps, dateMap, runDate); err != nil {
		return fmt.Errorf("process signals: %w", err)
	}

	return nil
}
