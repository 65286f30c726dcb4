package prices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/internal/external/polygon"
	"github.com/wonny/momentum/pkg/config"
	"github.com/wonny/momentum/pkg/logger"
)

// DataGapError reports that a date resolution ran out of its backtrack
// budget without finding a trading day with data. It is fatal for the run
// that requested the date; previously persisted state is unaffected.
type DataGapError struct {
	Target time.Time
	Tried  int
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("no market data found near %s after trying %d earlier days",
		e.Target.Format("2006-01-02"), e.Tried)
}

// MarketFetcher is the slice of the upstream client the resolver needs.
type MarketFetcher interface {
	GroupedDaily(ctx context.Context, day time.Time) ([]polygon.Bar, error)
	DailyBar(ctx context.Context, ticker string, day time.Time) (*polygon.Bar, error)
}

// Resolver finds the nearest valid trading day with data, fetching and
// caching daily bars as needed. Every resolved date is guaranteed to have a
// benchmark bar; that postcondition is enforced here, not by callers.
type Resolver struct {
	cfg      config.ResolverConfig
	bars     contracts.BarRepository
	universe contracts.UniverseRepository
	fetcher  MarketFetcher
	logger   *logger.Logger

	// whitelist is an immutable snapshot of the known universe, captured at
	// construction. Bulk fetches are filtered against it. RefreshUniverse
	// swaps in a new snapshot explicitly; there is no lazy reload.
	mu        sync.RWMutex
	whitelist map[string]struct{}
}

// NewResolver creates a resolver and captures the universe whitelist.
// A failed universe read degrades to a benchmark-only whitelist so the
// resolver stays usable for benchmark backfills.
func NewResolver(cfg config.ResolverConfig, bars contracts.BarRepository, universe contracts.UniverseRepository, fetcher MarketFetcher, log *logger.Logger) *Resolver {
	r := &Resolver{
		cfg:      cfg,
		bars:     bars,
		universe: universe,
		fetcher:  fetcher,
		logger:   log,
	}

	if err := r.RefreshUniverse(context.Background()); err != nil {
		log.WithError(err).Warn("Universe load failed, whitelist reduced to benchmark")
		r.whitelist = map[string]struct{}{cfg.Benchmark: {}}
	}

	return r
}

// RefreshUniverse replaces the whitelist snapshot with the current universe
// membership plus the benchmark.
func (r *Resolver) RefreshUniverse(ctx context.Context) error {
	tickers, err := r.universe.AllTickers(ctx)
	if err != nil {
		return fmt.Errorf("load universe tickers: %w", err)
	}

	wl := make(map[string]struct{}, len(tickers)+1)
	for _, t := range tickers {
		wl[t] = struct{}{}
	}
	wl[r.cfg.Benchmark] = struct{}{}

	r.mu.Lock()
	r.whitelist = wl
	r.mu.Unlock()

	r.logger.WithField("tickers", len(wl)).Debug("Universe whitelist refreshed")
	return nil
}

// ResolveTargetDates resolves the five nominal momentum dates for a run.
// The base is the day before the run date; each offset is resolved
// independently, in declared order, and may land earlier than nominal due
// to backtracking.
func (r *Resolver) ResolveTargetDates(ctx context.Context, runDate time.Time) (map[string]time.Time, error) {
	base := Day(runDate).AddDate(0, 0, -1)

	nominal := map[string]time.Time{
		contracts.LabelLatestTrading: base,
		contracts.LabelMinus1Week:    base.AddDate(0, 0, -7),
		contracts.LabelMinus1Month:   AddMonths(base, -1),
		contracts.LabelMinus1Year:    AddMonths(base, -12),
		contracts.LabelMinus13Months: AddMonths(base, -13),
	}

	resolved := make(map[string]time.Time, len(nominal))
	for _, label := range contracts.TargetLabels {
		target := nominal[label]

		actual, err := r.EnsureDateData(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", label, err)
		}
		resolved[label] = actual

		if !actual.Equal(target) {
			r.logger.WithFields(map[string]interface{}{
				"label":     label,
				"requested": target.Format("2006-01-02"),
				"found":     actual.Format("2006-01-02"),
			}).Info("Target date shifted to earlier trading day")
		}
	}

	return resolved, nil
}

// EnsureDateData finds the nearest valid trading day at or before target and
// guarantees its bars are cached, backtracking up to the configured budget.
// Weekend days are skipped without consuming budget; a day already complete
// in the cache is accepted without a fetch. Exhausting the budget is a
// *DataGapError.
func (r *Resolver) EnsureDateData(ctx context.Context, target time.Time) (time.Time, error) {
	curr := Day(target)

	for i := 0; i <= r.cfg.MaxBacktrack; i++ {
		for IsWeekend(curr) {
			curr = curr.AddDate(0, 0, -1)
		}

		ok, err := r.ensureDay(ctx, curr)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return curr, nil
		}

		curr = curr.AddDate(0, 0, -1)
	}

	return time.Time{}, &DataGapError{Target: Day(target), Tried: r.cfg.MaxBacktrack}
}

// EnsureDay attempts to make one specific day's bars available without any
// backtracking. It reports false for weekends and for days the upstream has
// no data for. The tracker's forward scans use this.
func (r *Resolver) EnsureDay(ctx context.Context, day time.Time) (bool, error) {
	day = Day(day)
	if IsWeekend(day) {
		return false, nil
	}
	return r.ensureDay(ctx, day)
}

// ensureDay checks cache completeness for one weekday, bulk-fetching when
// needed, and enforces the benchmark postcondition on success.
func (r *Resolver) ensureDay(ctx context.Context, day time.Time) (bool, error) {
	count, err := r.bars.CountByDate(ctx, day)
	if err != nil {
		return false, fmt.Errorf("count bars for %s: %w", day.Format("2006-01-02"), err)
	}

	if count > r.cfg.MinFullDayRows {
		r.ensureBenchmark(ctx, day)
		return true, nil
	}

	fetched, err := r.fetcher.GroupedDaily(ctx, day)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Transient upstream failure: same outcome as an empty day.
		r.logger.WithError(err).WithField("date", day.Format("2006-01-02")).
			Warn("Bulk fetch failed, treating day as empty")
		return false, nil
	}

	if len(fetched) == 0 {
		return false, nil
	}

	kept := r.filterToWhitelist(fetched)
	if err := r.bars.UpsertBatch(ctx, kept); err != nil {
		return false, fmt.Errorf("save bars for %s: %w", day.Format("2006-01-02"), err)
	}

	r.logger.WithFields(map[string]interface{}{
		"date":  day.Format("2006-01-02"),
		"saved": len(kept),
		"total": len(fetched),
	}).Info("Cached daily bars")

	r.ensureBenchmark(ctx, day)
	return true, nil
}

// ensureBenchmark makes sure the benchmark bar exists for a resolved date.
// The bulk fetch is filtered against a whitelist captured at startup and
// may be stale, so the benchmark gets its own single-ticker fetch. A failed
// fetch is logged and left for the next run.
func (r *Resolver) ensureBenchmark(ctx context.Context, day time.Time) {
	exists, err := r.bars.Exists(ctx, r.cfg.Benchmark, day)
	if err != nil || exists {
		return
	}

	bar, err := r.fetcher.DailyBar(ctx, r.cfg.Benchmark, day)
	if err != nil || bar == nil {
		r.logger.WithFields(map[string]interface{}{
			"ticker": r.cfg.Benchmark,
			"date":   day.Format("2006-01-02"),
		}).Warn("Benchmark bar unavailable")
		return
	}

	saved := contracts.DailyBar{
		Ticker: bar.Ticker,
		Date:   day,
		Open:   bar.Open,
		High:   bar.High,
		Low:    bar.Low,
		Close:  bar.Close,
		Volume: bar.Volume,
	}
	if err := r.bars.Upsert(ctx, &saved); err != nil {
		r.logger.WithError(err).Warn("Benchmark bar save failed")
		return
	}

	r.logger.WithFields(map[string]interface{}{
		"ticker": r.cfg.Benchmark,
		"date":   day.Format("2006-01-02"),
	}).Debug("Benchmark bar backfilled")
}

// Snapshots reads cached bars for the distinct dates in dateMap, restricted
// to the requested tickers plus the benchmark.
func (r *Resolver) Snapshots(ctx context.Context, tickers []string, dateMap map[string]time.Time) ([]contracts.DailyBar, error) {
	if len(dateMap) == 0 {
		return nil, nil
	}

	seen := make(map[time.Time]struct{}, len(dateMap))
	dates := make([]time.Time, 0, len(dateMap))
	for _, d := range dateMap {
		d = Day(d)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}

	want := make([]string, 0, len(tickers)+1)
	want = append(want, tickers...)
	want = append(want, r.cfg.Benchmark)

	return r.bars.GetByTickersAndDates(ctx, want, dates)
}

// filterToWhitelist keeps only bars for known universe tickers (plus the
// benchmark) and converts them to the persisted form.
func (r *Resolver) filterToWhitelist(bars []polygon.Bar) []contracts.DailyBar {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kept := make([]contracts.DailyBar, 0, len(bars))
	for _, b := range bars {
		if _, ok := r.whitelist[b.Ticker]; !ok {
			continue
		}
		kept = append(kept, contracts.DailyBar{
			Ticker: b.Ticker,
			Date:   Day(b.Date),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return kept
}
