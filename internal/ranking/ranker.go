package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

// TopN is how many ranked tickers are persisted per cohort per run.
const TopN = 10

// Ranker converts cached closes into momentum ranks and persists the weekly
// top-10 snapshot with streak bookkeeping.
type Ranker struct {
	snapshots contracts.SnapshotRepository
	logger    *logger.Logger
}

// NewRanker creates a new ranker.
func NewRanker(snapshots contracts.SnapshotRepository, log *logger.Logger) *Ranker {
	return &Ranker{
		snapshots: snapshots,
		logger:    log,
	}
}

// closeRecord holds the five closes one ticker needs for ranking.
// Nil means the close was not cached for that date.
type closeRecord struct {
	now     *float64
	week    *float64
	month   *float64
	year    *float64
	month13 *float64
}

func (c *closeRecord) complete() bool {
	return c.now != nil && c.week != nil && c.month != nil && c.year != nil && c.month13 != nil
}

// CalculateRanks computes momentum returns and ranks for the given bars.
//
// Returns: current = (now−1y)/1y, lastMonth = (−1m−−13m)/−13m,
// lastWeek = (now−1w)/1w. Ranks are descending with ties sharing the lowest
// ordinal, each computed over the tickers that have that metric. Tickers
// missing any input are dropped, then only steady-or-improving tickers
// (current rank ≤ last-month rank) survive, sorted by current return.
//
// A required date with no cached rows at all yields an empty result; the
// caller skips the cohort for this run.
func (r *Ranker) CalculateRanks(bars []contracts.DailyBar, dateMap map[string]time.Time) []contracts.Ranked {
	if len(bars) == 0 {
		return nil
	}

	records, labelCounts := buildRecords(bars, dateMap)

	for _, label := range contracts.TargetLabels {
		if labelCounts[label] == 0 {
			r.logger.WithField("label", label).
				Warn("No cached prices for required date, skipping ranking")
			return nil
		}
	}

	currentReturns := make(map[string]float64)
	lastMonthReturns := make(map[string]float64)
	lastWeekReturns := make(map[string]float64)

	for ticker, rec := range records {
		if rec.now != nil && rec.year != nil && *rec.year != 0 {
			currentReturns[ticker] = (*rec.now - *rec.year) / *rec.year
		}
		if rec.month != nil && rec.month13 != nil && *rec.month13 != 0 {
			lastMonthReturns[ticker] = (*rec.month - *rec.month13) / *rec.month13
		}
		if rec.now != nil && rec.week != nil && *rec.week != 0 {
			lastWeekReturns[ticker] = (*rec.now - *rec.week) / *rec.week
		}
	}

	currentRanks := rankDescendingMin(currentReturns)
	lastMonthRanks := rankDescendingMin(lastMonthReturns)

	var ranked []contracts.Ranked
	for ticker, rec := range records {
		if !rec.complete() {
			continue
		}

		cur, okCur := currentReturns[ticker]
		prev, okPrev := lastMonthReturns[ticker]
		week, okWeek := lastWeekReturns[ticker]
		if !okCur || !okPrev || !okWeek {
			continue
		}

		curRank := currentRanks[ticker]
		prevRank := lastMonthRanks[ticker]
		if curRank > prevRank {
			// Slipping in rank; momentum is not holding.
			continue
		}

		ranked = append(ranked, contracts.Ranked{
			Ticker:          ticker,
			CurrentReturn:   cur,
			LastWeekReturn:  week,
			LastMonthReturn: prev,
			CurrentRank:     curRank,
			LastMonthRank:   prevRank,
			RankChange:      prevRank - curRank,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].CurrentReturn != ranked[j].CurrentReturn {
			return ranked[i].CurrentReturn > ranked[j].CurrentReturn
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	return ranked
}

// ExtractTopPicks slices the top 10, applies streak continuity against the
// most recent prior snapshot, and persists the result. Rerunning the same
// (cohort, date) replaces the previous rows.
func (r *Ranker) ExtractTopPicks(ctx context.Context, ranked []contracts.Ranked, cohort string, runDate time.Time) ([]contracts.RankSnapshot, error) {
	if len(ranked) == 0 {
		r.logger.WithField("cohort", cohort).Warn("No ranked results")
		return nil, nil
	}

	top := ranked
	if len(top) > TopN {
		top = top[:TopN]
	}

	prior, err := r.priorSnapshot(ctx, cohort, runDate)
	if err != nil {
		return nil, fmt.Errorf("load prior snapshot for %s: %w", cohort, err)
	}

	snaps := ApplyStreaks(top, prior, cohort, runDate)

	if err := r.snapshots.ReplaceForDate(ctx, cohort, runDate, snaps); err != nil {
		return nil, fmt.Errorf("save top picks for %s: %w", cohort, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"cohort": cohort,
		"count":  len(snaps),
		"date":   runDate.Format("2006-01-02"),
	}).Info("Saved top picks")

	return snaps, nil
}

// priorSnapshot loads the cohort's most recent snapshot strictly before
// runDate, keyed by ticker. No history yields an empty map.
func (r *Ranker) priorSnapshot(ctx context.Context, cohort string, runDate time.Time) (map[string]contracts.RankSnapshot, error) {
	prevDate, err := r.snapshots.LatestDateBefore(ctx, cohort, runDate)
	if err != nil {
		return nil, err
	}
	if prevDate == nil {
		return map[string]contracts.RankSnapshot{}, nil
	}

	rows, err := r.snapshots.GetByCohortAndDate(ctx, cohort, *prevDate)
	if err != nil {
		return nil, err
	}

	prior := make(map[string]contracts.RankSnapshot, len(rows))
	for _, row := range rows {
		prior[row.Ticker] = row
	}
	return prior, nil
}

// ApplyStreaks turns ranked rows into persistable snapshots. A ticker
// present in the prior snapshot continues its streak and keeps its original
// start date; everything else starts a fresh streak today.
func ApplyStreaks(top []contracts.Ranked, prior map[string]contracts.RankSnapshot, cohort string, runDate time.Time) []contracts.RankSnapshot {
	snaps := make([]contracts.RankSnapshot, 0, len(top))
	for _, t := range top {
		snap := contracts.RankSnapshot{
			Cohort:          cohort,
			Ticker:          t.Ticker,
			Date:            runDate,
			CurrentReturn:   t.CurrentReturn,
			LastWeekReturn:  t.LastWeekReturn,
			LastMonthReturn: t.LastMonthReturn,
			CurrentRank:     t.CurrentRank,
			LastMonthRank:   t.LastMonthRank,
			RankChange:      t.RankChange,
			Streak:          1,
			StreakStart:     runDate,
		}

		if prev, ok := prior[t.Ticker]; ok {
			snap.Streak = prev.Streak + 1
			snap.StreakStart = prev.StreakStart
		}

		snaps = append(snaps, snap)
	}
	return snaps
}

// buildRecords reshapes long bar rows into per-ticker close records, and
// counts how many tickers had a close for each label.
func buildRecords(bars []contracts.DailyBar, dateMap map[string]time.Time) (map[string]*closeRecord, map[string]int) {
	records := make(map[string]*closeRecord)
	labelCounts := make(map[string]int, len(contracts.TargetLabels))

	for i := range bars {
		bar := &bars[i]
		for _, label := range contracts.TargetLabels {
			want, ok := dateMap[label]
			if !ok || !sameDay(bar.Date, want) {
				continue
			}

			rec := records[bar.Ticker]
			if rec == nil {
				rec = &closeRecord{}
				records[bar.Ticker] = rec
			}

			c := bar.Close
			switch label {
			case contracts.LabelLatestTrading:
				rec.now = &c
			case contracts.LabelMinus1Week:
				rec.week = &c
			case contracts.LabelMinus1Month:
				rec.month = &c
			case contracts.LabelMinus1Year:
				rec.year = &c
			case contracts.LabelMinus13Months:
				rec.month13 = &c
			}
			labelCounts[label]++
		}
	}

	return records, labelCounts
}

// rankDescendingMin assigns descending ranks where ties share the lowest
// ordinal: values {10, 8, 8, 5} rank as {1, 2, 2, 4}.
func rankDescendingMin(values map[string]float64) map[string]int {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		sorted = append(sorted, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	firstOrdinal := make(map[float64]int, len(sorted))
	for i, v := range sorted {
		if _, ok := firstOrdinal[v]; !ok {
			firstOrdinal[v] = i + 1
		}
	}

	ranks := make(map[string]int, len(values))
	for ticker, v := range values {
		ranks[ticker] = firstOrdinal[v]
	}
	return ranks
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
