package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

type fakeResolver struct {
	refreshErr error
	resolveErr error
	dateMap    map[string]time.Time
	bars       []contracts.DailyBar
}

func (f *fakeResolver) RefreshUniverse(context.Context) error { return f.refreshErr }

func (f *fakeResolver) ResolveTargetDates(context.Context, time.Time) (map[string]time.Time, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.dateMap, nil
}

func (f *fakeResolver) Snapshots(context.Context, []string, map[string]time.Time) ([]contracts.DailyBar, error) {
	return f.bars, nil
}

type fakeRanker struct {
	ranked   []contracts.Ranked
	snaps    []contracts.RankSnapshot
	saveErr  map[string]error
	extracts []string
}

func (f *fakeRanker) CalculateRanks([]contracts.DailyBar, map[string]time.Time) []contracts.Ranked {
	return f.ranked
}

func (f *fakeRanker) ExtractTopPicks(_ context.Context, _ []contracts.Ranked, cohort string, _ time.Time) ([]contracts.RankSnapshot, error) {
	f.extracts = append(f.extracts, cohort)
	if err := f.saveErr[cohort]; err != nil {
		return nil, err
	}
	return f.snaps, nil
}

type fakeSignals struct {
	cohorts []string
}

func (f *fakeSignals) ProcessSignals(_ context.Context, cohort string, _ []contracts.RankSnapshot, _ map[string]time.Time, _ time.Time) error {
	f.cohorts = append(f.cohorts, cohort)
	return nil
}

type fakeFills struct {
	called bool
	err    error
}

func (f *fakeFills) ResolvePrices(context.Context) error {
	f.called = true
	return f.err
}

type fakeUniverse struct {
	members map[string][]contracts.Member
	errFor  map[string]error
}

func (f *fakeUniverse) GetCohort(_ context.Context, cohort string) ([]contracts.Member, error) {
	if err := f.errFor[cohort]; err != nil {
		return nil, err
	}
	return f.members[cohort], nil
}

func (f *fakeUniverse) AllTickers(context.Context) ([]string, error) { return nil, nil }

func (f *fakeUniverse) ReplaceCohort(context.Context, string, []contracts.Member, time.Time) ([]string, []string, error) {
	return nil, nil, nil
}

func (f *fakeUniverse) ChangeLog(context.Context, string) ([]contracts.UniverseChange, error) {
	return nil, nil
}

func allCohortMembers() map[string][]contracts.Member {
	m := make(map[string][]contracts.Member)
	for _, c := range contracts.Cohorts {
		m[c] = []contracts.Member{{Symbol: "AAPL"}, {Symbol: "MSFT"}}
	}
	return m
}

func newTestRunner(resolver *fakeResolver, ranker *fakeRanker, signals *fakeSignals, fills *fakeFills, uni *fakeUniverse) *Runner {
	return NewRunner(resolver, ranker, signals, fills, uni, logger.NewNop())
}

func baseFixtures() (*fakeResolver, *fakeRanker, *fakeSignals, *fakeFills, *fakeUniverse) {
	resolver := &fakeResolver{
		dateMap: map[string]time.Time{contracts.LabelLatestTrading: time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)},
		bars:    []contracts.DailyBar{{Ticker: "AAPL"}},
	}
	ranker := &fakeRanker{
		ranked:  []contracts.Ranked{{Ticker: "AAPL"}},
		snaps:   []contracts.RankSnapshot{{Ticker: "AAPL"}},
		saveErr: map[string]error{},
	}
	return resolver, ranker, &fakeSignals{}, &fakeFills{}, &fakeUniverse{members: allCohortMembers(), errFor: map[string]error{}}
}

func TestRunProcessesEveryCohort(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.True(t, fills.called, "pending fills resolve before anything else")
	assert.Equal(t, contracts.Cohorts, signals.cohorts)
	assert.Equal(t, contracts.Cohorts, ranker.extracts)
}

func TestRunAbortsWhenDateResolutionFails(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	resolver.resolveErr = errors.New("no market data found near 2025-06-08")
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	require.Error(t, err)
	assert.Empty(t, signals.cohorts, "no cohort runs without resolved dates")
}

func TestRunAbortsWhenPendingFillsFail(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	fills.err = errors.New("db down")
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	require.Error(t, err)
	assert.Empty(t, signals.cohorts)
}

func TestRunSurvivesOneFailedCohort(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	uni.errFor[contracts.CohortSP500] = errors.New("query failed")
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.NotContains(t, signals.cohorts, contracts.CohortSP500)
	assert.Contains(t, signals.cohorts, contracts.CohortMegacap)
	assert.Contains(t, signals.cohorts, contracts.CohortSP400)
}

func TestRunFailsWhenEveryCohortFails(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	for _, c := range contracts.Cohorts {
		uni.errFor[c] = errors.New("query failed")
	}
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}

func TestRunSkipsEmptyCohortWithoutError(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	uni.members[contracts.CohortMegacap] = nil
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.NotContains(t, signals.cohorts, contracts.CohortMegacap)
}

func TestRunSkipsCohortWithNoRankableTickers(t *testing.T) {
	resolver, ranker, signals, fills, uni := baseFixtures()
	ranker.ranked = nil
	r := newTestRunner(resolver, ranker, signals, fills, uni)

	err := r.Run(context.Background(), time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC))

	require.NoError(t, err)
	assert.Empty(t, signals.cohorts)
	assert.Empty(t, ranker.extracts, "nothing to persist without ranked tickers")
}
