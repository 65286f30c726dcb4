package prices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/internal/external/polygon"
	"github.com/wonny/momentum/pkg/config"
	"github.com/wonny/momentum/pkg/logger"
)

// barStore is an in-memory contracts.BarRepository.
type barStore struct {
	m map[string]map[time.Time]contracts.DailyBar
}

func newBarStore() *barStore {
	return &barStore{m: make(map[string]map[time.Time]contracts.DailyBar)}
}

func (s *barStore) put(b contracts.DailyBar) {
	if s.m[b.Ticker] == nil {
		s.m[b.Ticker] = make(map[time.Time]contracts.DailyBar)
	}
	s.m[b.Ticker][b.Date] = b
}

func (s *barStore) Upsert(_ context.Context, bar *contracts.DailyBar) error {
	s.put(*bar)
	return nil
}

func (s *barStore) UpsertBatch(_ context.Context, bars []contracts.DailyBar) error {
	for _, b := range bars {
		s.put(b)
	}
	return nil
}

func (s *barStore) Get(_ context.Context, ticker string, date time.Time) (*contracts.DailyBar, error) {
	b, ok := s.m[ticker][date]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (s *barStore) CountByDate(_ context.Context, date time.Time) (int, error) {
	n := 0
	for _, byDate := range s.m {
		if _, ok := byDate[date]; ok {
			n++
		}
	}
	return n, nil
}

func (s *barStore) Exists(_ context.Context, ticker string, date time.Time) (bool, error) {
	_, ok := s.m[ticker][date]
	return ok, nil
}

func (s *barStore) GetByTickersAndDates(_ context.Context, tickers []string, dates []time.Time) ([]contracts.DailyBar, error) {
	var out []contracts.DailyBar
	for _, t := range tickers {
		for _, dt := range dates {
			if b, ok := s.m[t][dt]; ok {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

// tickerSource is an in-memory contracts.UniverseRepository; only AllTickers
// matters to the resolver.
type tickerSource struct {
	tickers []string
	err     error
}

func (u *tickerSource) GetCohort(context.Context, string) ([]contracts.Member, error) {
	return nil, nil
}

func (u *tickerSource) AllTickers(context.Context) ([]string, error) {
	return u.tickers, u.err
}

func (u *tickerSource) ReplaceCohort(context.Context, string, []contracts.Member, time.Time) ([]string, []string, error) {
	return nil, nil, nil
}

func (u *tickerSource) ChangeLog(context.Context, string) ([]contracts.UniverseChange, error) {
	return nil, nil
}

// fakeMarket serves grouped and per-ticker bars. With auto set, every
// weekday has bars for autoTickers and a benchmark quote.
type fakeMarket struct {
	auto        bool
	autoTickers []string

	grouped      map[time.Time][]polygon.Bar
	groupedErr   error
	groupedCalls int

	daily      map[string]map[time.Time]polygon.Bar
	dailyCalls int
}

func (f *fakeMarket) GroupedDaily(_ context.Context, day time.Time) ([]polygon.Bar, error) {
	f.groupedCalls++
	if f.groupedErr != nil {
		return nil, f.groupedErr
	}
	if f.auto {
		if IsWeekend(day) {
			return nil, nil
		}
		bars := make([]polygon.Bar, 0, len(f.autoTickers))
		for _, t := range f.autoTickers {
			bars = append(bars, polygon.Bar{Ticker: t, Date: day, Close: 100})
		}
		return bars, nil
	}
	return f.grouped[day], nil
}

func (f *fakeMarket) DailyBar(_ context.Context, ticker string, day time.Time) (*polygon.Bar, error) {
	f.dailyCalls++
	if f.auto {
		return &polygon.Bar{Ticker: ticker, Date: day, Close: 100}, nil
	}
	b, ok := f.daily[ticker][day]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func testResolverConfig() config.ResolverConfig {
	return config.ResolverConfig{
		Benchmark: "VOO",
		// Test fixtures are tiny; two cached tickers already count as a
		// complete day.
		MinFullDayRows: 2,
		MaxBacktrack:   5,
	}
}

func groupedBars(day time.Time, tickers ...string) []polygon.Bar {
	bars := make([]polygon.Bar, 0, len(tickers))
	for _, t := range tickers {
		bars = append(bars, polygon.Bar{Ticker: t, Date: day, Open: 99, High: 101, Low: 98, Close: 100, Volume: 1000})
	}
	return bars
}

func TestEnsureDateDataWeekendResolvesToFriday(t *testing.T) {
	friday := d(2025, 6, 6)
	saturday := d(2025, 6, 7)

	store := newBarStore()
	market := &fakeMarket{
		grouped: map[time.Time][]polygon.Bar{friday: groupedBars(friday, "AAPL", "MSFT", "NVDA")},
		daily:   map[string]map[time.Time]polygon.Bar{"VOO": {friday: {Ticker: "VOO", Date: friday, Close: 500}}},
	}
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	got, err := r.EnsureDateData(context.Background(), saturday)

	require.NoError(t, err)
	assert.Equal(t, friday, got, "weekend target lands on the previous Friday")

	cached, err := store.Exists(context.Background(), "AAPL", friday)
	require.NoError(t, err)
	assert.True(t, cached)

	bench, err := store.Exists(context.Background(), "VOO", friday)
	require.NoError(t, err)
	assert.True(t, bench, "resolved dates always carry a benchmark bar")
}

func TestEnsureDateDataBacktracksOverHoliday(t *testing.T) {
	friday := d(2025, 6, 6)
	monday := d(2025, 6, 9) // market holiday in this fixture

	store := newBarStore()
	market := &fakeMarket{
		grouped: map[time.Time][]polygon.Bar{friday: groupedBars(friday, "AAPL", "MSFT", "NVDA")},
		daily:   map[string]map[time.Time]polygon.Bar{"VOO": {friday: {Ticker: "VOO", Date: friday, Close: 500}}},
	}
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	got, err := r.EnsureDateData(context.Background(), monday)

	require.NoError(t, err)
	assert.Equal(t, friday, got)
}

func TestEnsureDateDataReportsGap(t *testing.T) {
	store := newBarStore()
	market := &fakeMarket{} // upstream has nothing at all
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL"}}, market, logger.NewNop())

	_, err := r.EnsureDateData(context.Background(), d(2025, 6, 9))

	var gap *DataGapError
	require.ErrorAs(t, err, &gap)
	assert.Equal(t, d(2025, 6, 9), gap.Target)
	assert.Equal(t, 5, gap.Tried)
}

func TestEnsureDateDataTransientFailureBacktracks(t *testing.T) {
	// An upstream failure on one day is treated like an empty day, not a
	// fatal error: the search keeps moving backward.
	store := newBarStore()
	friday := d(2025, 6, 6)
	store.put(contracts.DailyBar{Ticker: "AAPL", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "MSFT", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "NVDA", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "VOO", Date: friday, Close: 500})

	market := &fakeMarket{groupedErr: errors.New("upstream 502")}
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	got, err := r.EnsureDateData(context.Background(), d(2025, 6, 9))

	require.NoError(t, err)
	assert.Equal(t, friday, got)
}

func TestEnsureDateDataUsesCacheWithoutFetching(t *testing.T) {
	friday := d(2025, 6, 6)
	store := newBarStore()
	store.put(contracts.DailyBar{Ticker: "AAPL", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "MSFT", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "NVDA", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "VOO", Date: friday, Close: 500})

	market := &fakeMarket{}
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	got, err := r.EnsureDateData(context.Background(), friday)

	require.NoError(t, err)
	assert.Equal(t, friday, got)
	assert.Zero(t, market.groupedCalls, "a complete cached day needs no fetch")
}

func TestEnsureDayBackfillsMissingBenchmark(t *testing.T) {
	// The cache is complete for the day but the benchmark bar is absent,
	// e.g. because an older whitelist filtered it out. The resolver fetches
	// it on its own.
	friday := d(2025, 6, 6)
	store := newBarStore()
	store.put(contracts.DailyBar{Ticker: "AAPL", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "MSFT", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "NVDA", Date: friday, Close: 100})

	market := &fakeMarket{
		daily: map[string]map[time.Time]polygon.Bar{"VOO": {friday: {Ticker: "VOO", Date: friday, Close: 500}}},
	}
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	ok, err := r.EnsureDay(context.Background(), friday)

	require.NoError(t, err)
	assert.True(t, ok)

	bench, err := store.Get(context.Background(), "VOO", friday)
	require.NoError(t, err)
	require.NotNil(t, bench)
	assert.Equal(t, 500.0, bench.Close)
}

func TestBulkFetchFiltersToWhitelist(t *testing.T) {
	friday := d(2025, 6, 6)
	store := newBarStore()
	market := &fakeMarket{
		grouped: map[time.Time][]polygon.Bar{
			friday: groupedBars(friday, "AAPL", "MSFT", "NVDA", "SPXW251219C05000", "JUNKW"),
		},
		daily: map[string]map[time.Time]polygon.Bar{"VOO": {friday: {Ticker: "VOO", Date: friday, Close: 500}}},
	}
	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	_, err := r.EnsureDateData(context.Background(), friday)
	require.NoError(t, err)

	junk, err := store.Exists(context.Background(), "JUNKW", friday)
	require.NoError(t, err)
	assert.False(t, junk, "unknown symbols never reach the cache")
}

func TestResolveTargetDatesAllLabels(t *testing.T) {
	market := &fakeMarket{auto: true, autoTickers: []string{"AAPL", "MSFT", "NVDA"}}
	r := NewResolver(testResolverConfig(), newBarStore(), &tickerSource{tickers: []string{"AAPL", "MSFT", "NVDA"}}, market, logger.NewNop())

	// Run Monday 2025-06-09: the base day is Sunday the 8th.
	got, err := r.ResolveTargetDates(context.Background(), d(2025, 6, 9))
	require.NoError(t, err)

	want := map[string]time.Time{
		contracts.LabelLatestTrading: d(2025, 6, 6),  // Sun 8th -> Fri 6th
		contracts.LabelMinus1Week:    d(2025, 5, 30), // Sun 1st -> Fri May 30
		contracts.LabelMinus1Month:   d(2025, 5, 8),  // Thursday
		contracts.LabelMinus1Year:    d(2024, 6, 7),  // Sat 8th -> Fri 7th
		contracts.LabelMinus13Months: d(2024, 5, 8),  // Wednesday
	}
	assert.Equal(t, want, got)
}

func TestRefreshUniverseWidensWhitelist(t *testing.T) {
	juneFifth := d(2025, 6, 5)
	juneSixth := d(2025, 6, 6)

	store := newBarStore()
	source := &tickerSource{tickers: []string{"AAPL"}}
	market := &fakeMarket{
		grouped: map[time.Time][]polygon.Bar{
			juneFifth: groupedBars(juneFifth, "AAPL", "MSFT", "XYZ1"),
			juneSixth: groupedBars(juneSixth, "AAPL", "MSFT", "XYZ1"),
		},
		daily: map[string]map[time.Time]polygon.Bar{"VOO": {
			juneFifth: {Ticker: "VOO", Date: juneFifth, Close: 500},
			juneSixth: {Ticker: "VOO", Date: juneSixth, Close: 500},
		}},
	}
	r := NewResolver(testResolverConfig(), store, source, market, logger.NewNop())

	_, err := r.EnsureDateData(context.Background(), juneFifth)
	require.NoError(t, err)
	msft, _ := store.Exists(context.Background(), "MSFT", juneFifth)
	assert.False(t, msft, "MSFT is not whitelisted yet")

	// The universe gained MSFT; the snapshot only changes on refresh.
	source.tickers = []string{"AAPL", "MSFT"}
	require.NoError(t, r.RefreshUniverse(context.Background()))

	_, err = r.EnsureDateData(context.Background(), juneSixth)
	require.NoError(t, err)
	msft, _ = store.Exists(context.Background(), "MSFT", juneSixth)
	assert.True(t, msft)
}

func TestNewResolverDegradesToBenchmarkOnly(t *testing.T) {
	friday := d(2025, 6, 6)
	store := newBarStore()
	market := &fakeMarket{
		grouped: map[time.Time][]polygon.Bar{friday: groupedBars(friday, "AAPL", "VOO")},
	}
	r := NewResolver(testResolverConfig(), store, &tickerSource{err: errors.New("db down")}, market, logger.NewNop())

	_, err := r.EnsureDateData(context.Background(), friday)
	require.NoError(t, err)

	aapl, _ := store.Exists(context.Background(), "AAPL", friday)
	voo, _ := store.Exists(context.Background(), "VOO", friday)
	assert.False(t, aapl)
	assert.True(t, voo)
}

func TestSnapshotsIncludesBenchmarkAndDedupesDates(t *testing.T) {
	friday := d(2025, 6, 6)
	store := newBarStore()
	store.put(contracts.DailyBar{Ticker: "AAPL", Date: friday, Close: 100})
	store.put(contracts.DailyBar{Ticker: "VOO", Date: friday, Close: 500})

	r := NewResolver(testResolverConfig(), store, &tickerSource{tickers: []string{"AAPL"}}, &fakeMarket{}, logger.NewNop())

	// Two labels resolved to the same day must not duplicate rows.
	bars, err := r.Snapshots(context.Background(), []string{"AAPL"}, map[string]time.Time{
		contracts.LabelLatestTrading: friday,
		contracts.LabelMinus1Week:    friday,
	})

	require.NoError(t, err)
	assert.Len(t, bars, 2)
}
