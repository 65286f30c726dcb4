package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/internal/external/polygon"
	"github.com/wonny/momentum/pkg/logger"
)

const benchmark = "VOO"

// fakeScanner reports a fixed set of trading days as available.
type fakeScanner struct {
	available map[time.Time]bool
}

func (f *fakeScanner) EnsureDay(_ context.Context, d time.Time) (bool, error) {
	return f.available[d], nil
}

// fakeQuoter serves option closes keyed by symbol and day.
type fakeQuoter struct {
	closes map[string]map[time.Time]float64
}

func (f *fakeQuoter) DailyBar(_ context.Context, symbol string, d time.Time) (*polygon.Bar, error) {
	c, ok := f.closes[symbol][d]
	if !ok {
		return nil, nil
	}
	return &polygon.Bar{Ticker: symbol, Date: d, Close: c}, nil
}

type backfillEnv struct {
	positions *memPositions
	legs      *memLegs
	bars      *memBars
	scanner   *fakeScanner
	quoter    *fakeQuoter
	bf        *Backfiller
}

func newBackfillEnv(today time.Time) *backfillEnv {
	positions := newMemPositions()
	legs := newMemLegs(positions)
	bars := newMemBars()
	scanner := &fakeScanner{available: make(map[time.Time]bool)}
	quoter := &fakeQuoter{closes: make(map[string]map[time.Time]float64)}

	bf := NewBackfiller(positions, legs, bars, scanner, quoter, benchmark, logger.NewNop())
	bf.now = func() time.Time { return today }

	return &backfillEnv{positions: positions, legs: legs, bars: bars, scanner: scanner, quoter: quoter, bf: bf}
}

// tradingDay marks a day available and caches bars for the ticker and the
// benchmark on it.
func (e *backfillEnv) tradingDay(d time.Time, ticker string, high, low float64) {
	e.scanner.available[d] = true
	e.bars.put(contracts.DailyBar{Ticker: ticker, Date: d, High: high, Low: low, Close: (high + low) / 2})
	e.bars.put(contracts.DailyBar{Ticker: benchmark, Date: d, High: high * 2, Low: low * 2, Close: high + low})
}

func openPosition(e *backfillEnv, ticker string, signalDate time.Time) *contracts.Position {
	p := &contracts.Position{
		TradeID:    contracts.TradeID(ticker, signalDate),
		Cohort:     contracts.CohortMegacap,
		Ticker:     ticker,
		SignalDate: signalDate,
		Status:     contracts.StatusOpen,
		UserAction: "WATCH",
	}
	_ = e.positions.Create(context.Background(), p)
	return p
}

func TestResolveBuyFillNextTradingDay(t *testing.T) {
	// Signal Monday, data through Tuesday; the buy is Tuesday's high.
	signal := day(2025, 6, 9)
	e := newBackfillEnv(day(2025, 6, 12))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 10), "AAPL", 101, 99)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, err := e.positions.Get(context.Background(), p.TradeID)
	require.NoError(t, err)
	require.NotNil(t, got.BuyPrice)
	assert.Equal(t, 101.0, *got.BuyPrice)
	assert.Equal(t, day(2025, 6, 10), *got.BuyDate)
	assert.Equal(t, 202.0, *got.SpyBuyPrice)
}

func TestResolveBuyFillSkipsWeekend(t *testing.T) {
	// Signal Friday; Saturday and Sunday are skipped, Monday fills.
	signal := day(2025, 6, 6)
	e := newBackfillEnv(day(2025, 6, 11))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 9), "AAPL", 105, 95)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	require.NotNil(t, got.BuyDate)
	assert.Equal(t, day(2025, 6, 9), *got.BuyDate)
}

func TestResolveBuyFillNeverOnOrAfterDropDate(t *testing.T) {
	// The position dropped the run after it opened and the only candidate
	// day is the drop date itself. The buy must stay unresolved forever.
	signal := day(2025, 6, 9)
	drop := day(2025, 6, 10)
	e := newBackfillEnv(day(2025, 6, 13))
	p := openPosition(e, "AAPL", signal)
	require.NoError(t, e.positions.Close(context.Background(), p.TradeID, drop))
	e.tradingDay(drop, "AAPL", 101, 99)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	assert.Nil(t, got.BuyPrice)
	assert.Nil(t, got.BuyDate)
}

func TestResolveBuyFillNeverInFuture(t *testing.T) {
	// Today is the day after the signal; the candidate day has not closed
	// yet, so the fill waits.
	signal := day(2025, 6, 9)
	e := newBackfillEnv(day(2025, 6, 10))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 10), "AAPL", 101, 99)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	assert.Nil(t, got.BuyPrice)
}

func TestResolveBuyFillWaitsForMissingData(t *testing.T) {
	// The day after the signal has no data yet; nothing fills, nothing errors.
	signal := day(2025, 6, 9)
	e := newBackfillEnv(day(2025, 6, 12))
	p := openPosition(e, "AAPL", signal)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	assert.Nil(t, got.BuyPrice)
}

func TestResolveBuyFillWindowIsCalendarDays(t *testing.T) {
	// Signal Wednesday: the window is Thu 5th through Mon 9th, the weekend
	// consuming two of its days. Data appearing only on Tue 10th is out of
	// reach and the buy stays unresolved.
	signal := day(2025, 6, 4)
	e := newBackfillEnv(day(2025, 6, 13))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 10), "AAPL", 101, 99)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	assert.Nil(t, got.BuyPrice)
	assert.Nil(t, got.BuyDate)
}

func TestResolveSellFillAfterDrop(t *testing.T) {
	signal := day(2025, 6, 2)
	drop := day(2025, 6, 9)
	e := newBackfillEnv(day(2025, 6, 12))
	p := openPosition(e, "AAPL", signal)

	e.tradingDay(day(2025, 6, 3), "AAPL", 100, 98)  // buy day
	e.tradingDay(day(2025, 6, 10), "AAPL", 97, 94)  // sell day

	require.NoError(t, e.positions.Close(context.Background(), p.TradeID, drop))
	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	require.NotNil(t, got.BuyPrice)
	assert.Equal(t, 100.0, *got.BuyPrice)
	require.NotNil(t, got.SellPrice)
	assert.Equal(t, 94.0, *got.SellPrice)
	assert.Equal(t, day(2025, 6, 10), *got.SellDate)
	assert.Equal(t, 188.0, *got.SpySellPrice)
	assert.True(t, got.SellDate.After(*got.BuyDate))
}

func TestResolveSellFillNeverOnOrBeforeBuyDate(t *testing.T) {
	// Degenerate ordering: the buy resolved later than the drop. The sell
	// scan starts after the buy date, not after the drop date.
	signal := day(2025, 6, 2)
	drop := day(2025, 6, 3)
	buy := day(2025, 6, 4)
	e := newBackfillEnv(day(2025, 6, 10))
	p := openPosition(e, "AAPL", signal)

	require.NoError(t, e.positions.Close(context.Background(), p.TradeID, drop))
	require.NoError(t, e.positions.SetBuyFill(context.Background(), p.TradeID, buy, 100, 200))

	e.tradingDay(day(2025, 6, 4), "AAPL", 100, 98)
	e.tradingDay(day(2025, 6, 5), "AAPL", 99, 96)

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	require.NotNil(t, got.SellDate)
	assert.Equal(t, day(2025, 6, 5), *got.SellDate)
	assert.True(t, got.SellDate.After(*got.BuyDate))
}

func createLeg(e *backfillEnv, tradeID string, strat contracts.Strategy, symbol string) {
	_ = e.legs.Create(context.Background(), &contracts.OptionLeg{
		TradeID:      tradeID,
		Strategy:     strat,
		OptionSymbol: symbol,
		Expiration:   day(2026, 1, 16),
		Strike:       100,
		ContractType: "call",
		Status:       contracts.StatusOpen,
	})
}

func TestResolveOptionEntryOnBuyDate(t *testing.T) {
	signal := day(2025, 6, 2)
	e := newBackfillEnv(day(2025, 6, 6))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 3), "AAPL", 100, 98)
	createLeg(e, p.TradeID, contracts.StrategyCall100d, "O:AAPL_C")

	e.quoter.closes["O:AAPL_C"] = map[time.Time]float64{day(2025, 6, 3): 4.2}

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	legs, _ := e.legs.ByTradeID(context.Background(), p.TradeID)
	require.Len(t, legs, 1)
	require.NotNil(t, legs[0].EntryPrice)
	assert.Equal(t, 4.2, *legs[0].EntryPrice)
	assert.Equal(t, day(2025, 6, 3), *legs[0].EntryDate)
}

func TestResolveOptionEntrySkipsUnquotedDays(t *testing.T) {
	// The contract did not print on the buy date; the entry lands on its
	// first quoted day after it.
	signal := day(2025, 6, 2)
	e := newBackfillEnv(day(2025, 6, 9))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 3), "AAPL", 100, 98)
	createLeg(e, p.TradeID, contracts.StrategyCall100d, "O:AAPL_C")

	e.quoter.closes["O:AAPL_C"] = map[time.Time]float64{day(2025, 6, 5): 3.8}

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	legs, _ := e.legs.ByTradeID(context.Background(), p.TradeID)
	require.NotNil(t, legs[0].EntryPrice)
	assert.Equal(t, 3.8, *legs[0].EntryPrice)
	assert.Equal(t, day(2025, 6, 5), *legs[0].EntryDate)
}

func TestResolveOptionEntryWindowIsCalendarDays(t *testing.T) {
	// Stock bought Thursday: the entry window runs Thu 5th through Mon 9th.
	// A contract that first prints on Tue 10th stays unresolved.
	signal := day(2025, 6, 4)
	e := newBackfillEnv(day(2025, 6, 13))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 5), "AAPL", 100, 98)
	createLeg(e, p.TradeID, contracts.StrategyCall100d, "O:AAPL_C")

	e.quoter.closes["O:AAPL_C"] = map[time.Time]float64{day(2025, 6, 10): 3.8}

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	got, _ := e.positions.Get(context.Background(), p.TradeID)
	require.NotNil(t, got.BuyDate, "stock fill lands in window")
	assert.Equal(t, day(2025, 6, 5), *got.BuyDate)

	legs, _ := e.legs.ByTradeID(context.Background(), p.TradeID)
	assert.Nil(t, legs[0].EntryPrice)
	assert.Nil(t, legs[0].EntryDate)
}

func TestResolveOptionEntryWaitsForStockFill(t *testing.T) {
	// No stock buy yet, so the leg has no anchor date.
	signal := day(2025, 6, 2)
	e := newBackfillEnv(day(2025, 6, 6))
	p := openPosition(e, "AAPL", signal)
	createLeg(e, p.TradeID, contracts.StrategyCall100d, "O:AAPL_C")
	e.quoter.closes["O:AAPL_C"] = map[time.Time]float64{day(2025, 6, 3): 4.2}

	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	legs, _ := e.legs.ByTradeID(context.Background(), p.TradeID)
	assert.Nil(t, legs[0].EntryPrice)
}

func TestResolveOptionExitAfterClose(t *testing.T) {
	signal := day(2025, 6, 2)
	drop := day(2025, 6, 9)
	e := newBackfillEnv(day(2025, 6, 13))
	p := openPosition(e, "AAPL", signal)
	e.tradingDay(day(2025, 6, 3), "AAPL", 100, 98)
	e.tradingDay(day(2025, 6, 10), "AAPL", 97, 94)
	createLeg(e, p.TradeID, contracts.StrategyShortPut, "O:AAPL_P")

	e.quoter.closes["O:AAPL_P"] = map[time.Time]float64{
		day(2025, 6, 3):  2.0,
		day(2025, 6, 10): 1.1,
	}

	require.NoError(t, e.positions.Close(context.Background(), p.TradeID, drop))
	require.NoError(t, e.legs.CloseForTrade(context.Background(), p.TradeID))
	require.NoError(t, e.bf.ResolvePrices(context.Background()))

	legs, _ := e.legs.ByTradeID(context.Background(), p.TradeID)
	require.Len(t, legs, 1)
	require.NotNil(t, legs[0].EntryPrice)
	assert.Equal(t, 2.0, *legs[0].EntryPrice)
	require.NotNil(t, legs[0].ExitPrice)
	assert.Equal(t, 1.1, *legs[0].ExitPrice)
	assert.Equal(t, day(2025, 6, 10), *legs[0].ExitDate)
}
