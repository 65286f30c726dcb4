package handlers

import (
	"math"
	"time"

	"github.com/wonny/momentum/internal/contracts"
)

// PerformanceSummary aggregates the ledger's resolved round trips against
// the benchmark bought and sold on the same days.
type PerformanceSummary struct {
	OpenPositions   int `json:"open_positions"`
	ClosedPositions int `json:"closed_positions"`
	// Settled trades have both fills resolved and enter the averages.
	SettledTrades int `json:"settled_trades"`

	AvgReturn          float64 `json:"avg_return"`
	AvgBenchmarkReturn float64 `json:"avg_benchmark_return"`
	// WinRate is the share of settled trades that beat the benchmark.
	WinRate float64 `json:"win_rate"`

	// AvgAnnualizedAlpha is the mean annualized log-return spread over the
	// benchmark, over settled trades that carry both fill dates.
	AvgAnnualizedAlpha float64 `json:"avg_annualized_alpha"`

	// LegAnnualizedLogReturns averages annualized log returns per option
	// strategy over legs with a resolved entry and exit.
	LegAnnualizedLogReturns map[string]float64 `json:"leg_annualized_log_returns"`
}

// Summarize computes the ledger's aggregate performance. Positions without a
// full round trip count toward the open/closed totals only.
func Summarize(positions []contracts.Position, legs []contracts.OptionLeg) PerformanceSummary {
	var s PerformanceSummary
	var retSum, benchSum, alphaSum float64
	var wins, alphaCount int

	for _, p := range positions {
		switch p.Status {
		case contracts.StatusOpen:
			s.OpenPositions++
		case contracts.StatusClosed:
			s.ClosedPositions++
		}

		ret, benchRet, ok := roundTrip(p)
		if !ok {
			continue
		}

		s.SettledTrades++
		retSum += ret
		benchSum += benchRet
		if ret > benchRet {
			wins++
		}

		if p.BuyDate != nil && p.SellDate != nil {
			years := holdingYears(*p.BuyDate, *p.SellDate)
			stock := math.Log(1+ret) / years
			bench := math.Log(1+benchRet) / years
			alphaSum += stock - bench
			alphaCount++
		}
	}

	if s.SettledTrades > 0 {
		s.AvgReturn = retSum / float64(s.SettledTrades)
		s.AvgBenchmarkReturn = benchSum / float64(s.SettledTrades)
		s.WinRate = float64(wins) / float64(s.SettledTrades)
	}
	if alphaCount > 0 {
		s.AvgAnnualizedAlpha = alphaSum / float64(alphaCount)
	}

	s.LegAnnualizedLogReturns = legReturns(legs)
	return s
}

// roundTrip returns the position's stock and benchmark returns, if both
// fills resolved.
func roundTrip(p contracts.Position) (ret, benchRet float64, ok bool) {
	if p.BuyPrice == nil || p.SellPrice == nil || p.SpyBuyPrice == nil || p.SpySellPrice == nil {
		return 0, 0, false
	}
	if *p.BuyPrice == 0 || *p.SpyBuyPrice == 0 {
		return 0, 0, false
	}

	ret = (*p.SellPrice - *p.BuyPrice) / *p.BuyPrice
	benchRet = (*p.SpySellPrice - *p.SpyBuyPrice) / *p.SpyBuyPrice
	return ret, benchRet, true
}

// legReturns averages annualized log returns per strategy over legs whose
// entry and exit both resolved to positive prices.
func legReturns(legs []contracts.OptionLeg) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)

	for _, l := range legs {
		if l.EntryDate == nil || l.ExitDate == nil || l.EntryPrice == nil || l.ExitPrice == nil {
			continue
		}
		if *l.EntryPrice <= 0 || *l.ExitPrice <= 0 {
			continue
		}

		years := holdingYears(*l.EntryDate, *l.ExitDate)
		sums[string(l.Strategy)] += math.Log(*l.ExitPrice / *l.EntryPrice) / years
		counts[string(l.Strategy)]++
	}

	out := make(map[string]float64, len(sums))
	for strategy, sum := range sums {
		out[strategy] = sum / float64(counts[strategy])
	}
	return out
}

// holdingYears floors the holding period at one day so same-day round trips
// do not divide by zero.
func holdingYears(from, to time.Time) float64 {
	days := to.Sub(from).Hours() / 24
	if days < 1 {
		days = 1
	}
	return days / 365
}
