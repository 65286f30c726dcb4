package options

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/internal/external/polygon"
	"github.com/wonny/momentum/pkg/config"
	"github.com/wonny/momentum/pkg/logger"
)

// Params defines one strategy's contract search window and targets.
// The window sizes are empirical; they are policy, not invariants.
type Params struct {
	// TargetDays to expiration from today.
	TargetDays int
	// StrikeRatio multiplies the stock price to get the target strike.
	StrikeRatio float64
	// ContractType is "call" or "put".
	ContractType string
	// DateWindowDays widens the expiration search to ±N days.
	DateWindowDays int
	// StrikeWindowPct widens the strike search to ±N% of the target.
	StrikeWindowPct float64
}

// DefaultPresets returns the fixed strategy table. The LEAP window is wide
// enough to bridge the gap between January expiration cycles.
func DefaultPresets() map[contracts.Strategy]Params {
	return map[contracts.Strategy]Params{
		contracts.StrategyCall100d: {
			TargetDays:      100,
			StrikeRatio:     1.05,
			ContractType:    "call",
			DateWindowDays:  45,
			StrikeWindowPct: 0.25,
		},
		contracts.StrategyLEAP500d: {
			TargetDays:      500,
			StrikeRatio:     1.10,
			ContractType:    "call",
			DateWindowDays:  200,
			StrikeWindowPct: 0.40,
		},
		contracts.StrategyShortPut: {
			TargetDays:      30,
			StrikeRatio:     1.00,
			ContractType:    "put",
			DateWindowDays:  20,
			StrikeWindowPct: 0.20,
		},
	}
}

// ContractSearcher is the slice of the upstream client the selector needs.
type ContractSearcher interface {
	SearchContracts(ctx context.Context, q polygon.ContractQuery) ([]polygon.Contract, error)
}

// Selector picks one option contract per strategy for a new position by
// scoring reference contracts against the strategy's targets.
type Selector struct {
	searcher     ContractSearcher
	presets      map[contracts.Strategy]Params
	strikeWeight float64
	limit        int
	logger       *logger.Logger

	now func() time.Time // injected for tests
}

// NewSelector creates a selector with the default strategy presets.
func NewSelector(cfg config.SelectorConfig, searcher ContractSearcher, log *logger.Logger) *Selector {
	return &Selector{
		searcher:     searcher,
		presets:      DefaultPresets(),
		strikeWeight: cfg.StrikeWeight,
		limit:        cfg.ContractLimit,
		logger:       log,
		now:          time.Now,
	}
}

// FindBestContract searches the contract reference set for the strategy and
// returns the minimum-score candidate, or nil when nothing qualifies.
//
// score = |expiration − target| in days + StrikeWeight × strike distance in
// percent of the target strike. Exact score ties break deterministically:
// smaller strike distance, then smaller date distance, then the lexically
// smaller option symbol.
func (s *Selector) FindBestContract(ctx context.Context, ticker string, stockPrice float64, strategy contracts.Strategy) (*contracts.SelectedContract, error) {
	params, ok := s.presets[strategy]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}

	today := midnightUTC(s.now())
	targetExpiration := today.AddDate(0, 0, params.TargetDays)
	targetStrike := stockPrice * params.StrikeRatio

	query := polygon.ContractQuery{
		Underlying:    ticker,
		ContractType:  params.ContractType,
		ExpirationGTE: targetExpiration.AddDate(0, 0, -params.DateWindowDays),
		ExpirationLTE: targetExpiration.AddDate(0, 0, params.DateWindowDays),
		StrikeGTE:     targetStrike * (1 - params.StrikeWindowPct),
		StrikeLTE:     targetStrike * (1 + params.StrikeWindowPct),
		// Max out results so the best candidate cannot be lost to pagination.
		Limit: s.limit,
	}

	candidates, err := s.searcher.SearchContracts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("contract search %s %s: %w", ticker, strategy, err)
	}

	if len(candidates) == 0 {
		s.logger.WithFields(map[string]interface{}{
			"ticker":   ticker,
			"strategy": string(strategy),
			"from":     query.ExpirationGTE.Format("2006-01-02"),
			"to":       query.ExpirationLTE.Format("2006-01-02"),
		}).Warn("No option candidates found")
		return nil, nil
	}

	best := s.pickBest(candidates, targetExpiration, targetStrike)

	return &contracts.SelectedContract{
		Ticker:       ticker,
		Strategy:     strategy,
		OptionSymbol: best.Symbol,
		Expiration:   best.Expiration,
		Strike:       best.Strike,
		ContractType: params.ContractType,
	}, nil
}

type scoredContract struct {
	contract   polygon.Contract
	score      float64
	strikeDist float64 // percent of target strike
	dateDist   float64 // days
}

// pickBest scores every candidate and selects the minimum.
func (s *Selector) pickBest(candidates []polygon.Contract, targetExpiration time.Time, targetStrike float64) polygon.Contract {
	best := s.score(candidates[0], targetExpiration, targetStrike)
	for _, c := range candidates[1:] {
		sc := s.score(c, targetExpiration, targetStrike)
		if betterThan(sc, best) {
			best = sc
		}
	}
	return best.contract
}

func (s *Selector) score(c polygon.Contract, targetExpiration time.Time, targetStrike float64) scoredContract {
	dateDist := math.Abs(c.Expiration.Sub(targetExpiration).Hours() / 24)
	strikeDist := math.Abs(c.Strike-targetStrike) / targetStrike * 100

	return scoredContract{
		contract:   c,
		score:      dateDist + s.strikeWeight*strikeDist,
		strikeDist: strikeDist,
		dateDist:   dateDist,
	}
}

// betterThan orders scored contracts: lower score wins; ties prefer the
// smaller strike distance, then the smaller date distance, then the
// lexically smaller symbol, so selection never depends on response order.
func betterThan(a, b scoredContract) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	if a.strikeDist != b.strikeDist {
		return a.strikeDist < b.strikeDist
	}
	if a.dateDist != b.dateDist {
		return a.dateDist < b.dateDist
	}
	return a.contract.Symbol < b.contract.Symbol
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
