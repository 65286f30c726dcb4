package contracts

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a position or option leg.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Strategy identifies one of the three fixed option strategies attached to
// every tracked stock position.
type Strategy string

const (
	StrategyCall100d Strategy = "100d_Call"
	StrategyLEAP500d Strategy = "500d_LEAP"
	StrategyShortPut Strategy = "Short_Put"
)

// Strategies lists all strategies in the order legs are picked.
var Strategies = []Strategy{StrategyCall100d, StrategyLEAP500d, StrategyShortPut}

// TradeID derives the deterministic trade identifier from a ticker and its
// signal date.
func TradeID(ticker string, signalDate time.Time) string {
	return fmt.Sprintf("%s_%s", ticker, signalDate.Format("2006-01-02"))
}

// Position is one tracked hypothetical stock trade. Price and date fields
// are filled across runs as data becomes available; nil means unresolved,
// which is never an error.
type Position struct {
	TradeID    string
	Cohort     string
	Ticker     string
	SignalDate time.Time

	BuyDate     *time.Time
	BuyPrice    *float64
	SpyBuyPrice *float64

	DropDate     *time.Time
	SellDate     *time.Time
	SellPrice    *float64
	SpySellPrice *float64

	Status     Status
	UserAction string
}

// OptionLeg is one option contract tied to a position via TradeID.
// At most one leg exists per (TradeID, Strategy).
type OptionLeg struct {
	TradeID      string
	Strategy     Strategy
	OptionSymbol string
	Expiration   time.Time
	Strike       float64
	ContractType string

	EntryDate  *time.Time
	EntryPrice *float64
	ExitDate   *time.Time
	ExitPrice  *float64

	Status Status
}

// SelectedContract is the option contract chosen for one strategy on a new
// position.
type SelectedContract struct {
	Ticker       string
	Strategy     Strategy
	OptionSymbol string
	Expiration   time.Time
	Strike       float64
	ContractType string
}
