package contracts

import "time"

// Ranked is one ticker's momentum ranking for a run, before the top-10
// slice and streak bookkeeping are applied.
type Ranked struct {
	Ticker          string
	CurrentReturn   float64
	LastWeekReturn  float64
	LastMonthReturn float64
	CurrentRank     int
	LastMonthRank   int
	RankChange      int // LastMonthRank - CurrentRank; positive = improving
}

// RankSnapshot is one persisted top-10 row, keyed by (cohort, ticker, date).
// Streak counts consecutive weekly appearances; StreakStart is the run date
// of the first appearance in the current streak.
type RankSnapshot struct {
	Cohort          string
	Ticker          string
	Date            time.Time
	CurrentReturn   float64
	LastWeekReturn  float64
	LastMonthReturn float64
	CurrentRank     int
	LastMonthRank   int
	RankChange      int
	Streak          int
	StreakStart     time.Time
}
