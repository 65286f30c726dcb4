package contracts

import "time"

// Cohort names tracked by the pipeline.
const (
	CohortMegacap = "megacap"
	CohortSP500   = "sp500"
	CohortSP400   = "sp400"
)

// Cohorts lists all cohorts in processing order.
var Cohorts = []string{CohortMegacap, CohortSP500, CohortSP400}

// Member is one constituent of a cohort. Membership is decided by an
// external collaborator; the core only reads whatever set is current.
type Member struct {
	Symbol string
	Name   string
	Weight float64
}

// UniverseChange is one append-only change-log entry.
type UniverseChange struct {
	Date   time.Time
	Cohort string
	Action string // "ADDED" or "DROPPED"
	Symbol string
}
