package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

// SnapshotSource serves the latest persisted top-pick snapshot per cohort.
type SnapshotSource interface {
	LatestByCohort(ctx context.Context, cohort string) ([]contracts.RankSnapshot, error)
}

// RankingHandler serves weekly top-pick snapshots.
type RankingHandler struct {
	snaps  SnapshotSource
	logger *logger.Logger
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(snaps SnapshotSource, log *logger.Logger) *RankingHandler {
	return &RankingHandler{snaps: snaps, logger: log}
}

// TopPickItem is one row of a cohort's top-pick snapshot.
type TopPickItem struct {
	Ticker          string  `json:"ticker"`
	Date            string  `json:"date"`
	CurrentReturn   float64 `json:"current_return"`
	LastWeekReturn  float64 `json:"last_week_return"`
	LastMonthReturn float64 `json:"last_month_return"`
	CurrentRank     int     `json:"current_rank"`
	LastMonthRank   int     `json:"last_month_rank"`
	RankChange      int     `json:"rank_change"`
	Streak          int     `json:"streak"`
	StreakStart     string  `json:"streak_start"`
}

// GetTopPicks returns the cohort's most recent top-pick snapshot.
// GET /api/top10/{cohort}
func (h *RankingHandler) GetTopPicks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cohort := mux.Vars(r)["cohort"]

	if !validCohort(cohort) {
		respondError(w, http.StatusNotFound, "Unknown cohort: "+cohort)
		return
	}

	snaps, err := h.snaps.LatestByCohort(ctx, cohort)
	if err != nil {
		h.logger.WithError(err).WithField("cohort", cohort).Error("Failed to load top picks")
		respondError(w, http.StatusInternalServerError, "Failed to load top picks")
		return
	}

	items := make([]TopPickItem, 0, len(snaps))
	for _, s := range snaps {
		items = append(items, TopPickItem{
			Ticker:          s.Ticker,
			Date:            s.Date.Format("2006-01-02"),
			CurrentReturn:   s.CurrentReturn,
			LastWeekReturn:  s.LastWeekReturn,
			LastMonthReturn: s.LastMonthReturn,
			CurrentRank:     s.CurrentRank,
			LastMonthRank:   s.LastMonthRank,
			RankChange:      s.RankChange,
			Streak:          s.Streak,
			StreakStart:     s.StreakStart.Format("2006-01-02"),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"cohort": cohort,
			"count":  len(items),
			"items":  items,
		},
	})
}

func validCohort(cohort string) bool {
	for _, c := range contracts.Cohorts {
		if c == cohort {
			return true
		}
	}
	return false
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
