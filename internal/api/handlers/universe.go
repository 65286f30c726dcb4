package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

// UniverseHandler serves cohort membership and its change log.
type UniverseHandler struct {
	universe contracts.UniverseRepository
	logger   *logger.Logger
}

// NewUniverseHandler creates a new universe handler.
func NewUniverseHandler(universe contracts.UniverseRepository, log *logger.Logger) *UniverseHandler {
	return &UniverseHandler{universe: universe, logger: log}
}

// MemberItem is one cohort constituent in API form.
type MemberItem struct {
	Symbol string  `json:"symbol"`
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ChangeItem is one membership change in API form.
type ChangeItem struct {
	Date   string `json:"date"`
	Action string `json:"action"`
	Symbol string `json:"symbol"`
}

// GetMembers returns the cohort's current membership.
// GET /api/universe/{cohort}
func (h *UniverseHandler) GetMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cohort := mux.Vars(r)["cohort"]

	if !validCohort(cohort) {
		respondError(w, http.StatusNotFound, "Unknown cohort: "+cohort)
		return
	}

	members, err := h.universe.GetCohort(ctx, cohort)
	if err != nil {
		h.logger.WithError(err).WithField("cohort", cohort).Error("Failed to load members")
		respondError(w, http.StatusInternalServerError, "Failed to load members")
		return
	}

	items := make([]MemberItem, 0, len(members))
	for _, m := range members {
		items = append(items, MemberItem{Symbol: m.Symbol, Name: m.Name, Weight: m.Weight})
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

// GetChanges returns the cohort's membership change log, newest first.
// GET /api/universe/{cohort}/changes
func (h *UniverseHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cohort := mux.Vars(r)["cohort"]

	if !validCohort(cohort) {
		respondError(w, http.StatusNotFound, "Unknown cohort: "+cohort)
		return
	}

	changes, err := h.universe.ChangeLog(ctx, cohort)
	if err != nil {
		h.logger.WithError(err).WithField("cohort", cohort).Error("Failed to load change log")
		respondError(w, http.StatusInternalServerError, "Failed to load change log")
		return
	}

	items := make([]ChangeItem, 0, len(changes))
	for _, c := range changes {
		items = append(items, ChangeItem{
			Date:   c.Date.Format("2006-01-02"),
			Action: c.Action,
			Symbol: c.Symbol,
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
