package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

type fakeSnapshots struct {
	snaps []contracts.RankSnapshot
	err   error
}

func (f *fakeSnapshots) LatestByCohort(context.Context, string) ([]contracts.RankSnapshot, error) {
	return f.snaps, f.err
}

func getTopPicks(t *testing.T, h *RankingHandler, cohort string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/top10/"+cohort, nil)
	req = mux.SetURLVars(req, map[string]string{"cohort": cohort})
	rec := httptest.NewRecorder()
	h.GetTopPicks(rec, req)
	return rec
}

func TestGetTopPicks(t *testing.T) {
	date := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	h := NewRankingHandler(&fakeSnapshots{snaps: []contracts.RankSnapshot{
		{Ticker: "NVDA", Date: date, CurrentReturn: 1.2, CurrentRank: 1, LastMonthRank: 2, RankChange: 1, Streak: 3, StreakStart: date.AddDate(0, 0, -14)},
		{Ticker: "AAPL", Date: date, CurrentReturn: 0.4, CurrentRank: 2, LastMonthRank: 2, Streak: 1, StreakStart: date},
	}}, logger.NewNop())

	rec := getTopPicks(t, h, contracts.CohortMegacap)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Cohort string        `json:"cohort"`
			Count  int           `json:"count"`
			Items  []TopPickItem `json:"items"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.True(t, body.Success)
	assert.Equal(t, contracts.CohortMegacap, body.Data.Cohort)
	require.Len(t, body.Data.Items, 2)
	assert.Equal(t, "NVDA", body.Data.Items[0].Ticker)
	assert.Equal(t, "2025-06-09", body.Data.Items[0].Date)
	assert.Equal(t, 3, body.Data.Items[0].Streak)
	assert.Equal(t, "2025-05-26", body.Data.Items[0].StreakStart)
}

func TestGetTopPicksUnknownCohort(t *testing.T) {
	h := NewRankingHandler(&fakeSnapshots{}, logger.NewNop())
	rec := getTopPicks(t, h, "russell2000")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTopPicksRepositoryError(t *testing.T) {
	h := NewRankingHandler(&fakeSnapshots{err: errors.New("db down")}, logger.NewNop())
	rec := getTopPicks(t, h, contracts.CohortSP500)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
