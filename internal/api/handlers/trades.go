package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/momentum/internal/contracts"
	"github.com/wonny/momentum/pkg/logger"
)

// TradesHandler serves the hypothetical trade ledger.
type TradesHandler struct {
	positions contracts.PositionRepository
	legs      contracts.LegRepository
	logger    *logger.Logger
}

// NewTradesHandler creates a new trades handler.
func NewTradesHandler(positions contracts.PositionRepository, legs contracts.LegRepository, log *logger.Logger) *TradesHandler {
	return &TradesHandler{positions: positions, legs: legs, logger: log}
}

// PositionItem is one ledger position in API form. Unresolved fills render
// as empty strings and null prices.
type PositionItem struct {
	TradeID    string `json:"trade_id"`
	Cohort     string `json:"cohort"`
	Ticker     string `json:"ticker"`
	SignalDate string `json:"signal_date"`

	BuyDate     string   `json:"buy_date"`
	BuyPrice    *float64 `json:"buy_price"`
	SpyBuyPrice *float64 `json:"spy_buy_price"`

	DropDate     string   `json:"drop_date"`
	SellDate     string   `json:"sell_date"`
	SellPrice    *float64 `json:"sell_price"`
	SpySellPrice *float64 `json:"spy_sell_price"`

	Status     string `json:"status"`
	UserAction string `json:"user_action"`
}

// OptionLegItem is one option leg in API form.
type OptionLegItem struct {
	TradeID      string  `json:"trade_id"`
	Strategy     string  `json:"strategy"`
	OptionSymbol string  `json:"option_symbol"`
	Expiration   string  `json:"expiration"`
	Strike       float64 `json:"strike"`
	ContractType string  `json:"contract_type"`

	EntryDate  string   `json:"entry_date"`
	EntryPrice *float64 `json:"entry_price"`
	ExitDate   string   `json:"exit_date"`
	ExitPrice  *float64 `json:"exit_price"`

	Status string `json:"status"`
}

// GetPositions returns the ledger, optionally filtered by status.
// GET /api/positions?status=OPEN|CLOSED
func (h *TradesHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	all, err := h.positions.All(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load positions")
		respondError(w, http.StatusInternalServerError, "Failed to load positions")
		return
	}

	statusFilter := strings.ToUpper(r.URL.Query().Get("status"))

	items := make([]PositionItem, 0, len(all))
	for _, p := range all {
		if statusFilter != "" && string(p.Status) != statusFilter {
			continue
		}
		items = append(items, positionItem(p))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"count": len(items),
			"items": items,
		},
	})
}

// GetPosition returns one position and its option legs.
// GET /api/positions/{tradeID}
func (h *TradesHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tradeID := mux.Vars(r)["tradeID"]

	p, err := h.positions.Get(ctx, tradeID)
	if err != nil {
		h.logger.WithError(err).WithField("trade", tradeID).Error("Failed to load position")
		respondError(w, http.StatusInternalServerError, "Failed to load position")
		return
	}
	if p == nil {
		respondError(w, http.StatusNotFound, "Unknown trade: "+tradeID)
		return
	}

	legs, err := h.legs.ByTradeID(ctx, tradeID)
	if err != nil {
		h.logger.WithError(err).WithField("trade", tradeID).Error("Failed to load legs")
		respondError(w, http.StatusInternalServerError, "Failed to load option legs")
		return
	}

	legItems := make([]OptionLegItem, 0, len(legs))
	for _, l := range legs {
		legItems = append(legItems, legItem(l))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"position": positionItem(*p),
			"options":  legItems,
		},
	})
}

// GetOptionLegs returns the full option ledger.
// GET /api/options
func (h *TradesHandler) GetOptionLegs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	legs, err := h.legs.All(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load option legs")
		respondError(w, http.StatusInternalServerError, "Failed to load option legs")
		return
	}

	items := make([]OptionLegItem, 0, len(legs))
	for _, l := range legs {
		items = append(items, legItem(l))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"count": len(items),
			"items": items,
		},
	})
}

// GetPerformance returns the ledger's aggregate performance against the
// benchmark.
// GET /api/performance
func (h *TradesHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	all, err := h.positions.All(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load positions")
		respondError(w, http.StatusInternalServerError, "Failed to load positions")
		return
	}

	legs, err := h.legs.All(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load option legs")
		respondError(w, http.StatusInternalServerError, "Failed to load option legs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    Summarize(all, legs),
	})
}

func positionItem(p contracts.Position) PositionItem {
	return PositionItem{
		TradeID:      p.TradeID,
		Cohort:       p.Cohort,
		Ticker:       p.Ticker,
		SignalDate:   p.SignalDate.Format("2006-01-02"),
		BuyDate:      formatDate(p.BuyDate),
		BuyPrice:     p.BuyPrice,
		SpyBuyPrice:  p.SpyBuyPrice,
		DropDate:     formatDate(p.DropDate),
		SellDate:     formatDate(p.SellDate),
		SellPrice:    p.SellPrice,
		SpySellPrice: p.SpySellPrice,
		Status:       string(p.Status),
		UserAction:   p.UserAction,
	}
}

func legItem(l contracts.OptionLeg) OptionLegItem {
	return OptionLegItem{
		TradeID:      l.TradeID,
		Strategy:     string(l.Strategy),
		OptionSymbol: l.OptionSymbol,
		Expiration:   l.Expiration.Format("2006-01-02"),
		Strike:       l.Strike,
		ContractType: l.ContractType,
		EntryDate:    formatDate(l.EntryDate),
		EntryPrice:   l.EntryPrice,
		ExitDate:     formatDate(l.ExitDate),
		ExitPrice:    l.ExitPrice,
		Status:       string(l.Status),
	}
}
