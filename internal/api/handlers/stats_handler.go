package handlers

import (
	"net/http"
	"strconv"
	"time"

	"optionscore/internal/service"
)

// StatsHandler serves performance aggregates and trade history.
//
// Endpoints:
// - GET /api/v1/stats - full aggregate summary
// - GET /api/v1/trades?limit=N - recent closed trades
// - GET /api/v1/trades/day?date=2006-01-02 - one day's trades record
type StatsHandler struct {
	statsService *service.StatsService
}

// NewStatsHandler creates the handler.
func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// GetStats returns the aggregate summary.
//
// GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: stats})
}

// GetTrades returns recent closed trades.
//
// GET /api/v1/trades
func (h *StatsHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = v
	}
	var trades interface{}
	var err error
	if underlying := r.URL.Query().Get("underlying"); underlying != "" {
		trades, err = h.statsService.TradesForUnderlying(underlying, limit)
	} else {
		trades, err = h.statsService.RecentTrades(limit)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get trades")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: trades})
}

// GetTradesForDay returns one trading day's record.
//
// GET /api/v1/trades/day?date=2006-01-02
func (h *StatsHandler) GetTradesForDay(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date, want YYYY-MM-DD")
		return
	}
	trades, err := h.statsService.TradesForDay(day)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get trades")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: trades})
}
