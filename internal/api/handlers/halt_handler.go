package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"optionscore/internal/service"
)

// HaltHandler manages operator-entered manual halts per underlying.
//
// Endpoints:
// - GET /api/v1/halts - list halt overrides
// - POST /api/v1/halts - halt an underlying
// - DELETE /api/v1/halts/{underlying} - resume an underlying
type HaltHandler struct {
	haltService *service.HaltService
}

// NewHaltHandler creates the handler.
func NewHaltHandler(haltService *service.HaltService) *HaltHandler {
	return &HaltHandler{haltService: haltService}
}

type haltRequest struct {
	Underlying string `json:"underlying"`
	Reason     string `json:"reason"`
}

type haltListResponse struct {
	Entries []haltEntryResponse `json:"entries"`
	Total   int                 `json:"total"`
}

type haltEntryResponse struct {
	ID         int    `json:"id"`
	Underlying string `json:"underlying"`
	Reason     string `json:"reason"`
	CreatedAt  string `json:"created_at"`
}

// GetHalts returns every manual halt.
//
// GET /api/v1/halts
func (h *HaltHandler) GetHalts(w http.ResponseWriter, r *http.Request) {
	entries, err := h.haltService.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get halt overrides")
		return
	}
	response := haltListResponse{
		Entries: make([]haltEntryResponse, 0, len(entries)),
		Total:   len(entries),
	}
	for _, e := range entries {
		response.Entries = append(response.Entries, haltEntryResponse{
			ID:         e.ID,
			Underlying: e.Underlying,
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	respondJSON(w, http.StatusOK, response)
}

// CreateHalt records a manual halt.
//
// POST /api/v1/halts
func (h *HaltHandler) CreateHalt(w http.ResponseWriter, r *http.Request) {
	var req haltRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	entry, err := h.haltService.Halt(req.Underlying, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrHaltUnderlyingEmpty):
			respondError(w, http.StatusBadRequest, "Underlying cannot be empty")
		case errors.Is(err, service.ErrHaltExists):
			respondError(w, http.StatusConflict, "Underlying is already halted")
		default:
			respondError(w, http.StatusInternalServerError, "Failed to create halt override")
		}
		return
	}
	respondJSON(w, http.StatusCreated, haltEntryResponse{
		ID:         entry.ID,
		Underlying: entry.Underlying,
		Reason:     entry.Reason,
		CreatedAt:  entry.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// DeleteHalt lifts a manual halt.
//
// DELETE /api/v1/halts/{underlying}
func (h *HaltHandler) DeleteHalt(w http.ResponseWriter, r *http.Request) {
	underlying := mux.Vars(r)["underlying"]
	err := h.haltService.Resume(underlying)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrHaltUnderlyingEmpty):
			respondError(w, http.StatusBadRequest, "Underlying cannot be empty")
		case errors.Is(err, service.ErrHaltNotFound):
			respondError(w, http.StatusNotFound, "Halt override not found")
		default:
			respondError(w, http.StatusInternalServerError, "Failed to delete halt override")
		}
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "Halt lifted"})
}
