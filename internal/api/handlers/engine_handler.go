package handlers

import (
	"net/http"

	"optionscore/internal/models"
)

// EngineView is the read-only slice of the running engine the status
// surface exposes. The engine itself stays in its own package; the API only
// sees snapshots.
type EngineView interface {
	State() (state, reason string)
	Positions() []models.Position
	DailyState() models.DailyState
	Vix() float64
	DroppedTicks() int64
	SessionUUID() string
}

// EngineControl is the pause/resume control the API may drive.
type EngineControl interface {
	Pause(reason string) error
	Resume() error
}

// EngineHandler serves engine state and the pause/resume control.
//
// Endpoints:
// - GET /api/v1/engine/status - state, daily direction, VIX, positions
// - GET /api/v1/positions - open position snapshots
// - POST /api/v1/engine/pause - suspend new entries
// - POST /api/v1/engine/resume - resume entries
type EngineHandler struct {
	view    EngineView
	control EngineControl
}

// NewEngineHandler creates the handler. control may be nil (read-only).
func NewEngineHandler(view EngineView, control EngineControl) *EngineHandler {
	return &EngineHandler{view: view, control: control}
}

type engineStatusResponse struct {
	State        string            `json:"state"`
	Reason       string            `json:"reason,omitempty"`
	Daily        models.DailyState `json:"daily"`
	Vix          float64           `json:"vix"`
	OpenCount    int               `json:"open_positions"`
	DroppedTicks int64             `json:"dropped_ticks"`
	SessionUUID  string            `json:"session_uuid"`
}

// GetStatus returns the engine health snapshot.
//
// GET /api/v1/engine/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	state, reason := h.view.State()
	positions := h.view.Positions()
	respondJSON(w, http.StatusOK, engineStatusResponse{
		State:        state,
		Reason:       reason,
		Daily:        h.view.DailyState(),
		Vix:          h.view.Vix(),
		OpenCount:    len(positions),
		DroppedTicks: h.view.DroppedTicks(),
		SessionUUID:  h.view.SessionUUID(),
	})
}

// GetPositions returns open position snapshots.
//
// GET /api/v1/positions
func (h *EngineHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, SuccessResponse{Data: h.view.Positions()})
}

// Pause suspends new entries without touching open positions.
//
// POST /api/v1/engine/pause
func (h *EngineHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if h.control == nil {
		respondError(w, http.StatusNotImplemented, "Engine control not wired")
		return
	}
	if err := h.control.Pause("operator pause"); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to pause engine")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "Engine paused"})
}

// Resume re-enables entries.
//
// POST /api/v1/engine/resume
func (h *EngineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if h.control == nil {
		respondError(w, http.StatusNotImplemented, "Engine control not wired")
		return
	}
	if err := h.control.Resume(); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to resume engine")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "Engine resumed"})
}
