package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"optionscore/internal/service"
)

// SettingsHandler serves the runtime-adjustable engine settings.
//
// Endpoints:
// - GET /api/v1/settings - current settings
// - PATCH /api/v1/settings - partial update
type SettingsHandler struct {
	settingsService *service.SettingsService
}

// NewSettingsHandler creates the handler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetSettings returns the current settings.
//
// GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get settings")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: settings})
}

// UpdateSettings applies a partial update.
//
// PATCH /api/v1/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	settings, err := h.settingsService.UpdateSettings(&req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMaxConcurrentTrades) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: settings})
}
