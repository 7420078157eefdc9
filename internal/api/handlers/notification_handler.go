package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"optionscore/internal/service"
)

// NotificationHandler serves the engine's notification journal.
//
// Endpoints:
// - GET /api/v1/notifications?limit=N&types=ENTRY,EXIT - list notifications
// - DELETE /api/v1/notifications - clear the journal
type NotificationHandler struct {
	notificationService *service.NotificationService
}

// NewNotificationHandler creates the handler.
func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GetNotifications returns recent notifications, optionally filtered by type.
//
// GET /api/v1/notifications
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = v
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				types = append(types, strings.ToUpper(t))
			}
		}
	}

	notifications, err := h.notificationService.ByTypes(types, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get notifications")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Data: notifications})
}

// ClearNotifications empties the journal.
//
// DELETE /api/v1/notifications
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.Clear(); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to clear notifications")
		return
	}
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "Notifications cleared"})
}
