package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/factorhub/marketplace/internal/api/middleware"
	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/factorhub/marketplace/internal/models"
	"github.com/go-chi/chi/v5"
)

// NotificationHandler serves the in-app bell.
type NotificationHandler struct {
	svc    *marketplace.Service
	logger *slog.Logger
}

// NewNotificationHandler creates a new notification handler.
func NewNotificationHandler(svc *marketplace.Service, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// List handles GET /v1/notifications?unread=true.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteBadRequest(w, r, "unread must be a boolean")
			return
		}
		unreadOnly = b
	}

	actor := middleware.GetActor(r.Context())
	items, err := h.svc.ListNotifications(r.Context(), actor, unreadOnly)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to list notifications", "user_id", actor.UserID)
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	WriteJSON(w, http.StatusOK, items)
}

// MarkRead handles POST /v1/notifications/{notificationID}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "notificationID")
	if err := h.svc.MarkNotificationRead(r.Context(), middleware.GetActor(r.Context()), id); err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to mark notification read", "notification_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
