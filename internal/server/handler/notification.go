package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/server/middleware"
)

// NotificationService defines the inbox operations the handler exposes.
type NotificationService interface {
	List(ctx context.Context, userID string, unreadOnly bool, opts domain.ListOpts) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	notifications NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

type notificationResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	SubjectID string    `json:"subject_id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// ListNotifications returns the caller's notifications, newest first.
// GET /api/notifications?unread=true
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	unreadOnly := r.URL.Query().Get("unread") == "true"
	ns, err := h.notifications.List(r.Context(), userID, unreadOnly, parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := make([]notificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationResponse{
			ID:        n.ID,
			Kind:      string(n.Kind),
			SubjectID: n.SubjectID,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": out})
}

// MarkRead flags one of the caller's notifications as read.
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	id := r.PathValue("id")
	if err := h.notifications.MarkRead(r.Context(), id, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "read",
		"id":     id,
	})
}

// UnreadCount returns the caller's unread notification count.
// GET /api/notifications/unread_count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	n, err := h.notifications.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
}
