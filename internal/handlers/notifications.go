package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/labforge/trackd/internal/auth"
	"github.com/labforge/trackd/internal/models"
	pkghttp "github.com/labforge/trackd/pkg/http"
)

// NotificationStoreInterface defines the notification persistence contract
type NotificationStoreInterface interface {
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// UnreadCountPublisher pushes a refreshed unread count to the identity's
// realtime connections after a mark-read
type UnreadCountPublisher interface {
	NotificationRead(ctx context.Context, userID string)
}

// NotificationHandler handles notification HTTP requests
type NotificationHandler struct {
	store     NotificationStoreInterface
	publisher UnreadCountPublisher
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(store NotificationStoreInterface, publisher UnreadCountPublisher) *NotificationHandler {
	return &NotificationHandler{
		store:     store,
		publisher: publisher,
	}
}

// MarkRead handles POST /notifications/{id}/read. Only the recipient may
// mark a notification read; a foreign id reads as not found so ids are
// not probeable.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "missing notification id")
		return
	}

	notification, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Notification not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if notification.UserID != claims.UserID {
		pkghttp.WriteNotFound(w, "Notification not found")
		return
	}

	if err := h.store.MarkRead(r.Context(), id); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	// Push the refreshed count to any live connections
	h.publisher.NotificationRead(r.Context(), claims.UserID)

	w.WriteHeader(http.StatusNoContent)
}

// UnreadCount handles GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	count, err := h.store.CountUnread(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"unread_count": count})
}
