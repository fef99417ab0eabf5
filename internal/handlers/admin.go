package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labforge/trackd/internal/models"
	pkghttp "github.com/labforge/trackd/pkg/http"
)

// AdminServiceInterface defines the admin projection contract
type AdminServiceInterface interface {
	ListLoginAttempts(ctx context.Context, filter models.LoginAttemptFilter) ([]*models.LoginAttempt, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]*models.Session, error)
}

// AdminHandler serves the read-only admin projections over the login
// attempt ledger and the session store
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// ListLoginAttempts handles GET /admin/login-attempts
// Query params: email, ip, success, from, to, limit, offset.
func (h *AdminHandler) ListLoginAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.LoginAttemptFilter{
		Email:     q.Get("email"),
		IPAddress: q.Get("ip"),
		Limit:     parseLimit(q.Get("limit")),
		Offset:    parseOffset(q.Get("offset")),
	}

	if s := q.Get("success"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			pkghttp.WriteBadRequest(w, "success must be true or false")
			return
		}
		filter.Success = &v
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		pkghttp.WriteBadRequest(w, "from must be RFC 3339")
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		pkghttp.WriteBadRequest(w, "to must be RFC 3339")
		return
	}

	attempts, err := h.service.ListLoginAttempts(r.Context(), filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list login attempts")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"login_attempts": attempts,
		"count":          len(attempts),
	})
}

// ListSessions handles GET /admin/sessions
// Query params: user_id, ip, active, from, to, limit, offset.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.SessionFilter{
		UserID:    q.Get("user_id"),
		IPAddress: q.Get("ip"),
		Limit:     parseLimit(q.Get("limit")),
		Offset:    parseOffset(q.Get("offset")),
	}

	if a := q.Get("active"); a != "" {
		v, err := strconv.ParseBool(a)
		if err != nil {
			pkghttp.WriteBadRequest(w, "active must be true or false")
			return
		}
		filter.ActiveOnly = v
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		pkghttp.WriteBadRequest(w, "from must be RFC 3339")
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		pkghttp.WriteBadRequest(w, "to must be RFC 3339")
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), filter)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list sessions")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func parseLimit(s string) int {
	limit := 50
	if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
		limit = n
	}
	return limit
}

func parseOffset(s string) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return 0
}

func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
