package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/labforge/trackd/internal/auth"
	"github.com/labforge/trackd/internal/handlers"
	"github.com/labforge/trackd/internal/middleware"
	"github.com/labforge/trackd/internal/models"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	adminHandler *handlers.AdminHandler,
	notificationHandler *handlers.NotificationHandler,
	realtimeHandler http.Handler,
	tokenManager *auth.TokenManager,
	sessions auth.SessionValidator,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/login", authHandler.Login)

	// The realtime endpoint authenticates in-band after the upgrade, so
	// it sits outside the bearer middleware
	router.Get("/ws", realtimeHandler.ServeHTTP)

	// Protected routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager, sessions))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/logout-all", authHandler.LogoutAll)
		r.Post("/auth/change-password", authHandler.ChangePassword)
		r.Post("/auth/deactivate", authHandler.DeactivateAccount)

		r.Get("/notifications/unread-count", notificationHandler.UnreadCount)
		r.Post("/notifications/{id}/read", notificationHandler.MarkRead)

		// Admin-only projections
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/admin/login-attempts", adminHandler.ListLoginAttempts)
			r.Get("/admin/sessions", adminHandler.ListSessions)
		})
	})
}
