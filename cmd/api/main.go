package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/labforge/trackd/internal/auth"
	"github.com/labforge/trackd/internal/background"
	"github.com/labforge/trackd/internal/config"
	"github.com/labforge/trackd/internal/database"
	"github.com/labforge/trackd/internal/events"
	"github.com/labforge/trackd/internal/handlers"
	middlewareCustom "github.com/labforge/trackd/internal/middleware"
	"github.com/labforge/trackd/internal/realtime"
	"github.com/labforge/trackd/internal/repositories"
	"github.com/labforge/trackd/internal/routes"
	"github.com/labforge/trackd/internal/services"
	pkglogger "github.com/labforge/trackd/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).
			Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	activityLogRepo := repositories.NewActivityLogRepository(db)

	// Initialize auth
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionLifetime)

	lockoutService := services.NewLockoutService(loginAttemptRepo, services.LockoutConfig{
		MaxAttempts: cfg.Auth.MaxLoginAttempts,
		Duration:    cfg.Auth.LockoutDuration,
	}, logger)

	sessionService := services.NewSessionService(sessionRepo, services.SessionConfig{
		Lifetime:      cfg.Auth.SessionLifetime,
		IdleTimeout:   cfg.Auth.SessionIdleTimeout,
		MaxConcurrent: cfg.Auth.MaxConcurrentSessions,
	}, logger, auditLogger)

	authService := services.NewAuthService(userRepo, sessionService, lockoutService, tokenManager, logger, auditLogger)
	adminService := services.NewAdminService(loginAttemptRepo, sessionRepo, logger)
	progressService := services.NewProgressService(projectRepo, logger)

	// Initialize realtime layer
	registry := realtime.NewRegistry(logger)
	roomRouter := realtime.NewRoomRouter(projectRepo)
	broadcaster := realtime.NewBroadcaster(registry, logger)

	realtimeHandler := realtime.NewHandler(tokenManager, sessionService, userRepo, registry, roomRouter, broadcaster, realtime.Config{
		SendBufferSize: cfg.Realtime.SendBufferSize,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		PongTimeout:    cfg.Realtime.PongTimeout,
		PingInterval:   cfg.Realtime.PingInterval,
	}, logger)

	// Domain event pipeline
	pipeline := events.NewPipeline(progressService, activityLogRepo, notificationRepo, broadcaster, logger)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, cfg.Server.TrustedProxies)
	adminHandler := handlers.NewAdminHandler(adminService)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, pipeline)

	// Cleanup task for expired sessions and aged login attempts
	cleanupManager := background.NewCleanupManager(
		sessionRepo,
		loginAttemptRepo,
		logger,
		cfg.Auth.CleanupInterval,
		cfg.Auth.LoginAttemptRetention,
	)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)

	// Register routes
	routes.RegisterRoutes(router, authHandler, adminHandler, notificationHandler, realtimeHandler, tokenManager, sessionService)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Drop remaining realtime connections after in-flight HTTP requests
	// have drained
	registry.CloseAll()

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
