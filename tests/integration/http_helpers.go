package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/labforge/trackd/internal/auth"
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

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server   *httptest.Server
	DB       *database.DB
	Config   *config.Config
	Registry *realtime.Registry
	Pipeline *events.Pipeline
	logger   *slog.Logger
}

// NewTestServer initializes a complete HTTP server against a real database
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:             "test-secret-32-characters-long-for-testing",
			SessionLifetime:       24 * time.Hour,
			SessionIdleTimeout:    2 * time.Hour,
			MaxConcurrentSessions: 3,
			MaxLoginAttempts:      5,
			LockoutDuration:       30 * time.Minute,
			LoginAttemptRetention: 30 * 24 * time.Hour,
			CleanupInterval:       1 * time.Hour,
		},
		Realtime: config.RealtimeConfig{
			SendBufferSize: 32,
			WriteTimeout:   5 * time.Second,
			PongTimeout:    30 * time.Second,
			PingInterval:   25 * time.Second,
		},
		Server: config.ServerConfig{
			Port: "0",
			Env:  "test",
		},
	}

	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	loginAttemptRepo := repositories.NewLoginAttemptRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	notificationRepo := repositories.NewNotificationRepository(db)
	activityLogRepo := repositories.NewActivityLogRepository(db)

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

	registry := realtime.NewRegistry(logger)
	roomRouter := realtime.NewRoomRouter(projectRepo)
	broadcaster := realtime.NewBroadcaster(registry, logger)

	realtimeHandler := realtime.NewHandler(tokenManager, sessionService, userRepo, registry, roomRouter, broadcaster, realtime.Config{
		SendBufferSize: cfg.Realtime.SendBufferSize,
		WriteTimeout:   cfg.Realtime.WriteTimeout,
		PongTimeout:    cfg.Realtime.PongTimeout,
		PingInterval:   cfg.Realtime.PingInterval,
	}, logger)

	pipeline := events.NewPipeline(progressService, activityLogRepo, notificationRepo, broadcaster, logger)

	authHandler := handlers.NewAuthHandler(authService, nil)
	adminHandler := handlers.NewAdminHandler(adminService)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, pipeline)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)

	routes.RegisterRoutes(r, authHandler, adminHandler, notificationHandler, realtimeHandler, tokenManager, sessionService)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:   server,
		DB:       db,
		Config:   cfg,
		Registry: registry,
		Pipeline: pipeline,
		logger:   logger,
	}
}

// Close shuts down the test server and drops realtime connections
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.Registry != nil {
		ts.Registry.CloseAll()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with a bearer token
func (ts *TestServer) RequestWithAuth(method, path, token string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}
	return ts.Request(method, path, body, headers)
}

// WSURL returns the websocket URL of the realtime endpoint
func (ts *TestServer) WSURL() string {
	return "ws" + ts.Server.URL[len("http"):] + "/ws"
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokenFromResponse extracts the bearer token from a login response
func ExtractTokenFromResponse(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	token, _ := authResp["token"].(string)
	return token, nil
}

// GetErrorMessage extracts error message from an error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
