// Package server hosts the HTTP + WebSocket API that fronts the maker
// sessions, the execution gateway, and the event stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quantpulse/makerbot/internal/ratelimit"
	"github.com/quantpulse/makerbot/internal/server/handler"
	"github.com/quantpulse/makerbot/internal/server/middleware"
	"github.com/quantpulse/makerbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, authentication is disabled
	RequestsPerMin int    // per-client API rate cap; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Sessions *handler.SessionHandler
	Accounts *handler.AccountHandler
	ExecLog  *handler.ExecLogHandler
}

// Server is the headless HTTP + WebSocket API server for the maker bot.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub and the Prometheus scrape endpoint.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Session control endpoints.
	mux.HandleFunc("GET /api/sessions", handlers.Sessions.ListSessions)
	mux.HandleFunc("POST /api/sessions/{uid}/start", handlers.Sessions.StartSession)
	mux.HandleFunc("POST /api/sessions/{uid}/stop", handlers.Sessions.StopSession)

	// Account endpoints.
	mux.HandleFunc("GET /api/accounts/{uid}/balance", handlers.Accounts.GetBalance)
	mux.HandleFunc("GET /api/accounts/{uid}/positions", handlers.Accounts.GetPositions)
	mux.HandleFunc("POST /api/accounts/{uid}/positions/{symbol}/close", handlers.Accounts.ClosePosition)

	// Execution log endpoint.
	mux.HandleFunc("GET /api/accounts/{uid}/log", handlers.ExecLog.ListEntries)

	// Prometheus scrape endpoint.
	mux.Handle("GET /metrics", promhttp.Handler())

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply per-client rate limiting when configured.
	if limiter != nil && cfg.RequestsPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RequestsPerMin)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
