package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/splitledger/splitledger/internal/metrics"
	"github.com/splitledger/splitledger/internal/server/handler"
	"github.com/splitledger/splitledger/internal/server/middleware"
	"github.com/splitledger/splitledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Rate limiting applies per client IP when a limiter is wired in.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Groups      *handler.GroupHandler
	Expenses    *handler.ExpenseHandler
	Balances    *handler.BalanceHandler
	Settlements *handler.SettlementHandler
	Events      *handler.EventsHandler
}

// Server is the HTTP + WebSocket API server for the ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, caller identity, rate
// limiting) and attaches the WebSocket hub and Prometheus handler.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter middleware.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Group endpoints.
	mux.HandleFunc("POST /api/groups", handlers.Groups.CreateGroup)
	mux.HandleFunc("GET /api/groups", handlers.Groups.ListGroups)
	mux.HandleFunc("GET /api/groups/{id}", handlers.Groups.GetGroup)
	mux.HandleFunc("POST /api/groups/{id}/members", handlers.Groups.AddMember)

	// Expense endpoints.
	mux.HandleFunc("POST /api/expenses", handlers.Expenses.CreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", handlers.Expenses.GetExpense)
	mux.HandleFunc("GET /api/expenses/{id}/share", handlers.Expenses.GetShare)

	// Balance endpoints.
	mux.HandleFunc("GET /api/balances", handlers.Balances.GetBalance)
	mux.HandleFunc("GET /api/balances/total", handlers.Balances.GetTotalBalance)

	// Settlement endpoints.
	mux.HandleFunc("POST /api/settlements", handlers.Settlements.Settle)
	mux.HandleFunc("POST /api/settlements/cross", handlers.Settlements.SettleCross)

	// Event log endpoint.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	// Prometheus metrics endpoint.
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Record request counts and latency closest to the mux so the route
	// pattern is available.
	if m != nil {
		h = middleware.Metrics(m)(h)
	}

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Resolve the caller address from the X-Caller-Address header.
	h = middleware.Caller()(h)

	// Apply rate limiting if a limiter is wired in.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
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
