// Package app provides the top-level application lifecycle management for the
// ledger service. It wires together all dependencies (store, event log,
// redis, value transfer, archival, HTTP server) and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/splitledger/splitledger/internal/config"
	"github.com/splitledger/splitledger/internal/server"
	"github.com/splitledger/splitledger/internal/server/handler"
	"github.com/splitledger/splitledger/internal/server/ws"
)

// writerLockKey guards against two instances mutating the same ledger.
const writerLockKey = "ledger:writer"

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 15 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server and background workers, and blocks until the context is cancelled.
// On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("storage", a.cfg.Storage.Mode),
		slog.String("transfer", a.cfg.Transfer.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// Only one instance may mutate the ledger. The lock has no TTL; a
	// crashed instance's lock must be cleared manually before restart.
	if deps.Locks != nil {
		unlock, err := deps.Locks.Acquire(ctx, writerLockKey, 0)
		if err != nil {
			return fmt.Errorf("app: acquire writer lock: %w", err)
		}
		a.closers = append(a.closers, unlock)
		a.logger.Info("writer lock acquired", slog.String("key", writerLockKey))
	}

	// WebSocket hub only runs when live fan-out is available.
	var hub *ws.Hub
	if deps.Bus != nil {
		hub = ws.NewHub(deps.Bus, a.logger)
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(deps.Store, a.logger),
		Groups:      handler.NewGroupHandler(deps.Ledger, a.logger),
		Expenses:    handler.NewExpenseHandler(deps.Ledger, a.logger),
		Balances:    handler.NewBalanceHandler(deps.Ledger, a.logger),
		Settlements: handler.NewSettlementHandler(deps.Ledger, a.logger),
		Events:      handler.NewEventsHandler(deps.EventLog, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, deps.Metrics, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if hub != nil {
		g.Go(func() error {
			if err := hub.Run(gctx); errors.Is(err, context.Canceled) {
				return nil
			} else if err != nil {
				return fmt.Errorf("app: websocket hub: %w", err)
			}
			return nil
		})
	}

	if deps.Exporter != nil {
		g.Go(func() error {
			err := deps.Exporter.RunPeriodic(gctx, a.cfg.Archive.Interval.Duration)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
