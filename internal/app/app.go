// Package app provides the top-level application lifecycle for the maker bot.
// It wires together all dependencies (stores, caches, connectors, gateway,
// sessions, and notifications) and runs the serving loop until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/makerbot/internal/config"
	"github.com/quantpulse/makerbot/internal/notify"
	"github.com/quantpulse/makerbot/internal/server"
	"github.com/quantpulse/makerbot/internal/server/handler"
	"github.com/quantpulse/makerbot/internal/server/ws"
)

// shutdownGrace bounds how long teardown may take once the context ends.
const shutdownGrace = 15 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
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
// server, websocket hub, notification bridge, and archiver, and blocks until
// the context is cancelled. On return it runs all registered cleanup
// functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)

	// WebSocket hub fanning the event bus out to dashboards.
	hub := ws.NewHub(deps.EventBus, a.logger)
	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && err != context.Canceled {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	// HTTP API.
	if a.cfg.Server.Enabled {
		handlers := server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Sessions: handler.NewSessionHandler(deps.Sessions, a.logger),
			Accounts: handler.NewAccountHandler(deps.Gateway, a.logger),
			ExecLog:  handler.NewExecLogHandler(deps.ExecLog, a.logger),
		}
		srv := server.NewServer(server.Config{
			Port:           a.cfg.Server.Port,
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			APIKey:         a.cfg.Server.APIKey,
			RequestsPerMin: a.cfg.Server.RequestsPerMin,
		}, handlers, hub, deps.Limiter, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Operator notifications.
	if deps.Notifier != nil {
		bridge := notify.NewBridge(deps.EventBus, deps.Notifier, a.logger)
		g.Go(func() error {
			if err := bridge.Run(gctx); err != nil && err != context.Canceled {
				a.logger.Warn("notify bridge stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Periodic execution log archival.
	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		g.Go(func() error {
			deps.Archiver.Run(gctx, a.cfg.Archive.Interval.Duration, retention)
			return nil
		})
	}

	// Stop all quoting sessions when the context ends so open quotes are
	// cancelled before connectors close.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := deps.Sessions.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("session shutdown", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return ctx.Err()
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
