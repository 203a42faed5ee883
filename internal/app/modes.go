package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwkoh/campustrade/internal/server"
	"github.com/jwkoh/campustrade/internal/server/handler"
	"github.com/jwkoh/campustrade/internal/server/ws"
)

// ServerMode runs the HTTP and WebSocket API without the background sweeper.
// Auctions still finalize lazily on read, so this mode is safe to run alone;
// it just leaves unvisited expired auctions unresolved until a sweep node or
// full-mode instance picks them up.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SweepMode runs only the auction sweeper and the daily archive export. It is
// meant for a dedicated background worker deployment.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Sweeper.Run(ctx)
	})
	return g.Wait()
}

// FullMode runs the API server and the sweeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	g.Go(func() error {
		return deps.Sweeper.Run(ctx)
	})
	return g.Wait()
}

// startHTTPServer adds the WebSocket hub and the HTTP server goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(deps.Pingers, a.logger),
		Listings:      handler.NewListingHandler(deps.Listings, a.logger),
		Sales:         handler.NewSaleHandler(deps.Ledger, deps.Sales, a.logger),
		Schedules:     handler.NewScheduleHandler(deps.Schedules, a.logger),
		Notifications: handler.NewNotificationHandler(deps.Notifier, a.logger),
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
