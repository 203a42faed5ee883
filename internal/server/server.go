// Package server exposes the sale engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/server/handler"
	"github.com/jwkoh/campustrade/internal/server/middleware"
	"github.com/jwkoh/campustrade/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   int    // requests per second per client IP; 0 disables
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Listings      *handler.ListingHandler
	Sales         *handler.SaleHandler
	Schedules     *handler.ScheduleHandler
	Notifications *handler.NotificationHandler
}

// Server is the HTTP + WebSocket API server for the marketplace engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// (rate limit, CORS, logging, auth, identity) applied.
func New(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health (no auth).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Listings.
	mux.HandleFunc("POST /api/listings", handlers.Listings.CreateListing)
	mux.HandleFunc("GET /api/listings", handlers.Listings.ListListings)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Listings.GetListing)
	mux.HandleFunc("DELETE /api/listings/{id}", handlers.Listings.DelistListing)

	// Sale actions and ledgers.
	mux.HandleFunc("POST /api/listings/{id}/purchase", handlers.Sales.Purchase)
	mux.HandleFunc("POST /api/listings/{id}/bids", handlers.Sales.PlaceBid)
	mux.HandleFunc("GET /api/listings/{id}/bids", handlers.Sales.ListBids)
	mux.HandleFunc("POST /api/listings/{id}/offers", handlers.Sales.PlaceOffer)
	mux.HandleFunc("GET /api/listings/{id}/offers", handlers.Sales.ListOffers)
	mux.HandleFunc("POST /api/offers/{id}/response", handlers.Sales.RespondToOffer)

	// Transactions and the scheduling handshake.
	mux.HandleFunc("GET /api/transactions", handlers.Schedules.ListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", handlers.Schedules.GetTransaction)
	mux.HandleFunc("POST /api/transactions/{id}/schedule", handlers.Schedules.ProposeSchedule)
	mux.HandleFunc("POST /api/transactions/{id}/selection", handlers.Schedules.SelectSchedule)
	mux.HandleFunc("POST /api/transactions/{id}/status", handlers.Schedules.AdvanceStatus)
	mux.HandleFunc("GET /api/schedule/slots", handlers.Schedules.ListSlots)

	// Notifications.
	mux.HandleFunc("GET /api/notifications", handlers.Notifications.ListNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", handlers.Notifications.MarkRead)
	mux.HandleFunc("GET /api/notifications/unread_count", handlers.Notifications.UnreadCount)

	// WebSocket.
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Identity()(h)
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start listens for HTTP requests. It blocks until the server errors or is
// shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
