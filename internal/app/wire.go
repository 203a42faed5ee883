package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/jwkoh/campustrade/internal/blob/s3"
	"github.com/jwkoh/campustrade/internal/cache/redis"
	"github.com/jwkoh/campustrade/internal/config"
	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/notify"
	"github.com/jwkoh/campustrade/internal/server/handler"
	"github.com/jwkoh/campustrade/internal/service"
	"github.com/jwkoh/campustrade/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Storage
	Stores        domain.Stores
	Atomic        domain.AtomicRunner
	Notifications domain.NotificationStore

	// Redis-backed coordination
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob archive (nil unless s3.enabled)
	Archiver service.Archiver

	// Notifications
	Dispatcher *notify.Dispatcher

	// Services
	Finalizer *service.Finalizer
	Listings  *service.ListingService
	Ledger    *service.LedgerService
	Sales     *service.SaleService
	Schedules *service.ScheduleService
	Notifier  *service.NotificationService
	Sweeper   *service.Sweeper

	// Pingers feed the health endpoint, keyed by dependency name.
	Pingers map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Pingers: map[string]handler.Pinger{}}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.Stores = pgClient.Stores()
	deps.Atomic = pgClient
	deps.Notifications = postgres.NewNotificationStore(pgClient.Pool())
	deps.Pingers["postgres"] = pgClient

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Pingers["redis"] = redisClient

	// --- S3 archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewExporter(
			s3blob.NewWriter(s3Client),
			deps.Stores.Transactions(),
			logger,
		)
		deps.Pingers["s3"] = s3Client
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL))
	}
	deps.Dispatcher = notify.NewDispatcher(deps.Notifications, deps.SignalBus, senders, logger)

	// --- Services ---
	deps.Finalizer = service.NewFinalizer(deps.Atomic, deps.Dispatcher, deps.SignalBus, logger)
	deps.Listings = service.NewListingService(deps.Stores, deps.Atomic, deps.Finalizer, logger)
	deps.Ledger = service.NewLedgerService(deps.Stores, deps.Atomic, deps.RateLimiter, deps.Dispatcher, deps.SignalBus, logger)
	deps.Sales = service.NewSaleService(deps.Stores, deps.Atomic, deps.Dispatcher, deps.SignalBus, logger)
	deps.Schedules = service.NewScheduleService(deps.Stores, deps.Atomic, deps.Dispatcher, deps.SignalBus,
		domain.SlotWindow{OpenHour: cfg.Market.SlotOpenHour, CloseHour: cfg.Market.SlotCloseHour}, logger)
	deps.Notifier = service.NewNotificationService(deps.Notifications)
	deps.Sweeper = service.NewSweeper(
		deps.Stores.Listings(),
		deps.Finalizer,
		deps.LockManager,
		deps.Archiver,
		cfg.Market.SweepInterval.Duration,
		time.Duration(cfg.Market.ArchiveRetentionDays)*24*time.Hour,
		logger,
	)

	return deps, cleanup, nil
}
