package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
)

const (
	sweepLockKey   = "auction_sweep"
	sweepBatchSize = 100
)

// Archiver exports terminal transactions to cold storage.
type Archiver interface {
	ExportTransactions(ctx context.Context, before time.Time, limit int) (int, error)
}

// Sweeper bounds finalization latency: it periodically finds auctions whose
// stored state is stale against the clock and pushes each through the
// finalizer. The lazy read-path trigger stays the correctness mechanism; the
// sweeper only catches auctions nobody is looking at. A best-effort
// distributed lock keeps replicas from sweeping the same batch, but a lost
// lock is harmless because finalization is idempotent.
type Sweeper struct {
	listings  domain.ListingStore
	finalizer *Finalizer
	locks     domain.LockManager
	archiver  Archiver
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	lastArchive time.Time
}

// NewSweeper creates a Sweeper. locks and archiver may be nil; retention
// gates how old a terminal transaction must be before it is exported.
func NewSweeper(
	listings domain.ListingStore,
	finalizer *Finalizer,
	locks domain.LockManager,
	archiver Archiver,
	interval, retention time.Duration,
	logger *slog.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Sweeper{
		listings:  listings,
		finalizer: finalizer,
		locks:     locks,
		archiver:  archiver,
		interval:  interval,
		retention: retention,
		logger:    logger.With(slog.String("component", "sweeper")),
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "sweeper started",
		slog.Duration("interval", s.interval),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil && !errors.Is(err, domain.ErrLockHeld) {
				s.logger.ErrorContext(ctx, "sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// SweepOnce runs one sweep pass: finalize every due auction, then export
// archivable transactions once a day.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	if s.locks != nil {
		release, err := s.locks.Acquire(ctx, sweepLockKey, 2*s.interval)
		if err != nil {
			return err
		}
		defer release()
	}

	now := time.Now().UTC()
	ids, err := s.listings.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return fmt.Errorf("sweeper: list due: %w", err)
	}

	var failed int
	for _, id := range ids {
		if _, err := s.finalizer.Finalize(ctx, id, now); err != nil {
			failed++
			s.logger.ErrorContext(ctx, "finalize failed",
				slog.String("listing_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "sweep pass done",
			slog.Int("due", len(ids)),
			slog.Int("failed", failed),
		)
	}

	if s.archiver != nil && now.Sub(s.lastArchive) >= 24*time.Hour {
		cutoff := now.Add(-s.retention)
		n, err := s.archiver.ExportTransactions(ctx, cutoff, 10_000)
		if err != nil {
			s.logger.ErrorContext(ctx, "transaction export failed",
				slog.String("error", err.Error()),
			)
		} else {
			s.lastArchive = now
			if n > 0 {
				s.logger.InfoContext(ctx, "transactions archived",
					slog.Int("count", n),
				)
			}
		}
	}
	return nil
}
