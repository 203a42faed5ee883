package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jwkoh/campustrade/internal/domain"
)

const (
	// maxAtomicAttempts bounds the serialization-conflict retry loop.
	maxAtomicAttempts = 5
	// atomicBackoffBase is the initial delay between retry attempts.
	atomicBackoffBase = 10 * time.Millisecond
)

// Atomic implements domain.AtomicRunner. fn runs inside one SERIALIZABLE
// transaction; conflicting concurrent writers surface as serialization
// failures, which roll the unit back and re-run fn from the top so every
// attempt re-reads and re-checks its preconditions. The retry budget is
// bounded; exhaustion maps to domain.ErrStoreUnavailable.
func (c *Client) Atomic(ctx context.Context, fn func(ctx context.Context, s domain.Stores) error) error {
	var lastErr error

	for attempt := 0; attempt < maxAtomicAttempts; attempt++ {
		if attempt > 0 {
			delay := atomicBackoffBase << (attempt - 1)
			jitter := time.Duration(rand.Int64N(int64(delay)))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := pgx.BeginTxFunc(ctx, c.pool,
			pgx.TxOptions{IsoLevel: pgx.Serializable},
			func(tx pgx.Tx) error {
				return fn(ctx, storeBundle{q: tx})
			},
		)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("postgres: atomic retry budget exhausted: %v: %w",
		lastErr, domain.ErrStoreUnavailable)
}

// isSerializationFailure reports whether err is a transient concurrency
// conflict: serialization_failure (40001) or deadlock_detected (40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// Compile-time interface check.
var _ domain.AtomicRunner = (*Client)(nil)
