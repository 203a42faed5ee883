// Package service implements the sale-and-scheduling engine: listing
// lifecycle, the bid/offer ledger, atomic sale transitions, idempotent
// auction finalization, and the post-sale meeting handshake. Every state
// transition runs inside one atomic store unit; notifications and bus events
// are emitted only after the unit commits.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/notify"
)

// FinalizeOutcome reports what a finalization attempt did.
type FinalizeOutcome string

const (
	// FinalizeSold means the auction closed with a winner.
	FinalizeSold FinalizeOutcome = "sold"
	// FinalizeUnsold means the auction closed with an empty ledger.
	FinalizeUnsold FinalizeOutcome = "unsold"
	// FinalizeActivated means a scheduled auction was opened for bidding.
	FinalizeActivated FinalizeOutcome = "activated"
	// FinalizeSkipped means the listing needed no time-derived transition.
	FinalizeSkipped FinalizeOutcome = "skipped"
	// FinalizeAlreadyDone means another caller finalized first.
	FinalizeAlreadyDone FinalizeOutcome = "already_done"
)

// Finalizer performs the one-time closing of expired auctions. It has no
// scheduler of its own: callers invoke it lazily when they observe an
// expired auction, and the sweeper invokes it on a timer. Both paths are
// safe to race because the whole check-then-act sequence runs in one atomic
// unit guarded by a transaction-per-sale uniqueness check.
type Finalizer struct {
	atomic     domain.AtomicRunner
	dispatcher *notify.Dispatcher
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewFinalizer creates a Finalizer. bus may be nil.
func NewFinalizer(atomic domain.AtomicRunner, dispatcher *notify.Dispatcher, bus domain.SignalBus, logger *slog.Logger) *Finalizer {
	return &Finalizer{
		atomic:     atomic,
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger.With(slog.String("component", "finalizer")),
	}
}

// Finalize applies every time-derived transition the listing is due for at
// the given instant: a scheduled auction past its start opens for bidding,
// and an active auction past its end closes to sold or unsold. Finalize is
// idempotent; concurrent invocations agree on a single outcome and at most
// one of them creates the sale transaction.
func (f *Finalizer) Finalize(ctx context.Context, listingID string, now time.Time) (FinalizeOutcome, error) {
	var (
		outcome FinalizeOutcome
		winner  domain.Bid
		txn     domain.Transaction
		seller  string
	)

	err := f.atomic.Atomic(ctx, func(ctx context.Context, s domain.Stores) error {
		// Reset per attempt; the unit may retry after a conflict.
		outcome = FinalizeSkipped
		winner = domain.Bid{}
		txn = domain.Transaction{}

		l, err := s.Listings().GetByID(ctx, listingID)
		if err != nil {
			return err
		}
		seller = l.SellerID

		if l.Mode != domain.SaleModeAuction || l.Status.Terminal() {
			return nil
		}

		if l.AuctionDue(now) {
			if err := s.Listings().SetStatus(ctx, l.ID, domain.ListingStatusAuctionActive); err != nil {
				return err
			}
			l.Status = domain.ListingStatusAuctionActive
			outcome = FinalizeActivated
		}

		if l.Status != domain.ListingStatusAuctionActive || !l.AuctionExpired(now) {
			return nil
		}

		exists, err := s.Transactions().ExistsForSale(ctx, l.ID, domain.TxnOriginAuction)
		if err != nil {
			return err
		}
		if exists {
			outcome = FinalizeAlreadyDone
			return nil
		}

		head, err := s.Bids().Head(ctx, l.ID)
		if errors.Is(err, domain.ErrNotFound) {
			if err := s.Listings().SetStatus(ctx, l.ID, domain.ListingStatusUnsold); err != nil {
				return err
			}
			outcome = FinalizeUnsold
			return nil
		}
		if err != nil {
			return err
		}

		if err := s.Listings().MarkSold(ctx, l.ID, head.BidderID, now); err != nil {
			return err
		}
		txn = domain.Transaction{
			ID:        uuid.New().String(),
			ListingID: l.ID,
			BuyerID:   head.BidderID,
			SellerID:  l.SellerID,
			Amount:    head.Amount,
			Origin:    domain.TxnOriginAuction,
			Status:    domain.TxnStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		winner = head
		outcome = FinalizeSold
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("finalizer: listing %q: %w", listingID, err)
	}

	switch outcome {
	case FinalizeSold:
		f.dispatcher.Dispatch(ctx, winner.BidderID, domain.NotifyBidWon, listingID,
			fmt.Sprintf("You won the auction at %.2f.", winner.Amount))
		f.dispatcher.Dispatch(ctx, seller, domain.NotifyAuctionEnded, listingID,
			fmt.Sprintf("Your auction ended sold at %.2f.", winner.Amount))
		f.dispatcher.Dispatch(ctx, seller, domain.NotifyScheduleReminder, txn.ID,
			"Propose meeting times and places to hand over the item.")
		f.publish(ctx, listingID, domain.ListingStatusSold)
		f.publishTxn(ctx, txn)
	case FinalizeUnsold:
		f.publish(ctx, listingID, domain.ListingStatusUnsold)
	case FinalizeActivated:
		f.publish(ctx, listingID, domain.ListingStatusAuctionActive)
	}

	if outcome != FinalizeSkipped {
		f.logger.InfoContext(ctx, "finalize applied",
			slog.String("listing_id", listingID),
			slog.String("outcome", string(outcome)),
		)
	}
	return outcome, nil
}

// publishTxn announces the auction's sale transaction on the transaction
// channels of both parties, keyed by user.
func (f *Finalizer) publishTxn(ctx context.Context, t domain.Transaction) {
	if f.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":          "transaction_created",
		"transaction_id": t.ID,
		"listing_id":     t.ListingID,
		"status":         string(t.Status),
	})
	for _, userID := range []string{t.BuyerID, t.SellerID} {
		if err := f.bus.Publish(ctx, "txn:"+userID, evt); err != nil {
			f.logger.WarnContext(ctx, "publish failed",
				slog.String("transaction_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (f *Finalizer) publish(ctx context.Context, listingID string, status domain.ListingStatus) {
	if f.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":      "listing_updated",
		"listing_id": listingID,
		"status":     string(status),
	})
	if err := f.bus.Publish(ctx, "listing:"+listingID, evt); err != nil {
		f.logger.WarnContext(ctx, "publish failed",
			slog.String("listing_id", listingID),
			slog.String("error", err.Error()),
		)
	}
}
