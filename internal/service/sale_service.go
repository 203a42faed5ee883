package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/notify"
)

// SaleService performs the transitions that move a listing to sold: direct
// purchase and offer response. Each one re-reads the listing inside the
// atomic unit, so two buyers racing for the same item resolve to exactly one
// sale and exactly one transaction.
type SaleService struct {
	stores     domain.Stores
	atomic     domain.AtomicRunner
	dispatcher *notify.Dispatcher
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewSaleService creates a SaleService. bus may be nil.
func NewSaleService(
	stores domain.Stores,
	atomic domain.AtomicRunner,
	dispatcher *notify.Dispatcher,
	bus domain.SignalBus,
	logger *slog.Logger,
) *SaleService {
	return &SaleService{
		stores:     stores,
		atomic:     atomic,
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger,
	}
}

// Purchase buys a direct-sale listing at its asking price. The listing flips
// to sold and the sale transaction is created in the same atomic unit.
func (s *SaleService) Purchase(ctx context.Context, listingID, buyerID string) (domain.Transaction, error) {
	var (
		txn    domain.Transaction
		seller string
	)
	now := time.Now().UTC()

	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		l, err := st.Listings().GetByID(ctx, listingID)
		if err != nil {
			return err
		}
		seller = l.SellerID
		if l.Status == domain.ListingStatusSold {
			return domain.ErrAlreadySold
		}
		if buyerID == l.SellerID {
			return domain.ErrSelfPurchase
		}
		if l.Mode != domain.SaleModeDirect || l.Status != domain.ListingStatusAvailable {
			return domain.ErrListingClosed
		}

		if err := st.Listings().MarkSold(ctx, l.ID, buyerID, now); err != nil {
			return err
		}
		txn = domain.Transaction{
			ID:        uuid.New().String(),
			ListingID: l.ID,
			BuyerID:   buyerID,
			SellerID:  l.SellerID,
			Amount:    l.Price,
			Origin:    domain.TxnOriginDirectPurchase,
			Status:    domain.TxnStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return st.Transactions().Create(ctx, txn)
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("sale_service: purchase %q: %w", listingID, err)
	}

	s.dispatcher.Dispatch(ctx, seller, domain.NotifyItemSold, listingID,
		"Your item was purchased.")
	s.dispatcher.Dispatch(ctx, buyerID, domain.NotifyPurchaseSuccess, listingID,
		fmt.Sprintf("Purchase complete at %.2f.", txn.Amount))
	s.dispatcher.Dispatch(ctx, seller, domain.NotifyScheduleReminder, txn.ID,
		"Propose meeting times and places to hand over the item.")
	s.publishListing(ctx, listingID, domain.ListingStatusSold)
	s.publishTxn(ctx, txn)

	s.logger.InfoContext(ctx, "sale_service: listing purchased",
		slog.String("listing_id", listingID),
		slog.String("transaction_id", txn.ID),
	)
	return txn, nil
}

// RespondToOffer accepts or rejects a pending offer. Only the listing's
// seller may respond. Acceptance rewrites the listing price to the offer
// amount, marks the listing sold, and creates the sale transaction, all in
// one atomic unit so the accepted offer and the sale are never observable
// as two separate states. Rejection touches only the offer.
func (s *SaleService) RespondToOffer(ctx context.Context, offerID, responderID string, decision domain.OfferDecision) (domain.Offer, error) {
	if decision != domain.OfferDecisionAccept && decision != domain.OfferDecisionReject {
		return domain.Offer{}, fmt.Errorf("sale_service: decision %q: %w", decision, domain.ErrInvalidInput)
	}

	var (
		offer domain.Offer
		txn   domain.Transaction
	)
	now := time.Now().UTC()

	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		o, err := st.Offers().GetByID(ctx, offerID)
		if err != nil {
			return err
		}
		l, err := st.Listings().GetByID(ctx, o.ListingID)
		if err != nil {
			return err
		}
		if l.SellerID != responderID {
			return domain.ErrForbidden
		}
		if o.Status != domain.OfferStatusPending {
			return domain.ErrAlreadyResolved
		}

		if decision == domain.OfferDecisionReject {
			if err := st.Offers().SetStatus(ctx, o.ID, domain.OfferStatusRejected, now); err != nil {
				return err
			}
			o.Status = domain.OfferStatusRejected
			o.RespondedAt = &now
			offer = o
			return nil
		}

		if l.Status == domain.ListingStatusSold {
			return domain.ErrAlreadySold
		}
		if l.Status != domain.ListingStatusAvailable {
			return domain.ErrListingClosed
		}

		if err := st.Offers().SetStatus(ctx, o.ID, domain.OfferStatusAccepted, now); err != nil {
			return err
		}
		// The sale closes at the negotiated amount, not the asking price.
		if err := st.Listings().SetPrice(ctx, l.ID, o.Amount); err != nil {
			return err
		}
		if err := st.Listings().MarkSold(ctx, l.ID, o.BuyerID, now); err != nil {
			return err
		}
		txn = domain.Transaction{
			ID:        uuid.New().String(),
			ListingID: l.ID,
			BuyerID:   o.BuyerID,
			SellerID:  l.SellerID,
			Amount:    o.Amount,
			Origin:    domain.TxnOriginNegotiation,
			Status:    domain.TxnStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.Transactions().Create(ctx, txn); err != nil {
			return err
		}
		o.Status = domain.OfferStatusAccepted
		o.RespondedAt = &now
		offer = o
		return nil
	})
	if err != nil {
		return domain.Offer{}, fmt.Errorf("sale_service: respond to offer %q: %w", offerID, err)
	}

	if offer.Status == domain.OfferStatusAccepted {
		s.dispatcher.Dispatch(ctx, offer.BuyerID, domain.NotifyOfferAccepted, offer.ListingID,
			fmt.Sprintf("Your offer of %.2f was accepted.", offer.Amount))
		s.dispatcher.Dispatch(ctx, responderID, domain.NotifyScheduleReminder, txn.ID,
			"Propose meeting times and places to hand over the item.")
		s.publishListing(ctx, offer.ListingID, domain.ListingStatusSold)
		s.publishTxn(ctx, txn)
	} else {
		s.dispatcher.Dispatch(ctx, offer.BuyerID, domain.NotifyOfferRejected, offer.ListingID,
			fmt.Sprintf("Your offer of %.2f was declined.", offer.Amount))
	}
	s.publishOffers(ctx, offer)

	s.logger.InfoContext(ctx, "sale_service: offer resolved",
		slog.String("offer_id", offer.ID),
		slog.String("status", string(offer.Status)),
	)
	return offer, nil
}

func (s *SaleService) publishListing(ctx context.Context, listingID string, status domain.ListingStatus) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":      "listing_updated",
		"listing_id": listingID,
		"status":     string(status),
	})
	if err := s.bus.Publish(ctx, "listing:"+listingID, evt); err != nil {
		s.logger.WarnContext(ctx, "sale_service: publish failed",
			slog.String("listing_id", listingID),
			slog.String("error", err.Error()),
		)
	}
}

// publishTxn announces a new transaction on both parties' transaction
// channels, keyed by user so one subscription covers a whole list.
func (s *SaleService) publishTxn(ctx context.Context, t domain.Transaction) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":          "transaction_created",
		"transaction_id": t.ID,
		"listing_id":     t.ListingID,
		"status":         string(t.Status),
	})
	for _, userID := range []string{t.BuyerID, t.SellerID} {
		if err := s.bus.Publish(ctx, "txn:"+userID, evt); err != nil {
			s.logger.WarnContext(ctx, "sale_service: publish failed",
				slog.String("transaction_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *SaleService) publishOffers(ctx context.Context, o domain.Offer) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":      "offer_resolved",
		"id":         o.ID,
		"listing_id": o.ListingID,
		"status":     string(o.Status),
	})
	if err := s.bus.Publish(ctx, "offers:"+o.ListingID, evt); err != nil {
		s.logger.WarnContext(ctx, "sale_service: publish failed",
			slog.String("offer_id", o.ID),
			slog.String("error", err.Error()),
		)
	}
}
