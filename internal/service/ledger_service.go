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

// Per-user write budget for ledger appends.
const (
	ledgerRateLimit  = 30
	ledgerRateWindow = time.Minute
)

// LedgerService appends to the bid and offer ledgers. Appends are validated
// against the listing's live state inside the same atomic unit that writes
// them, so a bid can never land on a closed auction and the strictly
// increasing amount order can never be violated by a concurrent writer.
type LedgerService struct {
	stores     domain.Stores
	atomic     domain.AtomicRunner
	limiter    domain.RateLimiter
	dispatcher *notify.Dispatcher
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewLedgerService creates a LedgerService. limiter and bus may be nil.
func NewLedgerService(
	stores domain.Stores,
	atomic domain.AtomicRunner,
	limiter domain.RateLimiter,
	dispatcher *notify.Dispatcher,
	bus domain.SignalBus,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		stores:     stores,
		atomic:     atomic,
		limiter:    limiter,
		dispatcher: dispatcher,
		bus:        bus,
		logger:     logger,
	}
}

// PlaceBid appends a bid to an active auction's ledger and returns it as the
// new head. The bid must strictly beat the current head, or the listing
// price when the ledger is empty.
func (s *LedgerService) PlaceBid(ctx context.Context, listingID, bidderID string, amount float64) (domain.Bid, error) {
	if err := s.allow(ctx, "bids:"+bidderID); err != nil {
		return domain.Bid{}, err
	}
	if amount <= 0 {
		return domain.Bid{}, fmt.Errorf("ledger_service: %w", domain.ErrInvalidAmount)
	}

	var (
		bid      domain.Bid
		prevHead domain.Bid
		hadHead  bool
		seller   string
	)
	now := time.Now().UTC()

	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		hadHead = false

		l, err := st.Listings().GetByID(ctx, listingID)
		if err != nil {
			return err
		}
		seller = l.SellerID
		if bidderID == l.SellerID {
			return domain.ErrInvalidBidder
		}
		if l.Mode != domain.SaleModeAuction {
			return domain.ErrListingClosed
		}
		// A scheduled auction whose start has passed opens within this unit.
		if l.AuctionDue(now) {
			if err := st.Listings().SetStatus(ctx, l.ID, domain.ListingStatusAuctionActive); err != nil {
				return err
			}
			l.Status = domain.ListingStatusAuctionActive
		}
		if l.Status != domain.ListingStatusAuctionActive || l.AuctionExpired(now) {
			return domain.ErrListingClosed
		}

		floor := l.Price
		head, err := st.Bids().Head(ctx, listingID)
		switch {
		case err == nil:
			prevHead, hadHead = head, true
			floor = head.Amount
		case errors.Is(err, domain.ErrNotFound):
		default:
			return err
		}
		if amount <= floor {
			return domain.ErrBidTooLow
		}

		bid = domain.Bid{
			ID:        uuid.New().String(),
			ListingID: listingID,
			BidderID:  bidderID,
			Amount:    amount,
			PlacedAt:  now,
		}
		return st.Bids().Append(ctx, bid)
	})
	if err != nil {
		return domain.Bid{}, fmt.Errorf("ledger_service: place bid on %q: %w", listingID, err)
	}

	if hadHead && prevHead.BidderID != bidderID {
		s.dispatcher.Dispatch(ctx, prevHead.BidderID, domain.NotifyBidOutbid, listingID,
			fmt.Sprintf("Your bid of %.2f was outbid at %.2f.", prevHead.Amount, amount))
	}
	s.dispatcher.Dispatch(ctx, seller, domain.NotifyBidPlaced, listingID,
		fmt.Sprintf("New bid of %.2f on your auction.", amount))
	s.publishLedger(ctx, "bids:"+listingID, "bid_placed", bid.ID, listingID)

	s.logger.InfoContext(ctx, "ledger_service: bid placed",
		slog.String("listing_id", listingID),
		slog.Float64("amount", amount),
	)
	return bid, nil
}

// PlaceOffer records a negotiation offer on a direct-sale listing. Offers
// must undercut the asking price; matching or beating it is what the direct
// purchase path is for.
func (s *LedgerService) PlaceOffer(ctx context.Context, listingID, buyerID string, amount float64) (domain.Offer, error) {
	if err := s.allow(ctx, "offers:"+buyerID); err != nil {
		return domain.Offer{}, err
	}
	if amount <= 0 {
		return domain.Offer{}, fmt.Errorf("ledger_service: %w", domain.ErrInvalidAmount)
	}

	var (
		offer  domain.Offer
		seller string
	)
	now := time.Now().UTC()

	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		l, err := st.Listings().GetByID(ctx, listingID)
		if err != nil {
			return err
		}
		seller = l.SellerID
		if buyerID == l.SellerID {
			return domain.ErrInvalidBidder
		}
		if l.Mode != domain.SaleModeDirect {
			return domain.ErrListingClosed
		}
		if l.Status == domain.ListingStatusSold {
			return domain.ErrAlreadySold
		}
		if l.Status != domain.ListingStatusAvailable {
			return domain.ErrListingClosed
		}
		if amount >= l.Price {
			return domain.ErrInvalidAmount
		}

		offer = domain.Offer{
			ID:        uuid.New().String(),
			ListingID: listingID,
			BuyerID:   buyerID,
			Amount:    amount,
			Status:    domain.OfferStatusPending,
			CreatedAt: now,
		}
		return st.Offers().Create(ctx, offer)
	})
	if err != nil {
		return domain.Offer{}, fmt.Errorf("ledger_service: place offer on %q: %w", listingID, err)
	}

	s.dispatcher.Dispatch(ctx, seller, domain.NotifyOfferReceived, listingID,
		fmt.Sprintf("Offer of %.2f received on your listing.", amount))
	s.publishLedger(ctx, "offers:"+listingID, "offer_placed", offer.ID, listingID)

	s.logger.InfoContext(ctx, "ledger_service: offer placed",
		slog.String("listing_id", listingID),
		slog.Float64("amount", amount),
	)
	return offer, nil
}

// ListBids returns the bid ledger for a listing in head-first order.
func (s *LedgerService) ListBids(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error) {
	bids, err := s.stores.Bids().ListByListing(ctx, listingID, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list bids for %q: %w", listingID, err)
	}
	return bids, nil
}

// ListOffers returns the offers recorded against a listing.
func (s *LedgerService) ListOffers(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Offer, error) {
	offers, err := s.stores.Offers().ListByListing(ctx, listingID, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list offers for %q: %w", listingID, err)
	}
	return offers, nil
}

func (s *LedgerService) allow(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, key, ledgerRateLimit, ledgerRateWindow)
	if err != nil {
		// Limiter outage must not take the write path down with it.
		s.logger.WarnContext(ctx, "ledger_service: rate limiter unavailable",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !allowed {
		return fmt.Errorf("ledger_service: %w", domain.ErrRateLimited)
	}
	return nil
}

func (s *LedgerService) publishLedger(ctx context.Context, channel, event, id, listingID string) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":      event,
		"id":         id,
		"listing_id": listingID,
	})
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "ledger_service: publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
