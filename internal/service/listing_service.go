package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwkoh/campustrade/internal/domain"
)

// ListingService owns listing creation, reads, and delisting. Reads fold in
// the lazy finalization trigger: observing an auction past a deadline drives
// the time-derived transition before the listing is returned.
type ListingService struct {
	stores    domain.Stores
	atomic    domain.AtomicRunner
	finalizer *Finalizer
	logger    *slog.Logger
}

// NewListingService creates a ListingService.
func NewListingService(stores domain.Stores, atomic domain.AtomicRunner, finalizer *Finalizer, logger *slog.Logger) *ListingService {
	return &ListingService{
		stores:    stores,
		atomic:    atomic,
		finalizer: finalizer,
		logger:    logger,
	}
}

// NewListingInput carries the caller-supplied fields of a new listing.
type NewListingInput struct {
	SellerID     string
	Title        string
	Description  string
	Price        float64
	Mode         domain.SaleMode
	AuctionStart *time.Time
	AuctionEnd   *time.Time
}

// Create validates and persists a new listing. An auction whose start has
// already passed opens immediately.
func (s *ListingService) Create(ctx context.Context, in NewListingInput) (domain.Listing, error) {
	now := time.Now().UTC()
	l := domain.Listing{
		ID:           uuid.New().String(),
		SellerID:     in.SellerID,
		Title:        in.Title,
		Description:  in.Description,
		Price:        in.Price,
		Mode:         in.Mode,
		Status:       domain.ListingStatusAvailable,
		AuctionStart: in.AuctionStart,
		AuctionEnd:   in.AuctionEnd,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if l.Mode == domain.SaleModeAuction {
		l.Status = domain.ListingStatusAuctionScheduled
		if l.AuctionDue(now) {
			l.Status = domain.ListingStatusAuctionActive
		}
	}
	if err := l.ValidateNew(now); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: %w", err)
	}
	if err := s.stores.Listings().Create(ctx, l); err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "listing_service: listing created",
		slog.String("listing_id", l.ID),
		slog.String("mode", string(l.Mode)),
	)
	return l, nil
}

// Get returns the listing by ID. When the stored state is stale against the
// clock (a scheduled auction past its start, an active one past its end) the
// due transition is applied first, so callers always observe settled state.
func (s *ListingService) Get(ctx context.Context, id string) (domain.Listing, error) {
	l, err := s.stores.Listings().GetByID(ctx, id)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("listing_service: get %q: %w", id, err)
	}

	now := time.Now().UTC()
	if l.Mode == domain.SaleModeAuction && !l.Status.Terminal() &&
		(l.AuctionDue(now) || l.AuctionExpired(now)) {
		if _, err := s.finalizer.Finalize(ctx, id, now); err != nil {
			return domain.Listing{}, err
		}
		l, err = s.stores.Listings().GetByID(ctx, id)
		if err != nil {
			return domain.Listing{}, fmt.Errorf("listing_service: reload %q: %w", id, err)
		}
	}
	return l, nil
}

// ListActive returns listings still open for sale actions.
func (s *ListingService) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	ls, err := s.stores.Listings().ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list active: %w", err)
	}
	return ls, nil
}

// ListBySeller returns all listings owned by sellerID.
func (s *ListingService) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	ls, err := s.stores.Listings().ListBySeller(ctx, sellerID, opts)
	if err != nil {
		return nil, fmt.Errorf("listing_service: list by seller %q: %w", sellerID, err)
	}
	return ls, nil
}

// Delist withdraws a listing from sale. Only the seller may delist, and only
// while the listing is not already in a terminal state. The record is never
// deleted; delisting is a status change.
func (s *ListingService) Delist(ctx context.Context, id, actorID string) error {
	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		l, err := st.Listings().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if l.SellerID != actorID {
			return domain.ErrForbidden
		}
		if l.Status == domain.ListingStatusSold {
			return domain.ErrAlreadySold
		}
		if l.Status.Terminal() {
			return domain.ErrInvalidState
		}
		return st.Listings().SetStatus(ctx, id, domain.ListingStatusDelisted)
	})
	if err != nil {
		return fmt.Errorf("listing_service: delist %q: %w", id, err)
	}

	s.logger.InfoContext(ctx, "listing_service: listing delisted",
		slog.String("listing_id", id),
	)
	return nil
}
