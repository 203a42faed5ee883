package domain

import (
	"fmt"
	"strings"
	"time"
)

// SaleMode selects how a listing is sold.
type SaleMode string

const (
	// SaleModeDirect sells at the asking price, optionally via negotiated offers.
	SaleModeDirect SaleMode = "direct"
	// SaleModeAuction sells to the highest bidder within a time window.
	SaleModeAuction SaleMode = "auction"
)

// ListingStatus represents the lifecycle state of a listing.
type ListingStatus string

const (
	ListingStatusAvailable        ListingStatus = "available"
	ListingStatusAuctionScheduled ListingStatus = "auction_scheduled"
	ListingStatusAuctionActive    ListingStatus = "auction_active"
	ListingStatusSold             ListingStatus = "sold"
	ListingStatusUnsold           ListingStatus = "unsold"
	ListingStatusDelisted         ListingStatus = "delisted"
)

// Terminal reports whether the status admits no further sale transitions.
func (s ListingStatus) Terminal() bool {
	switch s {
	case ListingStatusSold, ListingStatusUnsold, ListingStatusDelisted:
		return true
	}
	return false
}

// Listing is a for-sale item record owned by a seller. Title, description and
// price are opaque to the sale engine except where negotiation rewrites the
// price. AuctionStart/AuctionEnd are set iff Mode is auction; SoldTo is set
// iff Status is sold.
type Listing struct {
	ID           string
	SellerID     string
	Title        string
	Description  string
	Price        float64
	Mode         SaleMode
	Status       ListingStatus
	AuctionStart *time.Time
	AuctionEnd   *time.Time
	SoldTo       *string
	SoldAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuctionWindow returns the auction start and end timestamps. ok is false for
// direct-mode listings, which never carry a window.
func (l Listing) AuctionWindow() (start, end time.Time, ok bool) {
	if l.Mode != SaleModeAuction || l.AuctionStart == nil || l.AuctionEnd == nil {
		return time.Time{}, time.Time{}, false
	}
	return *l.AuctionStart, *l.AuctionEnd, true
}

// AuctionExpired reports whether the listing is an auction whose deadline has
// passed at the given instant. An expired active auction is eligible for
// finalization regardless of who observes it.
func (l Listing) AuctionExpired(now time.Time) bool {
	_, end, ok := l.AuctionWindow()
	return ok && !now.Before(end)
}

// AuctionDue reports whether a scheduled auction should become active at the
// given instant.
func (l Listing) AuctionDue(now time.Time) bool {
	start, _, ok := l.AuctionWindow()
	return ok && l.Status == ListingStatusAuctionScheduled && !now.Before(start)
}

// ValidateNew checks the mode-dependent shape of a listing before creation.
// A direct listing must not carry auction timestamps; an auction listing must
// carry a window with start < end and end in the future.
func (l Listing) ValidateNew(now time.Time) error {
	if strings.TrimSpace(l.SellerID) == "" {
		return fmt.Errorf("listing: missing seller: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("listing: missing title: %w", ErrInvalidInput)
	}
	if l.Price <= 0 {
		return fmt.Errorf("listing: price must be positive: %w", ErrInvalidAmount)
	}

	switch l.Mode {
	case SaleModeDirect:
		if l.AuctionStart != nil || l.AuctionEnd != nil {
			return fmt.Errorf("listing: direct mode must not set an auction window: %w", ErrInvalidInput)
		}
	case SaleModeAuction:
		if l.AuctionStart == nil || l.AuctionEnd == nil {
			return fmt.Errorf("listing: auction mode requires start and end: %w", ErrInvalidInput)
		}
		if !l.AuctionStart.Before(*l.AuctionEnd) {
			return fmt.Errorf("listing: auction start must precede end: %w", ErrInvalidInput)
		}
		if !l.AuctionEnd.After(now) {
			return fmt.Errorf("listing: auction end must be in the future: %w", ErrInvalidInput)
		}
	default:
		return fmt.Errorf("listing: unknown sale mode %q: %w", l.Mode, ErrInvalidInput)
	}
	return nil
}
