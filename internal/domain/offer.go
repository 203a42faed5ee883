package domain

import "time"

// OfferStatus represents the lifecycle state of a negotiation offer.
type OfferStatus string

const (
	OfferStatusPending  OfferStatus = "pending"
	OfferStatusAccepted OfferStatus = "accepted"
	OfferStatusRejected OfferStatus = "rejected"
)

// OfferDecision is the seller's response to a pending offer.
type OfferDecision string

const (
	OfferDecisionAccept OfferDecision = "accept"
	OfferDecisionReject OfferDecision = "reject"
)

// Offer is a direct-mode price proposal from a buyer, strictly below the
// asking price, subject to seller accept/reject. At most one offer per
// listing may ever reach accepted status; acceptance sells the listing at
// the offer amount in the same atomic unit.
type Offer struct {
	ID          string
	ListingID   string
	BuyerID     string
	Amount      float64
	Status      OfferStatus
	CreatedAt   time.Time
	RespondedAt *time.Time
}
