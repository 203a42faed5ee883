package domain

import "time"

// Bid is an auction-mode price proposal. Bids are immutable once written;
// the ledger ordered by amount descending then placedAt ascending defines a
// total order whose head is the current winner.
type Bid struct {
	ID        string
	ListingID string
	BidderID  string
	Amount    float64
	PlacedAt  time.Time
}

// Outranks reports whether b beats other in ledger order: strictly higher
// amount, or equal amount placed earlier.
func (b Bid) Outranks(other Bid) bool {
	if b.Amount != other.Amount {
		return b.Amount > other.Amount
	}
	return b.PlacedAt.Before(other.PlacedAt)
}
