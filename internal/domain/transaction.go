package domain

import "time"

// TxnOrigin records which sale path produced a transaction.
type TxnOrigin string

const (
	TxnOriginDirectPurchase TxnOrigin = "direct_purchase"
	TxnOriginAuction        TxnOrigin = "auction"
	TxnOriginNegotiation    TxnOrigin = "negotiation"
)

// TxnStatus is the scheduling-handshake state of a transaction.
//
// pending -> waiting_for_buyer -> confirmed -> completed
// Any non-terminal state may move to cancelled.
type TxnStatus string

const (
	TxnStatusPending         TxnStatus = "pending"
	TxnStatusWaitingForBuyer TxnStatus = "waiting_for_buyer"
	TxnStatusConfirmed       TxnStatus = "confirmed"
	TxnStatusCompleted       TxnStatus = "completed"
	TxnStatusCancelled       TxnStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TxnStatus) Terminal() bool {
	return s == TxnStatusCompleted || s == TxnStatusCancelled
}

// ScheduleOption is one seller-proposed meeting date with its candidate
// hourly time slots.
type ScheduleOption struct {
	Date  string   `json:"date"`  // YYYY-MM-DD
	Slots []string `json:"slots"` // "HH:00" entries from the slot catalog
}

// SelectedSchedule is the buyer's chosen (date, slot, location) triple.
type SelectedSchedule struct {
	Date     string `json:"date"`
	Slot     string `json:"slot"`
	Location string `json:"location"`
}

// MaxMeetingLocations caps the number of meeting places a seller may propose.
const MaxMeetingLocations = 3

// Transaction is the record of a sale event. It is created exactly once per
// sale (enforced by a uniqueness check on listing+origin before creation)
// and afterwards mutated only by the scheduling handshake: scheduleOptions
// and meetingLocations are writable only by the seller while pending, the
// selected schedule only by the buyer while waiting_for_buyer.
type Transaction struct {
	ID               string
	ListingID        string
	BuyerID          string
	SellerID         string
	Amount           float64
	Origin           TxnOrigin
	Status           TxnStatus
	ScheduleOptions  []ScheduleOption
	MeetingLocations []string
	Selected         *SelectedSchedule
	ArchivedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Party reports whether userID is the buyer or the seller of the transaction.
func (t Transaction) Party(userID string) bool {
	return userID == t.BuyerID || userID == t.SellerID
}

// Counterparty returns the other side of the transaction relative to userID.
func (t Transaction) Counterparty(userID string) string {
	if userID == t.BuyerID {
		return t.SellerID
	}
	return t.BuyerID
}

// OffersSelection reports whether the proposed options contain the given
// (date, slot) pair and the locations contain the given location.
func (t Transaction) OffersSelection(date, slot, location string) bool {
	var slotOK bool
	for _, opt := range t.ScheduleOptions {
		if opt.Date != date {
			continue
		}
		for _, s := range opt.Slots {
			if s == slot {
				slotOK = true
				break
			}
		}
	}
	if !slotOK {
		return false
	}
	for _, loc := range t.MeetingLocations {
		if loc == location {
			return true
		}
	}
	return false
}
