package domain

import "time"

// NotifyKind enumerates the notification types emitted by the sale engine.
type NotifyKind string

const (
	NotifyItemSold         NotifyKind = "item_sold"
	NotifyPurchaseSuccess  NotifyKind = "purchase_success"
	NotifyOfferReceived    NotifyKind = "offer_received"
	NotifyOfferAccepted    NotifyKind = "offer_accepted"
	NotifyOfferRejected    NotifyKind = "offer_rejected"
	NotifyBidPlaced        NotifyKind = "bid_placed"
	NotifyBidOutbid        NotifyKind = "bid_outbid"
	NotifyBidWon           NotifyKind = "bid_won"
	NotifyAuctionEnded     NotifyKind = "auction_ended"
	NotifyScheduleReminder NotifyKind = "schedule_reminder"
	NotifyScheduleChanged  NotifyKind = "schedule_changed"
	NotifyOrderConfirmed   NotifyKind = "order_confirmed"
	NotifyOrderCompleted   NotifyKind = "order_completed"
	NotifyOrderCancelled   NotifyKind = "order_cancelled"
)

// Notification is a persisted message for one recipient. The engine only
// ever creates notifications; the sole mutation is read-flagging by the
// recipient.
type Notification struct {
	ID        string
	UserID    string
	Kind      NotifyKind
	SubjectID string // listing or transaction the notification refers to
	Message   string
	Read      bool
	CreatedAt time.Time
}
