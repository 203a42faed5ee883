package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// ListingStore persists listings.
type ListingStore interface {
	Create(ctx context.Context, l Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Listing, error)
	ListBySeller(ctx context.Context, sellerID string, opts ListOpts) ([]Listing, error)
	// ListDue returns IDs of auctions whose time-derived state is stale at
	// the given instant: scheduled auctions past their start and active
	// auctions past their end.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
	SetStatus(ctx context.Context, id string, status ListingStatus) error
	SetPrice(ctx context.Context, id string, price float64) error
	// MarkSold sets status=sold, soldTo and soldAt in one write.
	MarkSold(ctx context.Context, id, buyerID string, at time.Time) error
}

// BidStore persists the append-only auction bid ledger.
type BidStore interface {
	Append(ctx context.Context, b Bid) error
	// Head returns the current winner: highest amount, earliest placedAt on
	// ties. ErrNotFound when the ledger is empty.
	Head(ctx context.Context, listingID string) (Bid, error)
	ListByListing(ctx context.Context, listingID string, opts ListOpts) ([]Bid, error)
}

// OfferStore persists negotiation offers.
type OfferStore interface {
	Create(ctx context.Context, o Offer) error
	GetByID(ctx context.Context, id string) (Offer, error)
	ListByListing(ctx context.Context, listingID string, opts ListOpts) ([]Offer, error)
	SetStatus(ctx context.Context, id string, status OfferStatus, respondedAt time.Time) error
}

// TransactionStore persists sale transactions and the scheduling handshake.
type TransactionStore interface {
	Create(ctx context.Context, t Transaction) error
	GetByID(ctx context.Context, id string) (Transaction, error)
	// ExistsForSale is the duplicate-finalization guard: true when a
	// transaction for the given listing and origin already exists.
	ExistsForSale(ctx context.Context, listingID string, origin TxnOrigin) (bool, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Transaction, error)
	// SetSchedule writes the seller's proposal and advances the status to
	// waiting_for_buyer.
	SetSchedule(ctx context.Context, id string, options []ScheduleOption, locations []string) error
	// SetSelected writes the buyer's choice and advances the status to
	// confirmed.
	SetSelected(ctx context.Context, id string, sel SelectedSchedule) error
	SetStatus(ctx context.Context, id string, status TxnStatus) error
	ListArchivable(ctx context.Context, before time.Time, limit int) ([]Transaction, error)
	MarkArchived(ctx context.Context, ids []string, at time.Time) error
}

// NotificationStore persists user notifications.
type NotificationStore interface {
	Create(ctx context.Context, n Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, opts ListOpts) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// Stores bundles the per-collection stores visible to one caller. Inside an
// atomic unit all methods operate on the same transaction.
type Stores interface {
	Listings() ListingStore
	Bids() BidStore
	Offers() OfferStore
	Transactions() TransactionStore
}

// AtomicRunner executes fn as one all-or-nothing, conflict-checked unit
// against the store. Conflicting concurrent writers are detected and the
// unit is retried from the top, so fn must re-check its preconditions on
// every attempt and must not carry side effects across attempts. Retries are
// bounded; exhaustion surfaces as ErrStoreUnavailable.
type AtomicRunner interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}

// Signal is one event received from a bus subscription. Channel is the
// concrete channel the event was published on, even when the subscription
// used a pattern.
type Signal struct {
	Channel string
	Payload []byte
}

// SignalBus publishes and subscribes to post-commit change events. Delivery
// is best-effort; consumers re-derive state from the authoritative records,
// never from event arrival order.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers events for channel, which may be a glob pattern.
	Subscribe(ctx context.Context, channel string) (<-chan Signal, error)
}

// LockManager provides best-effort distributed locks. Engine correctness
// never depends on a lock; they only suppress duplicate background work.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned release
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles per-actor request rates.
type RateLimiter interface {
	// Allow reports whether one more request for key fits under limit
	// requests per window, counting it if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
