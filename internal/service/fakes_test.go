package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv bundles the fakes and services most tests need.
type testEnv struct {
	store     *memStore
	notifs    *memNotifs
	bus       *memBus
	disp      *notify.Dispatcher
	finalizer *Finalizer
	listings  *ListingService
	ledger    *LedgerService
	sales     *SaleService
	schedules *ScheduleService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	notifs := &memNotifs{}
	bus := newMemBus()
	disp := notify.NewDispatcher(notifs, bus, nil, testLogger())
	fin := NewFinalizer(store, disp, bus, testLogger())
	return &testEnv{
		store:     store,
		notifs:    notifs,
		bus:       bus,
		disp:      disp,
		finalizer: fin,
		listings:  NewListingService(store, store, fin, testLogger()),
		ledger:    NewLedgerService(store, store, nil, disp, bus, testLogger()),
		sales:     NewSaleService(store, store, disp, bus, testLogger()),
		schedules: NewScheduleService(store, store, disp, bus, domain.DefaultSlotWindow, testLogger()),
	}
}

// memStore is an in-memory domain.Stores used by the service tests. Its
// Atomic serializes units with a mutex, which models the store's guarantee
// that conflicting units never interleave.
type memStore struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
	bids     []domain.Bid
	offers   map[string]domain.Offer
	txns     map[string]domain.Transaction
	notifs   []domain.Notification
}

func newMemStore() *memStore {
	return &memStore{
		listings: make(map[string]domain.Listing),
		offers:   make(map[string]domain.Offer),
		txns:     make(map[string]domain.Transaction),
	}
}

func (m *memStore) Atomic(ctx context.Context, fn func(ctx context.Context, s domain.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m)
}

func (m *memStore) Listings() domain.ListingStore         { return (*memListings)(m) }
func (m *memStore) Bids() domain.BidStore                 { return (*memBids)(m) }
func (m *memStore) Offers() domain.OfferStore             { return (*memOffers)(m) }
func (m *memStore) Transactions() domain.TransactionStore { return (*memTxns)(m) }

var (
	_ domain.Stores       = (*memStore)(nil)
	_ domain.AtomicRunner = (*memStore)(nil)
)

// seed helpers bypass the stores for test setup.

func (m *memStore) putListing(l domain.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = l
}

func (m *memStore) getListing(id string) domain.Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings[id]
}

func (m *memStore) putOffer(o domain.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o
}

func (m *memStore) putBid(b domain.Bid) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bids = append(m.bids, b)
}

func (m *memStore) putTxn(t domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txns[t.ID] = t
}

func (m *memStore) getTxn(id string) domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txns[id]
}

func (m *memStore) allTxns() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Transaction, 0, len(m.txns))
	for _, t := range m.txns {
		out = append(out, t)
	}
	return out
}

type memListings memStore

func (m *memListings) Create(ctx context.Context, l domain.Listing) error {
	m.listings[l.ID] = l
	return nil
}

func (m *memListings) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	l, ok := m.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (m *memListings) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range m.listings {
		switch l.Status {
		case domain.ListingStatusAvailable, domain.ListingStatusAuctionScheduled, domain.ListingStatusAuctionActive:
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memListings) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range m.listings {
		if l.SellerID == sellerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memListings) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var out []string
	for _, l := range m.listings {
		if l.AuctionDue(now) || (l.Status == domain.ListingStatusAuctionActive && l.AuctionExpired(now)) {
			out = append(out, l.ID)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memListings) SetStatus(ctx context.Context, id string, status domain.ListingStatus) error {
	l, ok := m.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = status
	m.listings[id] = l
	return nil
}

func (m *memListings) SetPrice(ctx context.Context, id string, price float64) error {
	l, ok := m.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Price = price
	m.listings[id] = l
	return nil
}

func (m *memListings) MarkSold(ctx context.Context, id, buyerID string, at time.Time) error {
	l, ok := m.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = domain.ListingStatusSold
	l.SoldTo = &buyerID
	l.SoldAt = &at
	m.listings[id] = l
	return nil
}

type memBids memStore

func (m *memBids) Append(ctx context.Context, b domain.Bid) error {
	m.bids = append(m.bids, b)
	return nil
}

func (m *memBids) Head(ctx context.Context, listingID string) (domain.Bid, error) {
	var head domain.Bid
	var found bool
	for _, b := range m.bids {
		if b.ListingID != listingID {
			continue
		}
		if !found || b.Outranks(head) {
			head, found = b, true
		}
	}
	if !found {
		return domain.Bid{}, domain.ErrNotFound
	}
	return head, nil
}

func (m *memBids) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error) {
	var out []domain.Bid
	for _, b := range m.bids {
		if b.ListingID == listingID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outranks(out[j]) })
	return out, nil
}

type memOffers memStore

func (m *memOffers) Create(ctx context.Context, o domain.Offer) error {
	m.offers[o.ID] = o
	return nil
}

func (m *memOffers) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	o, ok := m.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *memOffers) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Offer, error) {
	var out []domain.Offer
	for _, o := range m.offers {
		if o.ListingID == listingID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOffers) SetStatus(ctx context.Context, id string, status domain.OfferStatus, respondedAt time.Time) error {
	o, ok := m.offers[id]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	o.RespondedAt = &respondedAt
	m.offers[id] = o
	return nil
}

type memTxns memStore

func (m *memTxns) Create(ctx context.Context, t domain.Transaction) error {
	m.txns[t.ID] = t
	return nil
}

func (m *memTxns) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	t, ok := m.txns[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return t, nil
}

func (m *memTxns) ExistsForSale(ctx context.Context, listingID string, origin domain.TxnOrigin) (bool, error) {
	for _, t := range m.txns {
		if t.ListingID == listingID && t.Origin == origin {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTxns) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.Party(userID) && t.ArchivedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTxns) SetSchedule(ctx context.Context, id string, options []domain.ScheduleOption, locations []string) error {
	t, ok := m.txns[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.ScheduleOptions = options
	t.MeetingLocations = locations
	t.Status = domain.TxnStatusWaitingForBuyer
	m.txns[id] = t
	return nil
}

func (m *memTxns) SetSelected(ctx context.Context, id string, sel domain.SelectedSchedule) error {
	t, ok := m.txns[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Selected = &sel
	t.Status = domain.TxnStatusConfirmed
	m.txns[id] = t
	return nil
}

func (m *memTxns) SetStatus(ctx context.Context, id string, status domain.TxnStatus) error {
	t, ok := m.txns[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	m.txns[id] = t
	return nil
}

func (m *memTxns) ListArchivable(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, t := range m.txns {
		if t.Status.Terminal() && t.ArchivedAt == nil && t.UpdatedAt.Before(before) {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTxns) MarkArchived(ctx context.Context, ids []string, at time.Time) error {
	for _, id := range ids {
		t, ok := m.txns[id]
		if !ok {
			continue
		}
		t.ArchivedAt = &at
		m.txns[id] = t
	}
	return nil
}

// memNotifs records dispatched notifications for assertions.
type memNotifs struct {
	mu      sync.Mutex
	records []domain.Notification
}

func (m *memNotifs) Create(ctx context.Context, n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, n)
	return nil
}

func (m *memNotifs) ListByUser(ctx context.Context, userID string, unreadOnly bool, opts domain.ListOpts) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.records {
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifs) MarkRead(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.records {
		if n.ID == id && n.UserID == userID {
			m.records[i].Read = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memNotifs) CountUnread(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.UserID == userID && !r.Read {
			n++
		}
	}
	return n, nil
}

func (m *memNotifs) byKind(kind domain.NotifyKind) []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Notification
	for _, n := range m.records {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

var _ domain.NotificationStore = (*memNotifs)(nil)

// memBus records published events.
type memBus struct {
	mu     sync.Mutex
	events map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{events: make(map[string][][]byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[channel] = append(b.events[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Signal, error) {
	ch := make(chan domain.Signal)
	close(ch)
	return ch, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events[channel])
}

var _ domain.SignalBus = (*memBus)(nil)

// denyLimiter rejects every request.
type denyLimiter struct{}

func (denyLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, nil
}

// memLocks is a single-process lock manager.
type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

var _ domain.LockManager = (*memLocks)(nil)
