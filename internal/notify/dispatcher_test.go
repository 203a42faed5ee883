package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwkoh/campustrade/internal/domain"
)

type stubNotifStore struct {
	mu      sync.Mutex
	created []domain.Notification
	failing bool
}

func (s *stubNotifStore) Create(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store down")
	}
	s.created = append(s.created, n)
	return nil
}

func (s *stubNotifStore) ListByUser(context.Context, string, bool, domain.ListOpts) ([]domain.Notification, error) {
	return nil, nil
}
func (s *stubNotifStore) MarkRead(context.Context, string, string) error { return nil }
func (s *stubNotifStore) CountUnread(context.Context, string) (int64, error) {
	return 0, nil
}

type stubBus struct {
	published map[string][][]byte
	err       error
}

func (b *stubBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *stubBus) Subscribe(context.Context, string) (<-chan domain.Signal, error) {
	return nil, errors.New("not implemented")
}

type failingSender struct{}

func (failingSender) Send(context.Context, string, string) error { return errors.New("boom") }
func (failingSender) Name() string                               { return "failing" }

func TestDispatcher_PersistsAndPublishes(t *testing.T) {
	store := &stubNotifStore{}
	bus := &stubBus{}
	d := NewDispatcher(store, bus, nil, slog.Default())

	d.Dispatch(context.Background(), "buyer-1", domain.NotifyPurchaseSuccess, "listing-1", "you bought it")

	require.Len(t, store.created, 1)
	n := store.created[0]
	assert.Equal(t, "buyer-1", n.UserID)
	assert.Equal(t, domain.NotifyPurchaseSuccess, n.Kind)
	assert.Equal(t, "listing-1", n.SubjectID)
	assert.False(t, n.Read)
	assert.NotEmpty(t, n.ID)

	assert.Len(t, bus.published["notify:buyer-1"], 1)
}

func TestDispatcher_SwallowsAllFailures(t *testing.T) {
	// Persist failure: no event published, no panic, nothing to observe.
	store := &stubNotifStore{failing: true}
	bus := &stubBus{}
	d := NewDispatcher(store, bus, []Sender{failingSender{}}, slog.Default())

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "u1", domain.NotifyItemSold, "l1", "sold")
	})
	assert.Empty(t, bus.published)

	// Bus and sender failures: the record is still persisted.
	store = &stubNotifStore{}
	d = NewDispatcher(store, &stubBus{err: errors.New("bus down")}, []Sender{failingSender{}}, slog.Default())

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), "u1", domain.NotifyItemSold, "l1", "sold")
	})
	assert.Len(t, store.created, 1)
}
