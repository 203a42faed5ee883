package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwkoh/campustrade/internal/domain"
)

func pendingTxn(env *testEnv, id string) {
	now := time.Now().UTC()
	env.store.putTxn(domain.Transaction{
		ID: id, ListingID: "l1", BuyerID: "buyer", SellerID: "seller",
		Amount: 80, Origin: domain.TxnOriginDirectPurchase,
		Status: domain.TxnStatusPending, CreatedAt: now, UpdatedAt: now,
	})
}

func proposal() ([]domain.ScheduleOption, []string) {
	return []domain.ScheduleOption{
		{Date: "2026-09-10", Slots: []string{"10:00", "14:00"}},
		{Date: "2026-09-11", Slots: []string{"18:00"}},
	}, []string{"library entrance", "north gate"}
}

func TestPropose_HandsOffToBuyer(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	options, locations := proposal()

	txn, err := env.schedules.Propose(context.Background(), "t1", "seller", options, locations)
	require.NoError(t, err)
	assert.Equal(t, domain.TxnStatusWaitingForBuyer, txn.Status)
	assert.Equal(t, options, txn.ScheduleOptions)
	assert.Equal(t, locations, txn.MeetingLocations)

	changed := env.notifs.byKind(domain.NotifyScheduleChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "buyer", changed[0].UserID)
	assert.Equal(t, 1, env.bus.count("txn:buyer"))
	assert.Equal(t, 1, env.bus.count("txn:seller"))
}

func TestHandshakeEventsReachBothPartyChannels(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()
	options, locations := proposal()

	_, err := env.schedules.Propose(ctx, "t1", "seller", options, locations)
	require.NoError(t, err)
	_, err = env.schedules.Select(ctx, "t1", "buyer", "2026-09-10", "14:00", "north gate")
	require.NoError(t, err)
	_, err = env.schedules.Advance(ctx, "t1", "seller", domain.TxnStatusCompleted)
	require.NoError(t, err)

	// One event per step on each party's own channel; nothing is keyed by
	// transaction ID, so a single subscription covers the whole list.
	assert.Equal(t, 3, env.bus.count("txn:buyer"))
	assert.Equal(t, 3, env.bus.count("txn:seller"))
	assert.Equal(t, 0, env.bus.count("txn:t1"))
}

func TestPropose_Validation(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()
	options, locations := proposal()

	cases := []struct {
		name      string
		options   []domain.ScheduleOption
		locations []string
	}{
		{"no options", nil, locations},
		{"no locations", options, nil},
		{"too many locations", options, []string{"a", "b", "c", "d"}},
		{"blank location", options, []string{"  "}},
		{"option without slots", []domain.ScheduleOption{{Date: "2026-09-10"}}, locations},
		{"bad date", []domain.ScheduleOption{{Date: "sep 10", Slots: []string{"10:00"}}}, locations},
		{"slot outside window", []domain.ScheduleOption{{Date: "2026-09-10", Slots: []string{"06:00"}}}, locations},
		{"half-hour slot", []domain.ScheduleOption{{Date: "2026-09-10", Slots: []string{"10:30"}}}, locations},
		{"slot with trailing text", []domain.ScheduleOption{{Date: "2026-09-10", Slots: []string{"10:00garbage"}}}, locations},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.schedules.Propose(ctx, "t1", "seller", tc.options, tc.locations)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestPropose_Guards(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()
	options, locations := proposal()

	_, err := env.schedules.Propose(ctx, "t1", "buyer", options, locations)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.schedules.Propose(ctx, "t1", "seller", options, locations)
	require.NoError(t, err)
	_, err = env.schedules.Propose(ctx, "t1", "seller", options, locations)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestSelect_ConfirmsProposedTriple(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()
	options, locations := proposal()
	_, err := env.schedules.Propose(ctx, "t1", "seller", options, locations)
	require.NoError(t, err)

	txn, err := env.schedules.Select(ctx, "t1", "buyer", "2026-09-10", "14:00", "north gate")
	require.NoError(t, err)
	assert.Equal(t, domain.TxnStatusConfirmed, txn.Status)
	require.NotNil(t, txn.Selected)
	assert.Equal(t, "2026-09-10", txn.Selected.Date)
	assert.Equal(t, "14:00", txn.Selected.Slot)
	assert.Equal(t, "north gate", txn.Selected.Location)

	confirmed := env.notifs.byKind(domain.NotifyOrderConfirmed)
	require.Len(t, confirmed, 1)
	assert.Equal(t, "seller", confirmed[0].UserID)
}

func TestSelect_RejectsUnproposedTriples(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()
	options, locations := proposal()
	_, err := env.schedules.Propose(ctx, "t1", "seller", options, locations)
	require.NoError(t, err)

	cases := []struct {
		name                 string
		date, slot, location string
	}{
		{"unlisted date", "2026-09-12", "10:00", "north gate"},
		{"slot not under that date", "2026-09-11", "10:00", "north gate"},
		{"unlisted location", "2026-09-10", "10:00", "south gate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.schedules.Select(ctx, "t1", "buyer", tc.date, tc.slot, tc.location)
			assert.ErrorIs(t, err, domain.ErrInvalidSelection)
		})
	}

	assert.Equal(t, domain.TxnStatusWaitingForBuyer, env.store.getTxn("t1").Status)
}

func TestSelect_Guards(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()

	// Selecting before any proposal is a state error, not a selection error.
	_, err := env.schedules.Select(ctx, "t1", "buyer", "2026-09-10", "10:00", "north gate")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	options, locations := proposal()
	_, err = env.schedules.Propose(ctx, "t1", "seller", options, locations)
	require.NoError(t, err)

	_, err = env.schedules.Select(ctx, "t1", "seller", "2026-09-10", "10:00", "north gate")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAdvance_CompletedRequiresConfirmed(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()

	_, err := env.schedules.Advance(ctx, "t1", "seller", domain.TxnStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	options, locations := proposal()
	_, err = env.schedules.Propose(ctx, "t1", "seller", options, locations)
	require.NoError(t, err)
	_, err = env.schedules.Select(ctx, "t1", "buyer", "2026-09-10", "10:00", "north gate")
	require.NoError(t, err)

	txn, err := env.schedules.Advance(ctx, "t1", "buyer", domain.TxnStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.TxnStatusCompleted, txn.Status)

	completed := env.notifs.byKind(domain.NotifyOrderCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "seller", completed[0].UserID)
}

func TestAdvance_CancelFromAnyNonTerminalState(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()

	txn, err := env.schedules.Advance(ctx, "t1", "seller", domain.TxnStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, domain.TxnStatusCancelled, txn.Status)

	cancelled := env.notifs.byKind(domain.NotifyOrderCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "buyer", cancelled[0].UserID)

	// Terminal states admit nothing further.
	_, err = env.schedules.Advance(ctx, "t1", "buyer", domain.TxnStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAdvance_Guards(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()

	_, err := env.schedules.Advance(ctx, "t1", "stranger", domain.TxnStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.schedules.Advance(ctx, "t1", "seller", domain.TxnStatusWaitingForBuyer)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGetAndList_PartyOnly(t *testing.T) {
	env := newTestEnv()
	pendingTxn(env, "t1")
	ctx := context.Background()

	_, err := env.schedules.Get(ctx, "t1", "stranger")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	txn, err := env.schedules.Get(ctx, "t1", "buyer")
	require.NoError(t, err)
	assert.Equal(t, "t1", txn.ID)

	ts, err := env.schedules.ListByUser(ctx, "seller", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, ts, 1)
}

func TestSlots_RecomputedAgainstClock(t *testing.T) {
	env := newTestEnv()

	tomorrow := time.Now().Add(24 * time.Hour).Format(domain.ScheduleDateLayout)
	slots, err := env.schedules.Slots(tomorrow)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSlotWindow.Catalog(), slots)

	yesterday := time.Now().Add(-24 * time.Hour).Format(domain.ScheduleDateLayout)
	slots, err = env.schedules.Slots(yesterday)
	require.NoError(t, err)
	assert.Empty(t, slots)

	_, err = env.schedules.Slots("next tuesday")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
