package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwkoh/campustrade/internal/domain"
)

func directListing(env *testEnv, id, seller string, price float64) {
	env.store.putListing(domain.Listing{
		ID: id, SellerID: seller, Title: "desk", Price: price,
		Mode: domain.SaleModeDirect, Status: domain.ListingStatusAvailable,
	})
}

func TestPurchase_Succeeds(t *testing.T) {
	env := newTestEnv()
	directListing(env, "l1", "seller", 120)

	txn, err := env.sales.Purchase(context.Background(), "l1", "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.TxnOriginDirectPurchase, txn.Origin)
	assert.Equal(t, domain.TxnStatusPending, txn.Status)
	assert.Equal(t, 120.0, txn.Amount)
	assert.Equal(t, "alice", txn.BuyerID)
	assert.Equal(t, "seller", txn.SellerID)

	l := env.store.getListing("l1")
	assert.Equal(t, domain.ListingStatusSold, l.Status)
	require.NotNil(t, l.SoldTo)
	assert.Equal(t, "alice", *l.SoldTo)
	assert.NotNil(t, l.SoldAt)

	assert.Len(t, env.notifs.byKind(domain.NotifyItemSold), 1)
	assert.Len(t, env.notifs.byKind(domain.NotifyPurchaseSuccess), 1)
	assert.Len(t, env.notifs.byKind(domain.NotifyScheduleReminder), 1)
	assert.Equal(t, 1, env.bus.count("listing:l1"))

	// New-transaction discovery rides each party's own channel.
	assert.Equal(t, 1, env.bus.count("txn:alice"))
	assert.Equal(t, 1, env.bus.count("txn:seller"))
}

func TestPurchase_SecondBuyerLoses(t *testing.T) {
	env := newTestEnv()
	directListing(env, "l1", "seller", 120)
	ctx := context.Background()

	_, err := env.sales.Purchase(ctx, "l1", "alice")
	require.NoError(t, err)
	_, err = env.sales.Purchase(ctx, "l1", "bob")
	assert.ErrorIs(t, err, domain.ErrAlreadySold)

	assert.Len(t, env.store.allTxns(), 1)
}

func TestPurchase_SelfAndClosed(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	directListing(env, "l1", "seller", 120)
	_, err := env.sales.Purchase(ctx, "l1", "seller")
	assert.ErrorIs(t, err, domain.ErrSelfPurchase)

	activeAuction(env, "auction", "seller", 100)
	_, err = env.sales.Purchase(ctx, "auction", "alice")
	assert.ErrorIs(t, err, domain.ErrListingClosed)

	env.store.putListing(domain.Listing{
		ID: "gone", SellerID: "seller", Title: "desk", Price: 10,
		Mode: domain.SaleModeDirect, Status: domain.ListingStatusDelisted,
	})
	_, err = env.sales.Purchase(ctx, "gone", "alice")
	assert.ErrorIs(t, err, domain.ErrListingClosed)
}

func TestRespondToOffer_AcceptSellsAtOfferAmount(t *testing.T) {
	env := newTestEnv()
	directListing(env, "l1", "seller", 100)
	env.store.putOffer(domain.Offer{
		ID: "o1", ListingID: "l1", BuyerID: "alice", Amount: 80,
		Status: domain.OfferStatusPending, CreatedAt: time.Now().UTC(),
	})

	offer, err := env.sales.RespondToOffer(context.Background(), "o1", "seller", domain.OfferDecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusAccepted, offer.Status)
	assert.NotNil(t, offer.RespondedAt)

	l := env.store.getListing("l1")
	assert.Equal(t, domain.ListingStatusSold, l.Status)
	assert.Equal(t, 80.0, l.Price)
	require.NotNil(t, l.SoldTo)
	assert.Equal(t, "alice", *l.SoldTo)

	txns := env.store.allTxns()
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TxnOriginNegotiation, txns[0].Origin)
	assert.Equal(t, 80.0, txns[0].Amount)

	accepted := env.notifs.byKind(domain.NotifyOfferAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, "alice", accepted[0].UserID)

	assert.Equal(t, 1, env.bus.count("txn:alice"))
	assert.Equal(t, 1, env.bus.count("txn:seller"))
}

func TestRespondToOffer_Reject(t *testing.T) {
	env := newTestEnv()
	directListing(env, "l1", "seller", 100)
	env.store.putOffer(domain.Offer{
		ID: "o1", ListingID: "l1", BuyerID: "alice", Amount: 80,
		Status: domain.OfferStatusPending, CreatedAt: time.Now().UTC(),
	})

	offer, err := env.sales.RespondToOffer(context.Background(), "o1", "seller", domain.OfferDecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusRejected, offer.Status)

	// Rejection never touches the listing.
	l := env.store.getListing("l1")
	assert.Equal(t, domain.ListingStatusAvailable, l.Status)
	assert.Equal(t, 100.0, l.Price)
	assert.Empty(t, env.store.allTxns())

	rejected := env.notifs.byKind(domain.NotifyOfferRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "alice", rejected[0].UserID)
}

func TestRespondToOffer_Guards(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	directListing(env, "l1", "seller", 100)
	env.store.putOffer(domain.Offer{
		ID: "o1", ListingID: "l1", BuyerID: "alice", Amount: 80,
		Status: domain.OfferStatusPending, CreatedAt: time.Now().UTC(),
	})

	_, err := env.sales.RespondToOffer(ctx, "o1", "alice", domain.OfferDecisionAccept)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.sales.RespondToOffer(ctx, "o1", "seller", domain.OfferDecision("maybe"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.sales.RespondToOffer(ctx, "o1", "seller", domain.OfferDecisionReject)
	require.NoError(t, err)
	_, err = env.sales.RespondToOffer(ctx, "o1", "seller", domain.OfferDecisionAccept)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestRespondToOffer_AcceptAfterSale(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	directListing(env, "l1", "seller", 100)
	env.store.putOffer(domain.Offer{
		ID: "o1", ListingID: "l1", BuyerID: "alice", Amount: 80,
		Status: domain.OfferStatusPending, CreatedAt: time.Now().UTC(),
	})
	env.store.putOffer(domain.Offer{
		ID: "o2", ListingID: "l1", BuyerID: "bob", Amount: 90,
		Status: domain.OfferStatusPending, CreatedAt: time.Now().UTC(),
	})

	_, err := env.sales.RespondToOffer(ctx, "o2", "seller", domain.OfferDecisionAccept)
	require.NoError(t, err)

	// The remaining pending offer can no longer be accepted.
	_, err = env.sales.RespondToOffer(ctx, "o1", "seller", domain.OfferDecisionAccept)
	assert.ErrorIs(t, err, domain.ErrAlreadySold)
	assert.Len(t, env.store.allTxns(), 1)
}
