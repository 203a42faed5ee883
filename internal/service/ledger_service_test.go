package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwkoh/campustrade/internal/domain"
)

func activeAuction(env *testEnv, id, seller string, price float64) {
	now := time.Now().UTC()
	env.store.putListing(auctionListing(id, seller, price,
		now.Add(-time.Hour), now.Add(time.Hour), domain.ListingStatusAuctionActive))
}

func TestPlaceBid_FirstBidMustBeatListingPrice(t *testing.T) {
	env := newTestEnv()
	activeAuction(env, "l1", "seller", 100)
	ctx := context.Background()

	_, err := env.ledger.PlaceBid(ctx, "l1", "alice", 100)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)

	bid, err := env.ledger.PlaceBid(ctx, "l1", "alice", 101)
	require.NoError(t, err)
	assert.Equal(t, 101.0, bid.Amount)
}

func TestPlaceBid_MustBeatHead(t *testing.T) {
	env := newTestEnv()
	activeAuction(env, "l1", "seller", 100)
	ctx := context.Background()

	_, err := env.ledger.PlaceBid(ctx, "l1", "alice", 400)
	require.NoError(t, err)
	_, err = env.ledger.PlaceBid(ctx, "l1", "bob", 600)
	require.NoError(t, err)

	// An amount that beat the old head loses once a higher bid commits first.
	_, err = env.ledger.PlaceBid(ctx, "l1", "carol", 500)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)
	_, err = env.ledger.PlaceBid(ctx, "l1", "bob", 600)
	assert.ErrorIs(t, err, domain.ErrBidTooLow)

	bids, err := env.ledger.ListBids(ctx, "l1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bids, 2)
	for i := 1; i < len(bids); i++ {
		assert.Greater(t, bids[i-1].Amount, bids[i].Amount)
	}
}

func TestPlaceBid_SellerCannotBid(t *testing.T) {
	env := newTestEnv()
	activeAuction(env, "l1", "seller", 100)

	_, err := env.ledger.PlaceBid(context.Background(), "l1", "seller", 200)
	assert.ErrorIs(t, err, domain.ErrInvalidBidder)
}

func TestPlaceBid_ClosedListing(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()
	ctx := context.Background()

	env.store.putListing(auctionListing("expired", "seller", 100,
		now.Add(-2*time.Hour), now.Add(-time.Minute), domain.ListingStatusAuctionActive))
	_, err := env.ledger.PlaceBid(ctx, "expired", "alice", 200)
	assert.ErrorIs(t, err, domain.ErrListingClosed)

	env.store.putListing(domain.Listing{
		ID: "direct", SellerID: "seller", Title: "lamp", Price: 20,
		Mode: domain.SaleModeDirect, Status: domain.ListingStatusAvailable,
	})
	_, err = env.ledger.PlaceBid(ctx, "direct", "alice", 30)
	assert.ErrorIs(t, err, domain.ErrListingClosed)

	env.store.putListing(auctionListing("future", "seller", 100,
		now.Add(time.Hour), now.Add(2*time.Hour), domain.ListingStatusAuctionScheduled))
	_, err = env.ledger.PlaceBid(ctx, "future", "alice", 200)
	assert.ErrorIs(t, err, domain.ErrListingClosed)
}

func TestPlaceBid_OpensDueScheduledAuction(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()
	env.store.putListing(auctionListing("l1", "seller", 100,
		now.Add(-time.Minute), now.Add(time.Hour), domain.ListingStatusAuctionScheduled))

	bid, err := env.ledger.PlaceBid(context.Background(), "l1", "alice", 150)
	require.NoError(t, err)
	assert.Equal(t, 150.0, bid.Amount)
	assert.Equal(t, domain.ListingStatusAuctionActive, env.store.getListing("l1").Status)
}

func TestPlaceBid_NotifiesOutbidAndSeller(t *testing.T) {
	env := newTestEnv()
	activeAuction(env, "l1", "seller", 100)
	ctx := context.Background()

	_, err := env.ledger.PlaceBid(ctx, "l1", "alice", 150)
	require.NoError(t, err)
	_, err = env.ledger.PlaceBid(ctx, "l1", "bob", 200)
	require.NoError(t, err)

	outbid := env.notifs.byKind(domain.NotifyBidOutbid)
	require.Len(t, outbid, 1)
	assert.Equal(t, "alice", outbid[0].UserID)
	assert.Len(t, env.notifs.byKind(domain.NotifyBidPlaced), 2)
	assert.Equal(t, 2, env.bus.count("bids:l1"))
}

func TestPlaceBid_RateLimited(t *testing.T) {
	env := newTestEnv()
	activeAuction(env, "l1", "seller", 100)
	limited := NewLedgerService(env.store, env.store, denyLimiter{}, env.disp, env.bus, testLogger())

	_, err := limited.PlaceBid(context.Background(), "l1", "alice", 150)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestPlaceOffer_MustUndercutPrice(t *testing.T) {
	env := newTestEnv()
	env.store.putListing(domain.Listing{
		ID: "l1", SellerID: "seller", Title: "lamp", Price: 100,
		Mode: domain.SaleModeDirect, Status: domain.ListingStatusAvailable,
	})
	ctx := context.Background()

	_, err := env.ledger.PlaceOffer(ctx, "l1", "alice", 100)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	offer, err := env.ledger.PlaceOffer(ctx, "l1", "alice", 80)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferStatusPending, offer.Status)

	received := env.notifs.byKind(domain.NotifyOfferReceived)
	require.Len(t, received, 1)
	assert.Equal(t, "seller", received[0].UserID)
}

func TestPlaceOffer_Rejections(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.store.putListing(domain.Listing{
		ID: "l1", SellerID: "seller", Title: "lamp", Price: 100,
		Mode: domain.SaleModeDirect, Status: domain.ListingStatusAvailable,
	})
	_, err := env.ledger.PlaceOffer(ctx, "l1", "seller", 50)
	assert.ErrorIs(t, err, domain.ErrInvalidBidder)

	sold := "bob"
	env.store.putListing(domain.Listing{
		ID: "sold", SellerID: "seller", Title: "desk", Price: 100,
		Mode: domain.SaleModeDirect, Status: domain.ListingStatusSold, SoldTo: &sold,
	})
	_, err = env.ledger.PlaceOffer(ctx, "sold", "alice", 50)
	assert.ErrorIs(t, err, domain.ErrAlreadySold)

	activeAuction(env, "auction", "seller", 100)
	_, err = env.ledger.PlaceOffer(ctx, "auction", "alice", 50)
	assert.ErrorIs(t, err, domain.ErrListingClosed)
}
