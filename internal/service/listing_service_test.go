package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwkoh/campustrade/internal/domain"
)

func TestCreateListing_Direct(t *testing.T) {
	env := newTestEnv()

	l, err := env.listings.Create(context.Background(), NewListingInput{
		SellerID: "seller", Title: "desk lamp", Price: 15, Mode: domain.SaleModeDirect,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID)
	assert.Equal(t, domain.ListingStatusAvailable, l.Status)
	assert.Equal(t, l, env.store.getListing(l.ID))
}

func TestCreateListing_AuctionStatusFollowsWindow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now().UTC()

	futureStart := now.Add(time.Hour)
	futureEnd := now.Add(2 * time.Hour)
	l, err := env.listings.Create(ctx, NewListingInput{
		SellerID: "seller", Title: "bike", Price: 100, Mode: domain.SaleModeAuction,
		AuctionStart: &futureStart, AuctionEnd: &futureEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusAuctionScheduled, l.Status)

	pastStart := now.Add(-time.Hour)
	l, err = env.listings.Create(ctx, NewListingInput{
		SellerID: "seller", Title: "bike", Price: 100, Mode: domain.SaleModeAuction,
		AuctionStart: &pastStart, AuctionEnd: &futureEnd,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusAuctionActive, l.Status)
}

func TestCreateListing_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := time.Now().UTC()
	start := now.Add(time.Hour)
	end := now.Add(2 * time.Hour)

	cases := []struct {
		name string
		in   NewListingInput
	}{
		{"missing title", NewListingInput{SellerID: "s", Price: 10, Mode: domain.SaleModeDirect}},
		{"zero price", NewListingInput{SellerID: "s", Title: "x", Mode: domain.SaleModeDirect}},
		{"direct with window", NewListingInput{SellerID: "s", Title: "x", Price: 10, Mode: domain.SaleModeDirect, AuctionStart: &start, AuctionEnd: &end}},
		{"auction without window", NewListingInput{SellerID: "s", Title: "x", Price: 10, Mode: domain.SaleModeAuction}},
		{"auction start after end", NewListingInput{SellerID: "s", Title: "x", Price: 10, Mode: domain.SaleModeAuction, AuctionStart: &end, AuctionEnd: &start}},
		{"unknown mode", NewListingInput{SellerID: "s", Title: "x", Price: 10, Mode: "raffle"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.listings.Create(ctx, tc.in)
			assert.Equal(t, domain.KindValidation, domain.Kind(err))
		})
	}
}

func TestGet_FinalizesExpiredAuctionOnRead(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()
	env.store.putListing(auctionListing("l1", "seller", 100,
		now.Add(-2*time.Hour), now.Add(-time.Minute), domain.ListingStatusAuctionActive))
	env.store.putBid(domain.Bid{ID: "b1", ListingID: "l1", BidderID: "alice", Amount: 150, PlacedAt: now.Add(-time.Hour)})

	l, err := env.listings.Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusSold, l.Status)
	require.NotNil(t, l.SoldTo)
	assert.Equal(t, "alice", *l.SoldTo)
	assert.Len(t, env.store.allTxns(), 1)
}

func TestGet_ActivatesDueAuctionOnRead(t *testing.T) {
	env := newTestEnv()
	now := time.Now().UTC()
	env.store.putListing(auctionListing("l1", "seller", 100,
		now.Add(-time.Minute), now.Add(time.Hour), domain.ListingStatusAuctionScheduled))

	l, err := env.listings.Get(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, domain.ListingStatusAuctionActive, l.Status)
}

func TestGet_NotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.listings.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDelist(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	directListing(env, "l1", "seller", 50)

	err := env.listings.Delist(ctx, "l1", "stranger")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, env.listings.Delist(ctx, "l1", "seller"))
	assert.Equal(t, domain.ListingStatusDelisted, env.store.getListing("l1").Status)

	err = env.listings.Delist(ctx, "l1", "seller")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	directListing(env, "l2", "seller", 50)
	_, err = env.sales.Purchase(ctx, "l2", "alice")
	require.NoError(t, err)
	err = env.listings.Delist(ctx, "l2", "seller")
	assert.ErrorIs(t, err, domain.ErrAlreadySold)
}
