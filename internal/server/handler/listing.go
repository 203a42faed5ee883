package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/server/middleware"
	"github.com/jwkoh/campustrade/internal/service"
)

// ListingService defines what the listing handler needs from the service
// layer.
type ListingService interface {
	Create(ctx context.Context, in service.NewListingInput) (domain.Listing, error)
	Get(ctx context.Context, id string) (domain.Listing, error)
	ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error)
	ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error)
	Delist(ctx context.Context, id, actorID string) error
}

// ListingHandler serves listing CRUD endpoints.
type ListingHandler struct {
	listings ListingService
	logger   *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings ListingService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{listings: listings, logger: logger}
}

type createListingRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Price        float64    `json:"price"`
	Mode         string     `json:"mode"`
	AuctionStart *time.Time `json:"auction_start,omitempty"`
	AuctionEnd   *time.Time `json:"auction_end,omitempty"`
}

type listingResponse struct {
	ID           string     `json:"id"`
	SellerID     string     `json:"seller_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Price        float64    `json:"price"`
	Mode         string     `json:"mode"`
	Status       string     `json:"status"`
	AuctionStart *time.Time `json:"auction_start,omitempty"`
	AuctionEnd   *time.Time `json:"auction_end,omitempty"`
	SoldTo       *string    `json:"sold_to,omitempty"`
	SoldAt       *time.Time `json:"sold_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toListingResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ID:           l.ID,
		SellerID:     l.SellerID,
		Title:        l.Title,
		Description:  l.Description,
		Price:        l.Price,
		Mode:         string(l.Mode),
		Status:       string(l.Status),
		AuctionStart: l.AuctionStart,
		AuctionEnd:   l.AuctionEnd,
		SoldTo:       l.SoldTo,
		SoldAt:       l.SoldAt,
		CreatedAt:    l.CreatedAt,
	}
}

func toListingResponses(ls []domain.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(ls))
	for _, l := range ls {
		out = append(out, toListingResponse(l))
	}
	return out
}

// CreateListing creates a listing owned by the caller.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req createListingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	l, err := h.listings.Create(r.Context(), service.NewListingInput{
		SellerID:     userID,
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		Mode:         domain.SaleMode(req.Mode),
		AuctionStart: req.AuctionStart,
		AuctionEnd:   req.AuctionEnd,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toListingResponse(l))
}

// ListListings returns active listings, or the caller's own when
// ?seller=me.
// GET /api/listings?seller=me&limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		ls  []domain.Listing
		err error
	)
	if r.URL.Query().Get("seller") == "me" {
		userID := middleware.UserID(r)
		if !requireUser(w, userID) {
			return
		}
		ls, err = h.listings.ListBySeller(r.Context(), userID, opts)
	} else {
		ls, err = h.listings.ListActive(r.Context(), opts)
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": toListingResponses(ls)})
}

// GetListing returns one listing. Reading an expired auction settles it
// first, so the response always reflects the clock.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	l, err := h.listings.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toListingResponse(l))
}

// DelistListing withdraws the caller's listing from sale.
// DELETE /api/listings/{id}
func (h *ListingHandler) DelistListing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	id := r.PathValue("id")
	if err := h.listings.Delist(r.Context(), id, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "delisted",
		"listing_id": id,
	})
}
