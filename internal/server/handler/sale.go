package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/server/middleware"
)

// LedgerService defines what the sale handler needs for bids and offers.
type LedgerService interface {
	PlaceBid(ctx context.Context, listingID, bidderID string, amount float64) (domain.Bid, error)
	PlaceOffer(ctx context.Context, listingID, buyerID string, amount float64) (domain.Offer, error)
	ListBids(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error)
	ListOffers(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Offer, error)
}

// SaleService defines the sale transitions the handler exposes.
type SaleService interface {
	Purchase(ctx context.Context, listingID, buyerID string) (domain.Transaction, error)
	RespondToOffer(ctx context.Context, offerID, responderID string, decision domain.OfferDecision) (domain.Offer, error)
}

// SaleHandler serves the purchase, bid and offer endpoints.
type SaleHandler struct {
	ledger LedgerService
	sales  SaleService
	logger *slog.Logger
}

// NewSaleHandler creates a SaleHandler.
func NewSaleHandler(ledger LedgerService, sales SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{ledger: ledger, sales: sales, logger: logger}
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

type bidResponse struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
}

type offerResponse struct {
	ID          string     `json:"id"`
	ListingID   string     `json:"listing_id"`
	BuyerID     string     `json:"buyer_id"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

func toBidResponse(b domain.Bid) bidResponse {
	return bidResponse{
		ID:        b.ID,
		ListingID: b.ListingID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		PlacedAt:  b.PlacedAt,
	}
}

func toOfferResponse(o domain.Offer) offerResponse {
	return offerResponse{
		ID:          o.ID,
		ListingID:   o.ListingID,
		BuyerID:     o.BuyerID,
		Amount:      o.Amount,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		RespondedAt: o.RespondedAt,
	}
}

// Purchase buys a listing directly at the asking price.
// POST /api/listings/{id}/purchase
func (h *SaleHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	txn, err := h.sales.Purchase(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(txn))
}

// PlaceBid appends a bid to the listing's auction ledger.
// POST /api/listings/{id}/bids
func (h *SaleHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	bid, err := h.ledger.PlaceBid(r.Context(), r.PathValue("id"), userID, req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBidResponse(bid))
}

// ListBids returns the listing's bid ledger, head first.
// GET /api/listings/{id}/bids
func (h *SaleHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.ledger.ListBids(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bids": out})
}

// PlaceOffer records a negotiation offer below the asking price.
// POST /api/listings/{id}/offers
func (h *SaleHandler) PlaceOffer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req amountRequest
	if !decodeBody(w, r, &req) {
		return
	}

	offer, err := h.ledger.PlaceOffer(r.Context(), r.PathValue("id"), userID, req.Amount)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferResponse(offer))
}

// ListOffers returns the offers recorded against a listing.
// GET /api/listings/{id}/offers
func (h *SaleHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.ledger.ListOffers(r.Context(), r.PathValue("id"), parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]offerResponse, 0, len(offers))
	for _, o := range offers {
		out = append(out, toOfferResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": out})
}

type respondOfferRequest struct {
	Decision string `json:"decision"`
}

// RespondToOffer accepts or rejects a pending offer as the listing's seller.
// POST /api/offers/{id}/response
func (h *SaleHandler) RespondToOffer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req respondOfferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	offer, err := h.sales.RespondToOffer(r.Context(), r.PathValue("id"), userID, domain.OfferDecision(req.Decision))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferResponse(offer))
}
