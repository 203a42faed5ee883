package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/server/middleware"
)

// ScheduleService defines the scheduling handshake operations the handler
// exposes.
type ScheduleService interface {
	Get(ctx context.Context, id, actorID string) (domain.Transaction, error)
	ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error)
	Propose(ctx context.Context, txnID, sellerID string, options []domain.ScheduleOption, locations []string) (domain.Transaction, error)
	Select(ctx context.Context, txnID, buyerID, date, slot, location string) (domain.Transaction, error)
	Advance(ctx context.Context, txnID, actorID string, next domain.TxnStatus) (domain.Transaction, error)
	Slots(date string) ([]string, error)
}

// ScheduleHandler serves the transaction and meeting-handshake endpoints.
type ScheduleHandler struct {
	schedules ScheduleService
	logger    *slog.Logger
}

// NewScheduleHandler creates a ScheduleHandler.
func NewScheduleHandler(schedules ScheduleService, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules, logger: logger}
}

type transactionResponse struct {
	ID               string                    `json:"id"`
	ListingID        string                    `json:"listing_id"`
	BuyerID          string                    `json:"buyer_id"`
	SellerID         string                    `json:"seller_id"`
	Amount           float64                   `json:"amount"`
	Origin           string                    `json:"origin"`
	Status           string                    `json:"status"`
	ScheduleOptions  []domain.ScheduleOption   `json:"schedule_options"`
	MeetingLocations []string                  `json:"meeting_locations"`
	Selected         *domain.SelectedSchedule  `json:"selected_schedule,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
}

func toTransactionResponse(t domain.Transaction) transactionResponse {
	options := t.ScheduleOptions
	if options == nil {
		options = []domain.ScheduleOption{}
	}
	locations := t.MeetingLocations
	if locations == nil {
		locations = []string{}
	}
	return transactionResponse{
		ID:               t.ID,
		ListingID:        t.ListingID,
		BuyerID:          t.BuyerID,
		SellerID:         t.SellerID,
		Amount:           t.Amount,
		Origin:           string(t.Origin),
		Status:           string(t.Status),
		ScheduleOptions:  options,
		MeetingLocations: locations,
		Selected:         t.Selected,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

// ListTransactions returns the caller's transactions as buyer or seller.
// GET /api/transactions
func (h *ScheduleHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	ts, err := h.schedules.ListByUser(r.Context(), userID, parseListOpts(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}

// GetTransaction returns one transaction to one of its parties.
// GET /api/transactions/{id}
func (h *ScheduleHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	t, err := h.schedules.Get(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

type proposeScheduleRequest struct {
	Options   []domain.ScheduleOption `json:"options"`
	Locations []string                `json:"locations"`
}

// ProposeSchedule writes the seller's meeting proposal.
// POST /api/transactions/{id}/schedule
func (h *ScheduleHandler) ProposeSchedule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req proposeScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.schedules.Propose(r.Context(), r.PathValue("id"), userID, req.Options, req.Locations)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

type selectScheduleRequest struct {
	Date     string `json:"date"`
	Slot     string `json:"slot"`
	Location string `json:"location"`
}

// SelectSchedule records the buyer's chosen meeting triple.
// POST /api/transactions/{id}/selection
func (h *ScheduleHandler) SelectSchedule(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req selectScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.schedules.Select(r.Context(), r.PathValue("id"), userID, req.Date, req.Slot, req.Location)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

type advanceStatusRequest struct {
	Status string `json:"status"`
}

// AdvanceStatus completes or cancels a transaction.
// POST /api/transactions/{id}/status
func (h *ScheduleHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if !requireUser(w, userID) {
		return
	}

	var req advanceStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	t, err := h.schedules.Advance(r.Context(), r.PathValue("id"), userID, domain.TxnStatus(req.Status))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

// ListSlots returns the selectable meeting slots for a date, filtered
// against the current clock.
// GET /api/schedule/slots?date=2026-09-10
func (h *ScheduleHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "date query parameter required",
		})
		return
	}

	slots, err := h.schedules.Slots(date)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"slots": slots,
	})
}
