package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwkoh/campustrade/internal/domain"
	"github.com/jwkoh/campustrade/internal/notify"
)

// ScheduleService drives the post-sale meeting handshake on a transaction:
// the seller proposes dates, slots and places, the buyer picks one triple,
// and either party walks the status forward to completed or out to
// cancelled. Role checks use the transaction's own buyer/seller fields; the
// caller's identity is always an explicit argument.
type ScheduleService struct {
	stores     domain.Stores
	atomic     domain.AtomicRunner
	dispatcher *notify.Dispatcher
	bus        domain.SignalBus
	window     domain.SlotWindow
	logger     *slog.Logger
}

// NewScheduleService creates a ScheduleService. An invalid window falls back
// to the default operating hours.
func NewScheduleService(
	stores domain.Stores,
	atomic domain.AtomicRunner,
	dispatcher *notify.Dispatcher,
	bus domain.SignalBus,
	window domain.SlotWindow,
	logger *slog.Logger,
) *ScheduleService {
	if !window.Valid() {
		window = domain.DefaultSlotWindow
	}
	return &ScheduleService{
		stores:     stores,
		atomic:     atomic,
		dispatcher: dispatcher,
		bus:        bus,
		window:     window,
		logger:     logger,
	}
}

// Slots returns the selectable time slots for a date, filtered against the
// current wall clock. The result is recomputed on every call.
func (s *ScheduleService) Slots(date string) ([]string, error) {
	slots, err := s.window.AvailableSlots(date, time.Now())
	if err != nil {
		return nil, fmt.Errorf("schedule_service: slots for %q: %w", date, err)
	}
	return slots, nil
}

// Get returns a transaction to one of its parties.
func (s *ScheduleService) Get(ctx context.Context, id, actorID string) (domain.Transaction, error) {
	t, err := s.stores.Transactions().GetByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("schedule_service: get %q: %w", id, err)
	}
	if !t.Party(actorID) {
		return domain.Transaction{}, fmt.Errorf("schedule_service: get %q: %w", id, domain.ErrForbidden)
	}
	return t, nil
}

// ListByUser returns the transactions where userID is buyer or seller.
func (s *ScheduleService) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	ts, err := s.stores.Transactions().ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("schedule_service: list for %q: %w", userID, err)
	}
	return ts, nil
}

// Propose writes the seller's meeting proposal and hands the handshake to
// the buyer. Options must each carry at least one catalog slot on a parseable
// date; one to three locations are required.
func (s *ScheduleService) Propose(ctx context.Context, txnID, sellerID string, options []domain.ScheduleOption, locations []string) (domain.Transaction, error) {
	if err := s.validateProposal(options, locations); err != nil {
		return domain.Transaction{}, fmt.Errorf("schedule_service: propose on %q: %w", txnID, err)
	}

	var (
		txn   domain.Transaction
		buyer string
	)
	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		t, err := st.Transactions().GetByID(ctx, txnID)
		if err != nil {
			return err
		}
		if t.SellerID != sellerID {
			return domain.ErrForbidden
		}
		if t.Status != domain.TxnStatusPending {
			return domain.ErrInvalidState
		}
		if err := st.Transactions().SetSchedule(ctx, txnID, options, locations); err != nil {
			return err
		}
		t.ScheduleOptions = options
		t.MeetingLocations = locations
		t.Status = domain.TxnStatusWaitingForBuyer
		txn = t
		buyer = t.BuyerID
		return nil
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("schedule_service: propose on %q: %w", txnID, err)
	}

	s.dispatcher.Dispatch(ctx, buyer, domain.NotifyScheduleChanged, txnID,
		"The seller proposed meeting times. Pick one to confirm.")
	s.publish(ctx, txn)

	s.logger.InfoContext(ctx, "schedule_service: schedule proposed",
		slog.String("transaction_id", txnID),
		slog.Int("options", len(options)),
	)
	return txn, nil
}

// Select records the buyer's chosen (date, slot, location) triple and
// confirms the transaction. The triple must be one the seller proposed.
func (s *ScheduleService) Select(ctx context.Context, txnID, buyerID, date, slot, location string) (domain.Transaction, error) {
	var (
		txn    domain.Transaction
		seller string
	)
	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		t, err := st.Transactions().GetByID(ctx, txnID)
		if err != nil {
			return err
		}
		if t.BuyerID != buyerID {
			return domain.ErrForbidden
		}
		if t.Status != domain.TxnStatusWaitingForBuyer {
			return domain.ErrInvalidState
		}
		if !t.OffersSelection(date, slot, location) {
			return domain.ErrInvalidSelection
		}
		sel := domain.SelectedSchedule{Date: date, Slot: slot, Location: location}
		if err := st.Transactions().SetSelected(ctx, txnID, sel); err != nil {
			return err
		}
		t.Selected = &sel
		t.Status = domain.TxnStatusConfirmed
		txn = t
		seller = t.SellerID
		return nil
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("schedule_service: select on %q: %w", txnID, err)
	}

	s.dispatcher.Dispatch(ctx, seller, domain.NotifyOrderConfirmed, txnID,
		fmt.Sprintf("Meeting confirmed: %s %s at %s.", date, slot, location))
	s.publish(ctx, txn)

	s.logger.InfoContext(ctx, "schedule_service: schedule selected",
		slog.String("transaction_id", txnID),
	)
	return txn, nil
}

// Advance moves a transaction to completed or cancelled. Completion requires
// a confirmed meeting; cancellation is allowed from any non-terminal state.
// Either party may advance; the counterparty is notified.
func (s *ScheduleService) Advance(ctx context.Context, txnID, actorID string, next domain.TxnStatus) (domain.Transaction, error) {
	if next != domain.TxnStatusCompleted && next != domain.TxnStatusCancelled {
		return domain.Transaction{}, fmt.Errorf("schedule_service: advance to %q: %w", next, domain.ErrInvalidInput)
	}

	var txn domain.Transaction
	err := s.atomic.Atomic(ctx, func(ctx context.Context, st domain.Stores) error {
		t, err := st.Transactions().GetByID(ctx, txnID)
		if err != nil {
			return err
		}
		if !t.Party(actorID) {
			return domain.ErrForbidden
		}
		if t.Status.Terminal() {
			return domain.ErrInvalidState
		}
		if next == domain.TxnStatusCompleted && t.Status != domain.TxnStatusConfirmed {
			return domain.ErrInvalidState
		}
		if err := st.Transactions().SetStatus(ctx, txnID, next); err != nil {
			return err
		}
		t.Status = next
		txn = t
		return nil
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("schedule_service: advance %q: %w", txnID, err)
	}

	other := txn.Counterparty(actorID)
	if next == domain.TxnStatusCompleted {
		s.dispatcher.Dispatch(ctx, other, domain.NotifyOrderCompleted, txnID,
			"The trade was marked completed.")
	} else {
		s.dispatcher.Dispatch(ctx, other, domain.NotifyOrderCancelled, txnID,
			"The trade was cancelled.")
	}
	s.publish(ctx, txn)

	s.logger.InfoContext(ctx, "schedule_service: transaction advanced",
		slog.String("transaction_id", txnID),
		slog.String("status", string(next)),
	)
	return txn, nil
}

func (s *ScheduleService) validateProposal(options []domain.ScheduleOption, locations []string) error {
	if len(options) == 0 {
		return fmt.Errorf("no schedule options: %w", domain.ErrInvalidInput)
	}
	if len(locations) == 0 || len(locations) > domain.MaxMeetingLocations {
		return fmt.Errorf("need 1 to %d locations: %w", domain.MaxMeetingLocations, domain.ErrInvalidInput)
	}
	for _, loc := range locations {
		if strings.TrimSpace(loc) == "" {
			return fmt.Errorf("empty location: %w", domain.ErrInvalidInput)
		}
	}
	for _, opt := range options {
		if _, err := domain.ParseScheduleDate(opt.Date, time.UTC); err != nil {
			return err
		}
		if len(opt.Slots) == 0 {
			return fmt.Errorf("option %s has no slots: %w", opt.Date, domain.ErrInvalidInput)
		}
		for _, slot := range opt.Slots {
			if !s.window.Contains(slot) {
				return fmt.Errorf("slot %q outside operating hours: %w", slot, domain.ErrInvalidInput)
			}
		}
	}
	return nil
}

// publish pushes a change event to both parties' transaction channels.
// Transaction channels are keyed by user, not by transaction, so one
// subscription covers a party's whole transaction list.
func (s *ScheduleService) publish(ctx context.Context, t domain.Transaction) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]string{
		"event":          "transaction_updated",
		"transaction_id": t.ID,
		"status":         string(t.Status),
	})
	for _, userID := range []string{t.BuyerID, t.SellerID} {
		if err := s.bus.Publish(ctx, "txn:"+userID, evt); err != nil {
			s.logger.WarnContext(ctx, "schedule_service: publish failed",
				slog.String("transaction_id", t.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
