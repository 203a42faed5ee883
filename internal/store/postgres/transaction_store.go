package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jwkoh/campustrade/internal/domain"
)

// TransactionStore implements domain.TransactionStore using PostgreSQL.
// Schedule options, meeting locations and the selected schedule are stored
// as JSONB. A UNIQUE constraint on (listing_id, origin_kind) backs the
// exactly-once-per-sale invariant at the schema level in addition to the
// application-level ExistsForSale check.
type TransactionStore struct {
	q Querier
}

// NewTransactionStore creates a TransactionStore backed by the given querier.
func NewTransactionStore(q Querier) *TransactionStore {
	return &TransactionStore{q: q}
}

const txnSelectCols = `id, listing_id, buyer_id, seller_id, amount, origin_kind, status,
	schedule_options, meeting_locations, selected_schedule,
	archived_at, created_at, updated_at`

func scanTxn(scanner interface{ Scan(dest ...any) error }) (domain.Transaction, error) {
	var t domain.Transaction
	var origin, status string
	var optionsRaw, locationsRaw []byte
	var selectedRaw []byte

	err := scanner.Scan(
		&t.ID, &t.ListingID, &t.BuyerID, &t.SellerID, &t.Amount,
		&origin, &status,
		&optionsRaw, &locationsRaw, &selectedRaw,
		&t.ArchivedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}

	t.Origin = domain.TxnOrigin(origin)
	t.Status = domain.TxnStatus(status)

	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &t.ScheduleOptions); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode schedule options: %w", err)
		}
	}
	if len(locationsRaw) > 0 {
		if err := json.Unmarshal(locationsRaw, &t.MeetingLocations); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode meeting locations: %w", err)
		}
	}
	if len(selectedRaw) > 0 {
		var sel domain.SelectedSchedule
		if err := json.Unmarshal(selectedRaw, &sel); err != nil {
			return domain.Transaction{}, fmt.Errorf("decode selected schedule: %w", err)
		}
		t.Selected = &sel
	}

	return t, nil
}

func scanTxnRows(rows pgx.Rows) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// Create inserts a new transaction in pending state.
func (s *TransactionStore) Create(ctx context.Context, t domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, listing_id, buyer_id, seller_id, amount, origin_kind, status,
			schedule_options, meeting_locations, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '[]'::jsonb, '[]'::jsonb, $8, NOW())`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.ListingID, t.BuyerID, t.SellerID, t.Amount,
		string(t.Origin), string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create transaction %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a single transaction.
func (s *TransactionStore) GetByID(ctx context.Context, id string) (domain.Transaction, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+txnSelectCols+` FROM transactions WHERE id = $1`, id)

	t, err := scanTxn(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Transaction{}, domain.ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("postgres: get transaction %s: %w", id, err)
	}
	return t, nil
}

// ExistsForSale reports whether a transaction already exists for the listing
// and origin, the duplicate-finalization guard.
func (s *TransactionStore) ExistsForSale(ctx context.Context, listingID string, origin domain.TxnOrigin) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM transactions WHERE listing_id = $1 AND origin_kind = $2
		 )`,
		listingID, string(origin)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: transaction exists for %s: %w", listingID, err)
	}
	return exists, nil
}

// ListByUser returns transactions where the user is buyer or seller, newest
// first, excluding archived rows.
func (s *TransactionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+txnSelectCols+` FROM transactions
		 WHERE (buyer_id = $1 OR seller_id = $1) AND archived_at IS NULL
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list transactions for %s: %w", userID, err)
	}
	defer rows.Close()

	txns, err := scanTxnRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan transactions: %w", err)
	}
	return txns, nil
}

// SetSchedule writes the seller's proposal and advances to waiting_for_buyer.
func (s *TransactionStore) SetSchedule(ctx context.Context, id string, options []domain.ScheduleOption, locations []string) error {
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("postgres: encode schedule options: %w", err)
	}
	locationsJSON, err := json.Marshal(locations)
	if err != nil {
		return fmt.Errorf("postgres: encode meeting locations: %w", err)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE transactions
		 SET schedule_options = $1, meeting_locations = $2,
		     status = 'waiting_for_buyer', updated_at = NOW()
		 WHERE id = $3`,
		optionsJSON, locationsJSON, id)
	if err != nil {
		return fmt.Errorf("postgres: set schedule %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetSelected writes the buyer's choice and advances to confirmed.
func (s *TransactionStore) SetSelected(ctx context.Context, id string, sel domain.SelectedSchedule) error {
	selJSON, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("postgres: encode selected schedule: %w", err)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE transactions
		 SET selected_schedule = $1, status = 'confirmed', updated_at = NOW()
		 WHERE id = $2`,
		selJSON, id)
	if err != nil {
		return fmt.Errorf("postgres: set selected schedule %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetStatus updates a transaction's handshake status.
func (s *TransactionStore) SetStatus(ctx context.Context, id string, status domain.TxnStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: set transaction status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListArchivable returns terminal transactions last touched before the
// cutoff and not yet archived.
func (s *TransactionStore) ListArchivable(ctx context.Context, before time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+txnSelectCols+` FROM transactions
		 WHERE status IN ('completed', 'cancelled')
		   AND archived_at IS NULL
		   AND updated_at < $1
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list archivable transactions: %w", err)
	}
	defer rows.Close()

	txns, err := scanTxnRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan archivable transactions: %w", err)
	}
	return txns, nil
}

// MarkArchived stamps the given transactions as exported.
func (s *TransactionStore) MarkArchived(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.Exec(ctx,
		`UPDATE transactions SET archived_at = $1 WHERE id = ANY($2)`,
		at, ids)
	if err != nil {
		return fmt.Errorf("postgres: mark transactions archived: %w", err)
	}
	return nil
}

var _ domain.TransactionStore = (*TransactionStore)(nil)
