package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jwkoh/campustrade/internal/domain"
)

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	q Querier
}

// NewOfferStore creates an OfferStore backed by the given querier.
func NewOfferStore(q Querier) *OfferStore {
	return &OfferStore{q: q}
}

const offerSelectCols = `id, listing_id, buyer_id, amount, status, created_at, responded_at`

func scanOffer(scanner interface{ Scan(dest ...any) error }) (domain.Offer, error) {
	var o domain.Offer
	var status string
	err := scanner.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.Amount, &status,
		&o.CreatedAt, &o.RespondedAt)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Status = domain.OfferStatus(status)
	return o, nil
}

// Create inserts a new offer.
func (s *OfferStore) Create(ctx context.Context, o domain.Offer) error {
	const query = `
		INSERT INTO offers (id, listing_id, buyer_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.q.Exec(ctx, query,
		o.ID, o.ListingID, o.BuyerID, o.Amount, string(o.Status), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create offer %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single offer.
func (s *OfferStore) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+offerSelectCols+` FROM offers WHERE id = $1`, id)

	o, err := scanOffer(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %s: %w", id, err)
	}
	return o, nil
}

// ListByListing returns offers for a listing, newest first.
func (s *OfferStore) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Offer, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+offerSelectCols+` FROM offers
		 WHERE listing_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		listingID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers for %s: %w", listingID, err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

// SetStatus resolves an offer, recording when the seller responded.
func (s *OfferStore) SetStatus(ctx context.Context, id string, status domain.OfferStatus, respondedAt time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE offers SET status = $1, responded_at = $2 WHERE id = $3`,
		string(status), respondedAt, id)
	if err != nil {
		return fmt.Errorf("postgres: set offer status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ domain.OfferStore = (*OfferStore)(nil)
