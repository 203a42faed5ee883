package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jwkoh/campustrade/internal/domain"
)

// BidStore implements domain.BidStore using PostgreSQL. The bids table is
// append-only; rows are never updated or deleted.
type BidStore struct {
	q Querier
}

// NewBidStore creates a BidStore backed by the given querier.
func NewBidStore(q Querier) *BidStore {
	return &BidStore{q: q}
}

const bidSelectCols = `id, listing_id, bidder_id, amount, placed_at`

func scanBid(scanner interface{ Scan(dest ...any) error }) (domain.Bid, error) {
	var b domain.Bid
	err := scanner.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.Amount, &b.PlacedAt)
	return b, err
}

// Append inserts a new bid into the ledger.
func (s *BidStore) Append(ctx context.Context, b domain.Bid) error {
	const query = `
		INSERT INTO bids (id, listing_id, bidder_id, amount, placed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.q.Exec(ctx, query, b.ID, b.ListingID, b.BidderID, b.Amount, b.PlacedAt)
	if err != nil {
		return fmt.Errorf("postgres: append bid %s: %w", b.ID, err)
	}
	return nil
}

// Head returns the ledger head: highest amount, earliest placedAt on ties.
func (s *BidStore) Head(ctx context.Context, listingID string) (domain.Bid, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE listing_id = $1
		 ORDER BY amount DESC, placed_at ASC
		 LIMIT 1`,
		listingID)

	b, err := scanBid(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bid{}, domain.ErrNotFound
		}
		return domain.Bid{}, fmt.Errorf("postgres: bid head for %s: %w", listingID, err)
	}
	return b, nil
}

// ListByListing returns bids in ledger order (winner first).
func (s *BidStore) ListByListing(ctx context.Context, listingID string, opts domain.ListOpts) ([]domain.Bid, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+bidSelectCols+` FROM bids
		 WHERE listing_id = $1
		 ORDER BY amount DESC, placed_at ASC
		 LIMIT $2 OFFSET $3`,
		listingID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids for %s: %w", listingID, err)
	}
	defer rows.Close()

	var bids []domain.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

var _ domain.BidStore = (*BidStore)(nil)
