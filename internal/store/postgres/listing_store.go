package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jwkoh/campustrade/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	q Querier
}

// NewListingStore creates a ListingStore backed by the given querier.
func NewListingStore(q Querier) *ListingStore {
	return &ListingStore{q: q}
}

const listingSelectCols = `id, seller_id, title, description, price, sale_mode, status,
	auction_start, auction_end, sold_to, sold_at, created_at, updated_at`

func scanListing(scanner interface{ Scan(dest ...any) error }) (domain.Listing, error) {
	var l domain.Listing
	var mode, status string

	err := scanner.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price,
		&mode, &status,
		&l.AuctionStart, &l.AuctionEnd, &l.SoldTo, &l.SoldAt,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}
	l.Mode = domain.SaleMode(mode)
	l.Status = domain.ListingStatus(status)
	return l, nil
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Create inserts a new listing.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (
			id, seller_id, title, description, price, sale_mode, status,
			auction_start, auction_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`

	_, err := s.q.Exec(ctx, query,
		l.ID, l.SellerID, l.Title, l.Description, l.Price,
		string(l.Mode), string(l.Status),
		l.AuctionStart, l.AuctionEnd, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create listing %s: %w", l.ID, err)
	}
	return nil
}

// GetByID retrieves a single listing.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1`, id)

	l, err := scanListing(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}

// ListActive returns browsable listings: available or in an auction phase.
func (s *ListingStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Listing, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE status IN ('available', 'auction_scheduled', 'auction_active')
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active listings: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active listings: %w", err)
	}
	return listings, nil
}

// ListBySeller returns all listings owned by a seller, newest first.
func (s *ListingStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+listingSelectCols+` FROM listings
		 WHERE seller_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		sellerID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by seller: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings by seller: %w", err)
	}
	return listings, nil
}

// ListDue returns IDs of auctions whose time-derived state is stale at now:
// scheduled auctions past their start and active auctions past their end.
func (s *ListingStore) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id FROM listings
		 WHERE (status = 'auction_scheduled' AND auction_start <= $1)
		    OR (status = 'auction_active' AND auction_end <= $1)
		 ORDER BY auction_end ASC
		 LIMIT $2`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list due auctions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan due auction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus updates a listing's status.
func (s *ListingStore) SetStatus(ctx context.Context, id string, status domain.ListingStatus) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("postgres: set listing status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetPrice rewrites a listing's price (negotiation acceptance).
func (s *ListingStore) SetPrice(ctx context.Context, id string, price float64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE listings SET price = $1, updated_at = NOW() WHERE id = $2`,
		price, id)
	if err != nil {
		return fmt.Errorf("postgres: set listing price %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkSold sets status=sold, soldTo and soldAt in one write.
func (s *ListingStore) MarkSold(ctx context.Context, id, buyerID string, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE listings
		 SET status = 'sold', sold_to = $1, sold_at = $2, updated_at = NOW()
		 WHERE id = $3`,
		buyerID, at, id)
	if err != nil {
		return fmt.Errorf("postgres: mark listing sold %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// limitOf returns the query limit for opts, defaulting to 50.
func limitOf(opts domain.ListOpts) int {
	if opts.Limit > 0 {
		return opts.Limit
	}
	return 50
}

var _ domain.ListingStore = (*ListingStore)(nil)
