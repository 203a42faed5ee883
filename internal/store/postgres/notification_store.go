package postgres

import (
	"context"
	"fmt"

	"github.com/jwkoh/campustrade/internal/domain"
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
type NotificationStore struct {
	q Querier
}

// NewNotificationStore creates a NotificationStore backed by the given
// querier.
func NewNotificationStore(q Querier) *NotificationStore {
	return &NotificationStore{q: q}
}

// Create inserts a notification record.
func (s *NotificationStore) Create(ctx context.Context, n domain.Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, kind, subject_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.q.Exec(ctx, query,
		n.ID, n.UserID, string(n.Kind), n.SubjectID, n.Message, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create notification %s: %w", n.ID, err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, unreadOnly bool, opts domain.ListOpts) ([]domain.Notification, error) {
	query := `SELECT id, user_id, kind, subject_id, message, is_read, created_at
		 FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := s.q.Query(ctx, query, userID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	var notifs []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.SubjectID, &n.Message,
			&n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		n.Kind = domain.NotifyKind(kind)
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

// MarkRead flags a notification as read. The recipient check is in the WHERE
// clause so a user can never flag someone else's notification.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return fmt.Errorf("postgres: mark notification read %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountUnread returns the number of unread notifications for a user.
func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count unread for %s: %w", userID, err)
	}
	return count, nil
}

var _ domain.NotificationStore = (*NotificationStore)(nil)
