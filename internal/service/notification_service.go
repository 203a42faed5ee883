package service

import (
	"context"
	"fmt"

	"github.com/jwkoh/campustrade/internal/domain"
)

// NotificationService exposes a user's notification inbox.
type NotificationService struct {
	store domain.NotificationStore
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(store domain.NotificationStore) *NotificationService {
	return &NotificationService{store: store}
}

// List returns a user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, opts domain.ListOpts) ([]domain.Notification, error) {
	ns, err := s.store.ListByUser(ctx, userID, unreadOnly, opts)
	if err != nil {
		return nil, fmt.Errorf("notification_service: list for %q: %w", userID, err)
	}
	return ns, nil
}

// MarkRead marks one of userID's notifications as read. Marking another
// user's notification reports not found.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		return fmt.Errorf("notification_service: mark read %q: %w", id, err)
	}
	return nil
}

// UnreadCount returns the number of unread notifications for userID.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("notification_service: unread count for %q: %w", userID, err)
	}
	return n, nil
}
