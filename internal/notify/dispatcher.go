// Package notify creates notification records for marketplace users and
// pushes change events to subscribed clients. Dispatch is fire-and-forget:
// a failed dispatch is logged and swallowed, never blocking or rolling back
// the state transition that triggered it. A dispatch is only ever made after
// the triggering write has committed, so a failed transition never produces
// a notification.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwkoh/campustrade/internal/domain"
)

// Sender is an optional side channel that mirrors notifications outward
// (e.g. an ops webhook). Sender failures are logged and ignored.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Dispatcher persists notifications, publishes a push event per recipient,
// and mirrors to any registered senders.
type Dispatcher struct {
	store   domain.NotificationStore
	bus     domain.SignalBus
	senders []Sender
	logger  *slog.Logger
}

// NewDispatcher creates a Dispatcher. bus and senders may be nil/empty; the
// store is required.
func NewDispatcher(store domain.NotificationStore, bus domain.SignalBus, senders []Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:   store,
		bus:     bus,
		senders: senders,
		logger:  logger.With(slog.String("component", "notify")),
	}
}

// Dispatch creates a notification for userID about subjectID. Every failure
// path logs and returns; callers never observe an error.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, kind domain.NotifyKind, subjectID, message string) {
	n := domain.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Kind:      kind,
		SubjectID: subjectID,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := d.store.Create(ctx, n); err != nil {
		d.logger.ErrorContext(ctx, "notification persist failed",
			slog.String("user_id", userID),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	if d.bus != nil {
		evt, _ := json.Marshal(map[string]string{
			"event":      "notification",
			"id":         n.ID,
			"kind":       string(kind),
			"subject_id": subjectID,
		})
		if err := d.bus.Publish(ctx, "notify:"+userID, evt); err != nil {
			d.logger.WarnContext(ctx, "notification publish failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, s := range d.senders {
		if err := s.Send(ctx, string(kind), message); err != nil {
			d.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
