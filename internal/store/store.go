package store

import (
	"context"

	"github.com/charlesng35/notifyd/internal/models"
)

// ListInput defines filters for querying user notifications.
type ListInput struct {
	UserID string
	Limit  int
	Offset int
}

// Store defines durable persistence for notification records. Implementations
// must keep the per-user unread counter consistent with record writes inside
// the same transaction.
type Store interface {
	// Save assigns id and createdAt when absent, writes the record atomically
	// and returns the canonical persisted copy.
	Save(ctx context.Context, notification *models.Notification) (*models.Notification, error)

	// FindByUser returns the user's notifications ordered by createdAt
	// descending, ties broken by id descending.
	FindByUser(ctx context.Context, input ListInput) ([]models.Notification, error)

	// FindByID returns a single record or ErrNotFound.
	FindByID(ctx context.Context, id string) (*models.Notification, error)

	// SetRead flips read=false→true. Marking an already-read notification is a
	// no-op success; an unknown id is ErrNotFound.
	SetRead(ctx context.Context, id string) (*models.Notification, error)

	// MarkAllRead flips every unread record for the user, returning how many
	// rows changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// UnreadIndex exposes the derived per-user unread count.
type UnreadIndex interface {
	// Count returns the cached unread count, falling back to a live scan when
	// no counter row exists yet.
	Count(ctx context.Context, userID string) (int64, error)

	// Recompute rebuilds the counter from the store's read=false rows and
	// overwrites the cached value. It returns the recomputed count.
	Recompute(ctx context.Context, userID string) (int64, error)
}
