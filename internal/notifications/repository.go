package notifications

import (
	"context"

	"github.com/bissquit/notify-garden/internal/domain"
)

// ListParams controls pagination and filtering for user notification lists.
type ListParams struct {
	Status domain.Status // empty means all statuses
	Limit  int
	Offset int
}

// Repository defines notification persistence operations.
type Repository interface {
	// Create persists a new notification.
	Create(ctx context.Context, n *domain.Notification) error

	// GetByID returns a notification scoped to its owner.
	// Returns ErrNotFound if no row matches both id and userID.
	GetByID(ctx context.Context, id, userID string) (*domain.Notification, error)

	// GetByIDInternal returns a notification by id without tenant scoping.
	// Only for delivery-side lookups where the caller is trusted.
	GetByIDInternal(ctx context.Context, id string) (*domain.Notification, error)

	// ListByUser returns the user's notifications, newest first.
	ListByUser(ctx context.Context, userID string, params ListParams) ([]domain.Notification, error)

	// UpdateStatus conditionally sets the status of a notification owned
	// by userID in a single statement. Returns the updated notification,
	// or ErrNotFound when zero rows matched.
	UpdateStatus(ctx context.Context, id string, status domain.Status, userID string) (*domain.Notification, error)

	// SetStatus sets the status by id alone. Used by the delivery worker,
	// which operates outside any user scope. Returns ErrNotFound when the
	// notification no longer exists.
	SetStatus(ctx context.Context, id string, status domain.Status) error

	// MarkAllRead stamps read_at on every unread notification of the user
	// and returns the number of rows changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)

	// MarkAllUnread clears read_at on every read notification of the user
	// and returns the number of rows changed.
	MarkAllUnread(ctx context.Context, userID string) (int64, error)

	// Delete removes a notification owned by userID.
	// Returns ErrNotFound when zero rows matched.
	Delete(ctx context.Context, id, userID string) error
}
