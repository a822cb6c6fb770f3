// Package postgres provides PostgreSQL implementation of notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/notify-garden/internal/domain"
	"github.com/bissquit/notify-garden/internal/notifications"
)

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, user_id, title, body, channel, status, metadata, correlation_id, read_at, created_at, updated_at`

func scanNotification(row pgx.Row, n *domain.Notification) error {
	return row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Body,
		&n.Channel,
		&n.Status,
		&n.Metadata,
		&n.CorrelationID,
		&n.ReadAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
}

// Create persists a new notification.
func (r *Repository) Create(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, user_id, title, body, channel, status, metadata, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		n.Channel,
		n.Status,
		n.Metadata,
		n.CorrelationID,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification scoped to its owner.
func (r *Repository) GetByID(ctx context.Context, id, userID string) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1 AND user_id = $2
	`
	var n domain.Notification
	if err := scanNotification(r.db.QueryRow(ctx, query, id, userID), &n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// GetByIDInternal retrieves a notification by id without tenant scoping.
func (r *Repository) GetByIDInternal(ctx context.Context, id string) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE id = $1
	`
	var n domain.Notification
	if err := scanNotification(r.db.QueryRow(ctx, query, id), &n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// ListByUser retrieves the user's notifications, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, params notifications.ListParams) ([]domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, string(params.Status), params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := scanNotification(rows, &n); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}

	return items, rows.Err()
}

// UpdateStatus conditionally sets the status of a notification owned by
// userID in a single statement. Zero matched rows yield ErrNotFound.
func (r *Repository) UpdateStatus(ctx context.Context, id string, status domain.Status, userID string) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + notificationColumns + `
	`
	var n domain.Notification
	if err := scanNotification(r.db.QueryRow(ctx, query, id, userID, status), &n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotFound
		}
		return nil, fmt.Errorf("update status: %w", err)
	}
	return &n, nil
}

// SetStatus sets the status by id alone, for delivery-side writes.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.Status) error {
	query := `
		UPDATE notifications
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrNotFound
	}
	return nil
}

// MarkAllRead stamps read_at on every unread notification of the user.
func (r *Repository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE notifications
		SET read_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND read_at IS NULL
	`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return result.RowsAffected(), nil
}

// MarkAllUnread clears read_at on every read notification of the user.
func (r *Repository) MarkAllUnread(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE notifications
		SET read_at = NULL, updated_at = NOW()
		WHERE user_id = $1 AND read_at IS NOT NULL
	`
	result, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all unread: %w", err)
	}
	return result.RowsAffected(), nil
}

// Delete removes a notification owned by userID.
func (r *Repository) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM notifications WHERE id = $1 AND user_id = $2`
	result, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrNotFound
	}
	return nil
}
