package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bissquit/notify-garden/internal/domain"
	"github.com/bissquit/notify-garden/internal/pkg/correlation"
	"github.com/bissquit/notify-garden/internal/pkg/ctxlog"
)

// Enqueuer schedules a notification for asynchronous delivery. The
// channel and metadata are echoed into the persisted job payload.
type Enqueuer interface {
	Enqueue(ctx context.Context, notificationID, channel, correlationID string, metadata map[string]string) (jobID string, err error)
}

// Service provides notifications business logic.
type Service struct {
	repo     Repository
	registry *Registry
	enqueuer Enqueuer
}

// NewService creates a new notifications service.
func NewService(repo Repository, registry *Registry, enqueuer Enqueuer) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		enqueuer: enqueuer,
	}
}

// CreateInput carries the fields needed to create a notification.
type CreateInput struct {
	UserID   string
	Title    string
	Body     string
	Channel  domain.Channel
	Metadata map[string]string
}

// Create persists a pending notification and enqueues it for delivery.
// If enqueueing fails, the notification is deleted again so no orphaned
// pending rows are left behind, and ErrQueueUnavailable is returned.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Notification, string, error) {
	now := time.Now().UTC()
	n := &domain.Notification{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Title:         in.Title,
		Body:          in.Body,
		Channel:       in.Channel,
		Status:        domain.StatusPending,
		Metadata:      in.Metadata,
		CorrelationID: correlation.FromContext(ctx),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, "", fmt.Errorf("create notification: %w", err)
	}

	jobID, err := s.enqueuer.Enqueue(ctx, n.ID, string(n.Channel), n.CorrelationID, n.Metadata)
	if err != nil {
		ctxlog.FromContext(ctx).Error("enqueue failed, rolling back notification",
			"notification_id", n.ID,
			"error", err,
		)
		if delErr := s.repo.Delete(ctx, n.ID, n.UserID); delErr != nil {
			ctxlog.FromContext(ctx).Error("compensating delete failed",
				"notification_id", n.ID,
				"error", delErr,
			)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	return n, jobID, nil
}

// Get returns a single notification scoped to its owner.
func (s *Service) Get(ctx context.Context, id, userID string) (*domain.Notification, error) {
	return s.repo.GetByID(ctx, id, userID)
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, params ListParams) ([]domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, params)
}

// MarkAll applies a bulk read-state action to all of the user's
// notifications and returns the number of rows changed.
func (s *Service) MarkAll(ctx context.Context, userID, action string) (int64, error) {
	switch action {
	case "read":
		return s.repo.MarkAllRead(ctx, userID)
	case "unread":
		return s.repo.MarkAllUnread(ctx, userID)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Retry resets a notification back to pending and enqueues a fresh
// delivery job. The status write is a single conditional statement, so a
// notification that does not exist (or belongs to another user) yields
// ErrNotFound without any enqueue.
func (s *Service) Retry(ctx context.Context, id, userID string) (*domain.Notification, string, error) {
	n, err := s.repo.UpdateStatus(ctx, id, domain.StatusPending, userID)
	if err != nil {
		return nil, "", err
	}

	jobID, err := s.enqueuer.Enqueue(ctx, n.ID, string(n.Channel), n.CorrelationID, n.Metadata)
	if err != nil {
		ctxlog.FromContext(ctx).Error("enqueue failed on retry",
			"notification_id", n.ID,
			"error", err,
		)
		return nil, "", fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	return n, jobID, nil
}

// Delete removes a notification owned by userID.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}

// DeliverByID loads a notification and sends it over its channel,
// writing the terminal status before returning: sent on success, failed
// on any unsuccessful attempt, so a completed attempt never leaves the
// row pending. Sender failures keep their retryability classification;
// a later redelivery that succeeds overwrites failed with sent.
func (s *Service) DeliverByID(ctx context.Context, notificationID string) error {
	n, err := s.repo.GetByIDInternal(ctx, notificationID)
	if err != nil {
		// A deleted notification is not worth retrying.
		return nonRetryable(fmt.Errorf("load notification: %w", err))
	}

	sender, ok := s.registry.Resolve(n.Channel)
	if !ok || !sender.Available() {
		recordNotificationSent(string(n.Channel), "unavailable")
		s.recordFailure(ctx, n.ID)
		return nonRetryable(fmt.Errorf("%w: %s", ErrChannelUnavailable, n.Channel))
	}

	start := time.Now()
	err = sender.Send(ctx, n)
	duration := time.Since(start)

	if err != nil {
		recordNotificationSent(string(n.Channel), "error")
		s.recordFailure(ctx, n.ID)
		return fmt.Errorf("send via %s: %w", n.Channel, err)
	}

	if err := s.repo.SetStatus(ctx, n.ID, domain.StatusSent); err != nil {
		// The message went out but the status write failed. Do not let the
		// caller retry: a second send would duplicate the delivery.
		return nonRetryable(fmt.Errorf("mark sent: %w", err))
	}

	recordNotificationSent(string(n.Channel), "success")
	recordNotificationDuration(string(n.Channel), duration)

	ctxlog.FromContext(ctx).Debug("notification delivered",
		"notification_id", n.ID,
		"channel", n.Channel,
		"duration", duration,
	)
	return nil
}

// recordFailure writes the failed status after an unsuccessful attempt.
// The write failure is logged, not returned: the delivery error that led
// here is the one the caller needs for retry classification.
func (s *Service) recordFailure(ctx context.Context, notificationID string) {
	if err := s.repo.SetStatus(ctx, notificationID, domain.StatusFailed); err != nil {
		ctxlog.FromContext(ctx).Error("failed to record delivery failure",
			"notification_id", notificationID,
			"error", err,
		)
	}
}

// nonRetryableError marks an error as permanent for the delivery worker.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string     { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error     { return e.err }
func (e *nonRetryableError) IsRetryable() bool { return false }

func nonRetryable(err error) error {
	return &nonRetryableError{err: err}
}
