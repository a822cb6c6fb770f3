package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bissquit/notify-garden/internal/pkg/ctxlog"
)

// Enqueuer creates delivery jobs for notifications.
type Enqueuer struct {
	repo        Repository
	maxAttempts int
}

// NewEnqueuer creates an Enqueuer. maxAttempts is stamped onto each job
// so in-flight jobs keep their limit across config changes.
func NewEnqueuer(repo Repository, maxAttempts int) *Enqueuer {
	return &Enqueuer{
		repo:        repo,
		maxAttempts: maxAttempts,
	}
}

// Enqueue inserts a pending delivery job and returns its ID. Channel and
// metadata are echoed onto the job so the persisted payload describes the
// delivery without a join.
func (e *Enqueuer) Enqueue(ctx context.Context, notificationID, channel, correlationID string, metadata map[string]string) (string, error) {
	job := &Job{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Channel:        channel,
		Metadata:       metadata,
		CorrelationID:  correlationID,
		Status:         JobStatusPending,
		MaxAttempts:    e.maxAttempts,
	}

	if err := e.repo.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("enqueue delivery job: %w", err)
	}

	ctxlog.FromContext(ctx).Debug("delivery job enqueued",
		"job_id", job.ID,
		"notification_id", notificationID,
		"channel", channel,
	)
	return job.ID, nil
}
