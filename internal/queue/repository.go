package queue

import (
	"context"
	"time"
)

// Repository defines delivery job persistence operations.
type Repository interface {
	// CreateJob inserts a new pending job and fills in generated fields.
	CreateJob(ctx context.Context, job *Job) error

	// ClaimJobs atomically claims up to limit due jobs for processing.
	// A claimed job is invisible to other workers until lockTimeout
	// elapses; a crashed worker's jobs become claimable again after that.
	ClaimJobs(ctx context.Context, limit int, lockTimeout time.Duration) ([]*Job, error)

	// MarkAsSent finalizes a job after successful delivery.
	MarkAsSent(ctx context.Context, jobID string) error

	// MarkAsFailed finalizes a job after a permanent failure.
	MarkAsFailed(ctx context.Context, jobID string, cause error) error

	// MarkForRetry returns a job to pending with a new due time.
	MarkForRetry(ctx context.Context, jobID string, cause error, nextAttemptAt time.Time) error

	// GetStats returns per-status job counts.
	GetStats(ctx context.Context) (*QueueStats, error)

	// PurgeFinished deletes sent and failed jobs older than the retention
	// window and returns the number of rows removed.
	PurgeFinished(ctx context.Context, olderThan time.Duration) (int64, error)
}
