// Package postgres provides PostgreSQL implementation of the delivery job queue.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bissquit/notify-garden/internal/queue"
)

// Repository implements queue.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const jobColumns = `id, notification_id, channel, metadata, correlation_id, status, attempts, max_attempts, next_attempt_at, locked_until, last_error, created_at, updated_at, sent_at`

func scanJob(row pgx.Row, job *queue.Job) error {
	return row.Scan(
		&job.ID,
		&job.NotificationID,
		&job.Channel,
		&job.Metadata,
		&job.CorrelationID,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.NextAttemptAt,
		&job.LockedUntil,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.SentAt,
	)
}

// CreateJob inserts a new pending delivery job.
func (r *Repository) CreateJob(ctx context.Context, job *queue.Job) error {
	query := `
		INSERT INTO delivery_jobs (id, notification_id, channel, metadata, correlation_id, status, max_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING next_attempt_at, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		job.ID,
		job.NotificationID,
		job.Channel,
		job.Metadata,
		job.CorrelationID,
		job.Status,
		job.MaxAttempts,
	).Scan(&job.NextAttemptAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// ClaimJobs atomically claims up to limit due jobs. SKIP LOCKED keeps
// concurrent workers from claiming the same rows; stale processing jobs
// whose lock expired become claimable again, giving at-least-once
// delivery after worker crashes.
func (r *Repository) ClaimJobs(ctx context.Context, limit int, lockTimeout time.Duration) ([]*queue.Job, error) {
	query := `
		UPDATE delivery_jobs
		SET status = 'processing',
		    attempts = attempts + 1,
		    locked_until = NOW() + make_interval(secs => $2),
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM delivery_jobs
			WHERE (status = 'pending' AND next_attempt_at <= NOW())
			   OR (status = 'processing' AND locked_until < NOW())
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns + `
	`
	rows, err := r.db.Query(ctx, query, limit, lockTimeout.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*queue.Job, 0)
	for rows.Next() {
		var job queue.Job
		if err := scanJob(rows, &job); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}

// MarkAsSent finalizes a job after successful delivery.
func (r *Repository) MarkAsSent(ctx context.Context, jobID string) error {
	query := `
		UPDATE delivery_jobs
		SET status = 'sent', sent_at = NOW(), locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, jobID); err != nil {
		return fmt.Errorf("mark job sent: %w", err)
	}
	return nil
}

// MarkAsFailed finalizes a job after a permanent failure.
func (r *Repository) MarkAsFailed(ctx context.Context, jobID string, cause error) error {
	query := `
		UPDATE delivery_jobs
		SET status = 'failed', last_error = $2, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, jobID, cause.Error()); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	return nil
}

// MarkForRetry returns a job to pending with a new due time.
func (r *Repository) MarkForRetry(ctx context.Context, jobID string, cause error, nextAttemptAt time.Time) error {
	query := `
		UPDATE delivery_jobs
		SET status = 'pending', last_error = $2, next_attempt_at = $3, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, jobID, cause.Error(), nextAttemptAt); err != nil {
		return fmt.Errorf("mark job for retry: %w", err)
	}
	return nil
}

// GetStats returns per-status job counts.
func (r *Repository) GetStats(ctx context.Context) (*queue.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM delivery_jobs
	`
	var stats queue.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Processing, &stats.Sent, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

// PurgeFinished deletes terminal jobs older than the retention window.
func (r *Repository) PurgeFinished(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		DELETE FROM delivery_jobs
		WHERE status IN ('sent', 'failed')
		  AND updated_at < NOW() - make_interval(secs => $1)
	`
	result, err := r.db.Exec(ctx, query, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("purge finished jobs: %w", err)
	}
	return result.RowsAffected(), nil
}
