// Package queue implements the durable delivery queue and its worker pool.
package queue

import "time"

// JobStatus represents the status of a delivery job.
type JobStatus string

// Job statuses.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSent       JobStatus = "sent"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents one delivery attempt lifecycle for a notification.
// Channel and Metadata echo the notification at enqueue time so the
// queue payload is self-describing even though workers refetch the row.
type Job struct {
	ID             string
	NotificationID string
	Channel        string
	Metadata       map[string]string
	CorrelationID  string
	Status         JobStatus
	Attempts       int
	MaxAttempts    int
	NextAttemptAt  time.Time
	LockedUntil    *time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SentAt         *time.Time
}

// QueueStats holds per-status job counts.
type QueueStats struct {
	Pending    int64
	Processing int64
	Sent       int64
	Failed     int64
}
