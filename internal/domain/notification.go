// Package domain contains the core entities of the notification service.
package domain

import "time"

// Channel identifies a delivery mechanism.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelInApp   Channel = "in-app"
)

// Valid reports whether the channel is one of the known delivery mechanisms.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelWebhook, ChannelInApp:
		return true
	}
	return false
}

// Status is the delivery state of a notification.
//
// Allowed transitions: pending -> sent, pending -> failed, failed -> pending
// (explicit retry), failed -> sent (a queued re-attempt that succeeds).
// sent is terminal.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status is the result of a completed delivery
// attempt.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Notification is a single message owned by a tenant (user). The channel and
// owner are immutable after creation; the status is mutated exclusively by
// the dispatch service.
type Notification struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Channel       Channel           `json:"channel"`
	Status        Status            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	ReadAt        *time.Time        `json:"read_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
