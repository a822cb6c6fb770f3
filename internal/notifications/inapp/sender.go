// Package inapp provides the in-app notification channel.
package inapp

import (
	"context"

	"github.com/bissquit/notify-garden/internal/domain"
)

// Sender handles the in-app channel. The notification row itself is the
// delivery: users read it through the list endpoints, so sending only
// has to succeed.
type Sender struct{}

// NewSender creates a new in-app sender.
func NewSender() *Sender {
	return &Sender{}
}

// Type returns the channel type.
func (s *Sender) Type() domain.Channel {
	return domain.ChannelInApp
}

// Available always returns true, in-app needs no external service.
func (s *Sender) Available() bool {
	return true
}

// Send is a no-op. The persisted notification is already visible in-app.
func (s *Sender) Send(_ context.Context, _ *domain.Notification) error {
	return nil
}
