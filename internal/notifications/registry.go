package notifications

import (
	"context"

	"github.com/bissquit/notify-garden/internal/domain"
)

// Sender delivers a notification over a single channel type.
type Sender interface {
	// Type returns the channel this sender handles.
	Type() domain.Channel
	// Available reports whether the sender is configured and able to send.
	Available() bool
	// Send delivers the notification. Implementations signal transient
	// failures with errors exposing IsRetryable() bool.
	Send(ctx context.Context, n *domain.Notification) error
}

// Registry routes notifications to senders by channel type.
type Registry struct {
	senders map[domain.Channel]Sender
}

// NewRegistry builds a registry from the given senders.
func NewRegistry(senders ...Sender) *Registry {
	m := make(map[domain.Channel]Sender, len(senders))
	for _, s := range senders {
		m[s.Type()] = s
	}
	return &Registry{senders: m}
}

// Resolve returns the sender for a channel type.
func (r *Registry) Resolve(channel domain.Channel) (Sender, bool) {
	s, ok := r.senders[channel]
	return s, ok
}
