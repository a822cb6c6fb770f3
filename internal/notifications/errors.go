package notifications

import "errors"

// Service errors.
var (
	ErrNotFound           = errors.New("notification not found")
	ErrChannelUnavailable = errors.New("notification channel unavailable")
	ErrQueueUnavailable   = errors.New("notification queue unavailable")
	ErrUnknownAction      = errors.New("unknown bulk action")
)
