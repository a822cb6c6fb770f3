package inapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bissquit/notify-garden/internal/domain"
)

func TestSender(t *testing.T) {
	sender := NewSender()

	assert.Equal(t, domain.ChannelInApp, sender.Type())
	assert.True(t, sender.Available())
	assert.NoError(t, sender.Send(context.Background(), &domain.Notification{ID: "n-1"}))
}
