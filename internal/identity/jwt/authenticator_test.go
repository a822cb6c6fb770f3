package jwt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_RoundTrip(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret-key-0123456789abcdef"})

	token, err := auth.GenerateAccessToken("user-42")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := auth.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	auth := NewAuthenticator(Config{
		SecretKey:           "test-secret-key-0123456789abcdef",
		AccessTokenDuration: -time.Minute,
	})

	token, err := auth.GenerateAccessToken("user-42")
	require.NoError(t, err)

	_, err = auth.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthenticator_WrongKey(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret-key-0123456789abcdef"})
	other := NewAuthenticator(Config{SecretKey: "another-secret-key-fedcba98765432"})

	token, err := auth.GenerateAccessToken("user-42")
	require.NoError(t, err)

	_, err = other.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_Garbage(t *testing.T) {
	auth := NewAuthenticator(Config{SecretKey: "test-secret-key-0123456789abcdef"})

	_, err := auth.ValidateToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
