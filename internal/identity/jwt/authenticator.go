// Package jwt validates and issues HMAC-signed bearer tokens.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Config holds signing parameters for the authenticator.
type Config struct {
	SecretKey           string
	AccessTokenDuration time.Duration
}

// Authenticator signs and verifies HS256 access tokens. The user ID
// travels in the subject claim.
type Authenticator struct {
	secretKey           []byte
	accessTokenDuration time.Duration
}

// NewAuthenticator creates an Authenticator from config.
func NewAuthenticator(cfg Config) *Authenticator {
	duration := cfg.AccessTokenDuration
	if duration == 0 {
		duration = 15 * time.Minute
	}
	return &Authenticator{
		secretKey:           []byte(cfg.SecretKey),
		accessTokenDuration: duration,
	}
}

// GenerateAccessToken issues a signed token for the given user.
func (a *Authenticator) GenerateAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.accessTokenDuration)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the token signature and expiry and returns the
// user ID from the subject claim.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}
