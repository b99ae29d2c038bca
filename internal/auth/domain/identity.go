package domain

import (
	"context"
	"errors"
)

// Identity is the caller resolved from a Supabase access token.
type Identity struct {
	UserID string
	Email  string
	Role   string
}

type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid_token")
	ErrMissingSecret   = errors.New("auth_secret_not_configured")
)
