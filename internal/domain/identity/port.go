package identity

import (
	"context"
	"errors"
)

var (
	ErrMissingToken = errors.New("no bearer token provided")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier resolves a bearer credential to a caller id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}
