package identity

import (
	"context"
	"crypto/subtle"
	"strings"

	domain "github.com/bryanwahyu/iaccessible/internal/domain/identity"
)

// StaticVerifier accepts a fixed set of tokens, each mapped to a user id.
type StaticVerifier struct {
	tokens map[string]string
}

func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.ErrMissingToken
	}

	// every entry is compared so timing does not reveal which prefix matched
	var uid string
	for t, u := range v.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			uid = u
		}
	}
	if uid == "" {
		return "", domain.ErrInvalidToken
	}
	return uid, nil
}
