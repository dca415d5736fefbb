// Package session validates the session secrets carried by requests.
package session

import (
	"context"
	"crypto/subtle"
)

// Validator reports whether a session secret belongs to a live session.
type Validator interface {
	Validate(ctx context.Context, secret string) (bool, error)
}

// Static accepts a fixed set of secrets.
type Static struct {
	secrets []string
}

// NewStatic creates a validator accepting secrets.
func NewStatic(secrets ...string) *Static {
	return &Static{secrets: append([]string(nil), secrets...)}
}

// Validate compares secret against each known secret in constant time.
func (s *Static) Validate(_ context.Context, secret string) (bool, error) {
	if secret == "" {
		return false, nil
	}
	found := 0
	for _, known := range s.secrets {
		found |= subtle.ConstantTimeCompare([]byte(known), []byte(secret))
	}
	return found == 1, nil
}

// AllowAll accepts every non-empty secret.
type AllowAll struct{}

// Validate implements Validator.
func (AllowAll) Validate(_ context.Context, secret string) (bool, error) {
	return secret != "", nil
}
