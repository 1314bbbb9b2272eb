// Package authn verifies the caller's credentials and produces the
// authenticated identity consumed by the authorization pipeline. It
// deliberately knows nothing about tenants or permissions.
package authn

import (
	"context"
	"errors"
	"time"
)

// ErrUnauthenticated is returned for any missing, malformed, expired
// or revoked credential. Callers map it to a 401.
var ErrUnauthenticated = errors.New("authn: no valid session")

// Identity represents the authenticated actor.
type Identity struct {
	UserID   string     `json:"user_id"`
	Email    string     `json:"email,omitempty"`
	Name     string     `json:"name,omitempty"`
	Issuer   string     `json:"issuer,omitempty"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

// Authenticator verifies a bearer credential and returns the identity
// it belongs to. Implementations must return ErrUnauthenticated (or an
// error wrapping it) for every invalid credential.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*Identity, error)
}
