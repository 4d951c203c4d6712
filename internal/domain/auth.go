package domain

import "context"

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Name   string
}

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}
