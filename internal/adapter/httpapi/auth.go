package httpapi

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"planit/internal/domain"
	"planit/internal/infra/config"
)

type authEntry struct {
	token    []byte
	identity *domain.Identity
	email    string
}

// StaticTokenAuth resolves bearer tokens from the config file to users.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, 0, len(tokens))}
	for _, t := range tokens {
		name := t.Name
		if name == "" {
			name = t.UserID
		}
		a.entries = append(a.entries, authEntry{
			token:    []byte(t.Token),
			identity: &domain.Identity{UserID: t.UserID, Name: name},
			email:    t.Email,
		})
	}
	return a
}

// Authenticate compares token against every entry in constant time.
func (a *StaticTokenAuth) Authenticate(_ context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing bearer token", domain.ErrAuthInvalid)
	}
	given := []byte(token)
	var match *domain.Identity
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(given, e.token) == 1 && match == nil {
			match = e.identity
		}
	}
	if match == nil {
		return nil, domain.ErrAuthInvalid
	}
	return match, nil
}

// SeedUsers makes sure every configured user has a profile row.
func (a *StaticTokenAuth) SeedUsers(ctx context.Context, users domain.UserStore) error {
	for _, e := range a.entries {
		err := users.EnsureUser(ctx, domain.User{
			ID:    e.identity.UserID,
			Name:  e.identity.Name,
			Email: e.email,
		})
		if err != nil {
			return domain.WrapOp("seed user "+e.identity.UserID, err)
		}
	}
	return nil
}

// bearerToken extracts the credential from an "Authorization: Bearer" header.
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
