// Package auth resolves the authenticated caller's owner identifier.
// The identity provider is modeled as a port so deployments can swap the
// static token table for a real provider without touching the handlers.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned when no valid identity accompanies a request.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Authenticator resolves a request to an owner identifier.
type Authenticator interface {
	// Authenticate returns the owner ID for the request, or ErrUnauthorized.
	Authenticate(r *http.Request) (ownerID string, err error)
}

// StaticTokens authenticates bearer tokens against a fixed token→owner table.
type StaticTokens struct {
	tokens map[string]string
}

// Compile-time check that StaticTokens implements Authenticator.
var _ Authenticator = (*StaticTokens)(nil)

// NewStaticTokens creates an authenticator from a token→owner map.
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	copied := make(map[string]string, len(tokens))
	for token, owner := range tokens {
		copied[token] = owner
	}
	return &StaticTokens{tokens: copied}
}

// Authenticate extracts the bearer token and resolves it to an owner ID.
func (a *StaticTokens) Authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", ErrUnauthorized
	}

	for candidate, owner := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return owner, nil
		}
	}
	return "", ErrUnauthorized
}

// ctxKey is the context key type for the owner ID.
type ctxKey struct{}

// WithOwner returns a context carrying the owner ID.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, ownerID)
}

// OwnerFromContext returns the owner ID attached by the auth middleware.
func OwnerFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ctxKey{}).(string)
	return ownerID, ok && ownerID != ""
}
