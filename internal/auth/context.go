// ABOUTME: Identity propagation for tracking the signed-in user through handlers
// ABOUTME: Provides WithIdentity/FromContext instead of ambient global state

package auth

import (
	"context"
	"errors"
)

// ErrNoIdentity is returned by operations that require a signed-in user
// when the context carries none. Reads degrade to empty results instead.
var ErrNoIdentity = errors.New("no signed-in identity")

// Identity is the currently-signed-in user, used to scope agent and
// feedback ownership. It is always passed explicitly via context, never
// read from ambient storage.
type Identity struct {
	UserID string
}

// identityKey is the key type for storing Identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext retrieves the identity from the context, returning nil if
// not present.
func FromContext(ctx context.Context) *Identity {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	id, ok := val.(*Identity)
	if !ok {
		return nil
	}
	return id
}

// UserID returns the signed-in user ID, or ErrNoIdentity.
func UserID(ctx context.Context) (string, error) {
	id := FromContext(ctx)
	if id == nil || id.UserID == "" {
		return "", ErrNoIdentity
	}
	return id.UserID, nil
}
