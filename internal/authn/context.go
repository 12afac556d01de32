// Package authn resolves caller identity for one request and carries the
// result through the request context.
package authn

import (
	"context"
	"strings"

	"compass.education/internal/identity"
)

// Context holds resolved identity and authorization facts for one request.
// Immutable once constructed; never persisted.
type Context struct {
	User          *identity.User
	SessionID     string
	Authenticated bool

	// Degraded marks contexts built from the offline cache while the
	// identity provider was unreachable. Mutating authorization must not
	// trust a degraded context.
	Degraded bool
}

// Anonymous returns an unauthenticated context.
func Anonymous() Context {
	return Context{}
}

// HasRole reports whether the caller is authenticated with exactly this role.
func (c Context) HasRole(role string) bool {
	if !c.Authenticated || c.User == nil {
		return false
	}
	return strings.EqualFold(c.User.Role, role)
}

// IsOwner reports whether the caller is the recorded owner of a resource.
func (c Context) IsOwner(resourceOwnerID string) bool {
	if !c.Authenticated || c.User == nil || resourceOwnerID == "" {
		return false
	}
	return c.User.ID == resourceOwnerID
}

// UserID returns the caller's ID, or "" for anonymous callers.
func (c Context) UserID() string {
	if c.User == nil {
		return ""
	}
	return c.User.ID
}

type authContextKey struct{}

// WithContext attaches the resolved auth context to ctx.
func WithContext(ctx context.Context, ac Context) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// FromContext extracts the resolved auth context, if present.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	ac, ok := ctx.Value(authContextKey{}).(Context)
	return ac, ok
}
