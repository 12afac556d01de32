// Package rbac decides whether a resolved auth context satisfies a route's
// declared role policy. Enforcement is a pure function: no I/O, no side
// effects beyond the audit entry written by the pipeline.
package rbac

import (
	"errors"

	"compass.education/internal/authn"
)

// Platform roles.
const (
	RoleStudent   = "student"
	RoleParent    = "parent"
	RoleCounselor = "counselor"
	RoleAdmin     = "admin"
)

var (
	// ErrUnauthenticated denies callers without a valid session (HTTP 401).
	ErrUnauthenticated = errors.New("rbac: unauthenticated")

	// ErrInsufficientPermissions denies authenticated callers whose role is
	// not in the required set (HTTP 403).
	ErrInsufficientPermissions = errors.New("rbac: insufficient permissions")
)

// Enforce allows the request when no roles are required, or when the caller
// is authenticated with one of the required roles.
func Enforce(ac authn.Context, requiredRoles ...string) error {
	if len(requiredRoles) == 0 {
		return nil
	}
	if !ac.Authenticated {
		return ErrUnauthenticated
	}
	for _, role := range requiredRoles {
		if ac.HasRole(role) {
			return nil
		}
	}
	return ErrInsufficientPermissions
}

// EnforceOwnership allows the request when the caller owns the resource or
// holds one of the override roles (typically admin).
func EnforceOwnership(ac authn.Context, resourceOwnerID string, overrideRoles ...string) error {
	if !ac.Authenticated {
		return ErrUnauthenticated
	}
	if ac.IsOwner(resourceOwnerID) {
		return nil
	}
	for _, role := range overrideRoles {
		if ac.HasRole(role) {
			return nil
		}
	}
	return ErrInsufficientPermissions
}
