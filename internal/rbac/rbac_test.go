package rbac

import (
	"errors"
	"testing"

	"compass.education/internal/authn"
	"compass.education/internal/identity"
)

func authed(id, role string) authn.Context {
	return authn.Context{
		User:          &identity.User{ID: id, Role: role},
		Authenticated: true,
	}
}

func TestEnforce(t *testing.T) {
	cases := []struct {
		name     string
		ctx      authn.Context
		required []string
		want     error
	}{
		{"no roles required allows anonymous", authn.Anonymous(), nil, nil},
		{"no roles required allows authenticated", authed("u1", RoleStudent), nil, nil},
		{"anonymous denied when role required", authn.Anonymous(), []string{RoleStudent}, ErrUnauthenticated},
		{"matching role allowed", authed("u1", RoleAdmin), []string{RoleAdmin}, nil},
		{"role matched case-insensitively", authed("u1", "Admin"), []string{RoleAdmin}, nil},
		{"any of several roles allowed", authed("u1", RoleCounselor), []string{RoleAdmin, RoleCounselor}, nil},
		{"wrong role denied", authed("u1", RoleStudent), []string{RoleAdmin}, ErrInsufficientPermissions},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Enforce(tc.ctx, tc.required...)
			if !errors.Is(err, tc.want) && !(err == nil && tc.want == nil) {
				t.Fatalf("Enforce = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestEnforceOwnership(t *testing.T) {
	owner := authed("user-1", RoleStudent)
	if err := EnforceOwnership(owner, "user-1"); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if err := EnforceOwnership(owner, "user-2"); !errors.Is(err, ErrInsufficientPermissions) {
		t.Fatalf("non-owner should be denied, got %v", err)
	}
	admin := authed("admin-1", RoleAdmin)
	if err := EnforceOwnership(admin, "user-2", RoleAdmin); err != nil {
		t.Fatalf("admin override denied: %v", err)
	}
	if err := EnforceOwnership(authn.Anonymous(), "user-1"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("anonymous should be unauthenticated, got %v", err)
	}
}
