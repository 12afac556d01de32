// Package identity adapts the external identity provider. It resolves a
// session token into a user record and role, and classifies lookup failures
// so callers can tell connectivity loss apart from rejected credentials.
package identity

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

var (
	// ErrUnavailable marks network-class failures. The offline cache may
	// bridge these for read-path continuity.
	ErrUnavailable = errors.New("identity: store unavailable")

	// ErrRejected marks credential-class failures (expired, revoked or
	// malformed sessions). Never recoverable via cache.
	ErrRejected = errors.New("identity: credentials rejected")
)

// User is the minimal identity record the gateway works with.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session describes the provider-side session backing a token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store fetches a user record and role by session token.
type Store interface {
	LookupSession(ctx context.Context, token string) (User, Session, error)
}

// Revoker invalidates a session on the provider side (sign-out).
type Revoker interface {
	RevokeSession(ctx context.Context, token string) error
}

// Refresher extends a session's lifetime, returning the refreshed state.
type Refresher interface {
	RefreshSession(ctx context.Context, token string) (User, Session, error)
}

// ErrorClass partitions lookup failures for the resolver's
// fail-open/fail-closed decision.
type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassNetwork
	ClassCredential
)

// ClassifyError maps an error to its class. Wrapped sentinels win; otherwise
// transport-level failures count as network-class.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, ErrRejected) {
		return ClassCredential
	}
	if errors.Is(err, ErrUnavailable) {
		return ClassNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassNetwork
	}
	return ClassUnknown
}
