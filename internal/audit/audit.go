// Package audit records every security-relevant decision as an immutable
// append-only entry: who did what, from where, when. Logging is
// fire-and-forget for callers; persistent failures go to operational
// telemetry, never back into the request path.
package audit

import (
	"context"
	"time"
)

// Actions written by the security pipeline.
const (
	ActionAuthResolved = "auth.resolved"
	ActionAuthDegraded = "auth.degraded"
	ActionAuthRejected = "auth.rejected"
	ActionAccessDenied = "authz.denied"
	ActionRateLimited  = "ratelimit.exceeded"
	ActionFileAccepted = "file.accepted"
	ActionFileRejected = "file.rejected"
	ActionAllowed      = "request.allowed"
	ActionDenied       = "request.denied"
)

// Entry is one append-only audit record. UserID and ResourceID are empty for
// anonymous callers and collection-level actions respectively; the store maps
// empty strings to SQL NULL.
type Entry struct {
	ID            string
	UserID        string
	Action        string
	ResourceTable string
	ResourceID    string
	IPAddress     string
	UserAgent     string
	SessionID     string
	CreatedAt     time.Time
}

// Logger accepts entries without ever failing the caller.
type Logger interface {
	Log(ctx context.Context, entry Entry)
}

// Store persists entries. Append is the only operation: this layer never
// updates or deletes audit records.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
}

// Discard is a Logger that drops everything. Used when audit logging is
// disabled for a deployment stage.
type Discard struct{}

func (Discard) Log(context.Context, Entry) {}
