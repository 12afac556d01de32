package audit

import (
	"net"
	"net/http"
	"strings"
)

const unknownValue = "unknown"

// RequestContext carries the request-derived fields of an audit entry.
type RequestContext struct {
	UserID    string
	IPAddress string
	UserAgent string
	SessionID string
}

// ExtractContext derives audit fields from the request. The client address
// honors X-Forwarded-For (first hop wins); missing values default to
// "unknown" so entries are never ambiguous about absent data.
func ExtractContext(r *http.Request, userID string) RequestContext {
	rc := RequestContext{
		UserID:    userID,
		IPAddress: unknownValue,
		UserAgent: unknownValue,
	}
	if r == nil {
		return rc
	}
	if ip := clientIP(r); ip != "" {
		rc.IPAddress = ip
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		rc.UserAgent = ua
	}
	return rc
}

// Apply fills the request-derived fields of an entry.
func (rc RequestContext) Apply(entry *Entry) {
	entry.UserID = rc.UserID
	entry.IPAddress = rc.IPAddress
	entry.UserAgent = rc.UserAgent
	if entry.SessionID == "" {
		entry.SessionID = rc.SessionID
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
