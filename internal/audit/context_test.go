package audit

import (
	"net/http/httptest"
	"testing"
)

func TestExtractContextDefaults(t *testing.T) {
	rc := ExtractContext(nil, "")
	if rc.IPAddress != "unknown" || rc.UserAgent != "unknown" {
		t.Fatalf("missing request should default fields to unknown, got %+v", rc)
	}

	req := httptest.NewRequest("GET", "/api/plans", nil)
	req.RemoteAddr = "192.0.2.10:4422"
	rc = ExtractContext(req, "user-1")
	if rc.UserID != "user-1" {
		t.Fatalf("user id = %q", rc.UserID)
	}
	if rc.IPAddress != "192.0.2.10" {
		t.Fatalf("ip = %q, want remote addr host", rc.IPAddress)
	}
	if rc.UserAgent != "unknown" {
		t.Fatalf("user agent = %q, want unknown", rc.UserAgent)
	}
}

func TestExtractContextForwardedForFirstHop(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/plans", nil)
	req.RemoteAddr = "10.0.0.1:9000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "compass-web/2.4")

	rc := ExtractContext(req, "")
	if rc.IPAddress != "203.0.113.7" {
		t.Fatalf("ip = %q, want first forwarded hop", rc.IPAddress)
	}
	if rc.UserAgent != "compass-web/2.4" {
		t.Fatalf("user agent = %q", rc.UserAgent)
	}
}

func TestRequestContextApply(t *testing.T) {
	rc := RequestContext{UserID: "u1", IPAddress: "1.2.3.4", UserAgent: "ua", SessionID: "s1"}
	entry := Entry{Action: ActionAllowed}
	rc.Apply(&entry)
	if entry.UserID != "u1" || entry.IPAddress != "1.2.3.4" || entry.UserAgent != "ua" || entry.SessionID != "s1" {
		t.Fatalf("apply did not fill fields: %+v", entry)
	}

	entry = Entry{Action: ActionAllowed, SessionID: "existing"}
	rc.Apply(&entry)
	if entry.SessionID != "existing" {
		t.Fatalf("apply overwrote session id: %q", entry.SessionID)
	}
}
