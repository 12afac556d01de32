package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, secret string, ttl time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	claims := Claims{
		Role: "student",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestLookupSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(sessionEnvelope{
			User:    User{ID: "user-1", Email: "s@example.edu", Role: "student"},
			Session: Session{ID: "sess-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	user, session, err := client.LookupSession(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("LookupSession: %v", err)
	}
	if user.ID != "user-1" || user.Role != "student" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if session.ID != "sess-1" {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestLookupSessionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, _, err = client.LookupSession(context.Background(), "bad-token")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if ClassifyError(err) != ClassCredential {
		t.Fatalf("expected credential class, got %v", ClassifyError(err))
	}
}

func TestLookupSessionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, _, err = client.LookupSession(context.Background(), "tok")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on 502, got %v", err)
	}

	// A closed listener must classify as network failure too.
	srv.Close()
	_, _, err = client.LookupSession(context.Background(), "tok")
	if ClassifyError(err) != ClassNetwork {
		t.Fatalf("expected network class, got %v (%v)", ClassifyError(err), err)
	}
}

func TestExpiredTokenFailsLocallyWithoutNetworkCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	const secret = "unit-test-secret"
	client, err := NewClient(srv.URL, WithSessionSecret(secret))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, _, err = client.LookupSession(context.Background(), signedToken(t, secret, -time.Minute))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected for expired token, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no provider call for expired token, got %d", calls.Load())
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassUnknown},
		{"rejected", ErrRejected, ClassCredential},
		{"unavailable", ErrUnavailable, ClassNetwork},
		{"deadline", context.DeadlineExceeded, ClassNetwork},
		{"plain", errors.New("boom"), ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got != tc.want {
				t.Fatalf("ClassifyError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
