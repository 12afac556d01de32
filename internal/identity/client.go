package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionPath = "/v1/sessions/current"
	issuer      = "compass-identity"
)

// Claims are the registered claims plus the role carried in session tokens.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Client talks to the identity provider over HTTP. When a session secret is
// configured, tokens are pre-validated locally so expired or garbled tokens
// fail credential-class without a network round trip.
type Client struct {
	baseURL    string
	httpClient *http.Client
	secret     []byte
	now        func() time.Time
}

// ClientOption configures Client behavior.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithSessionSecret enables local HS256 pre-validation of session tokens.
func WithSessionSecret(secret string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(secret) != "" {
			c.secret = []byte(secret)
		}
	}
}

// WithTimeout sets the per-lookup timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ClientOption {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewClient constructs a Client for the given provider base URL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("identity: base URL is required")
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ Store = (*Client)(nil)
var _ Revoker = (*Client)(nil)
var _ Refresher = (*Client)(nil)

type sessionEnvelope struct {
	User    User    `json:"user"`
	Session Session `json:"session"`
}

// LookupSession resolves the token into a user and session record.
func (c *Client) LookupSession(ctx context.Context, token string) (User, Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, Session{}, fmt.Errorf("%w: empty session token", ErrRejected)
	}
	if err := c.preValidate(token); err != nil {
		return User{}, Session{}, err
	}
	return c.fetchSession(ctx, http.MethodGet, token)
}

// RefreshSession asks the provider to extend the session.
func (c *Client) RefreshSession(ctx context.Context, token string) (User, Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return User{}, Session{}, fmt.Errorf("%w: empty session token", ErrRejected)
	}
	return c.fetchSession(ctx, http.MethodPost, token)
}

// RevokeSession invalidates the session on the provider side.
func (c *Client) RevokeSession(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: empty session token", ErrRejected)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+sessionPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp.StatusCode)
}

func (c *Client) fetchSession(ctx context.Context, method, token string) (User, Session, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+sessionPath, nil)
	if err != nil {
		return User{}, Session{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return User{}, Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp.StatusCode); err != nil {
		return User{}, Session{}, err
	}

	var env sessionEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return User{}, Session{}, fmt.Errorf("%w: decode session: %v", ErrUnavailable, err)
	}
	if env.User.ID == "" {
		return User{}, Session{}, fmt.Errorf("%w: provider returned no user", ErrRejected)
	}
	if !env.Session.ExpiresAt.IsZero() && c.now().After(env.Session.ExpiresAt) {
		return User{}, Session{}, fmt.Errorf("%w: session expired", ErrRejected)
	}
	return env.User, env.Session, nil
}

func (c *Client) checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
		return fmt.Errorf("%w: provider returned %d", ErrRejected, code)
	case code >= 500:
		return fmt.Errorf("%w: provider returned %d", ErrUnavailable, code)
	default:
		return fmt.Errorf("identity: unexpected status %d", code)
	}
}

// preValidate checks signature and expiry locally when a secret is set.
func (c *Client) preValidate(token string) error {
	if len(c.secret) == 0 {
		return nil
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Method.Alg())
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(issuer))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || strings.TrimSpace(claims.Subject) == "" {
		return fmt.Errorf("%w: subject missing", ErrRejected)
	}
	return nil
}
