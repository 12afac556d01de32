package authn

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"compass.education/internal/identity"
	"compass.education/internal/obs"
	"compass.education/internal/offline"
)

const (
	// SessionCookie carries the session token for browser callers.
	SessionCookie = "compass_session"

	authHeader = "Authorization"
	bearer     = "Bearer "
)

// ErrQueuedForRetry reports that a mutating auth operation could not reach
// the provider and was queued for replay on reconnect.
var ErrQueuedForRetry = errors.New("authn: operation queued for retry")

// Resolver turns a raw request into a Context using the identity store, with
// the offline cache bridging network-class failures on the read path.
type Resolver struct {
	store identity.Store
	cache *offline.Cache
	queue *offline.Queue
	now   func() time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithResolverClock overrides the time source (useful for tests).
func WithResolverClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver. cache and queue are required: resolution
// writes through to the cache, and mutating operations fall back to the queue.
func NewResolver(store identity.Store, cache *offline.Cache, queue *offline.Queue, opts ...ResolverOption) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("authn: identity store is required")
	}
	if cache == nil || queue == nil {
		return nil, errors.New("authn: offline cache and queue are required")
	}
	r := &Resolver{store: store, cache: cache, queue: queue, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve derives the auth context for the request. Online success writes
// through to the offline cache. Network-class lookup failures are bridged by
// the cache and flagged degraded; credential-class failures always yield an
// unauthenticated context and never consult the cache.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) Context {
	token := TokenFromRequest(req)
	if token == "" {
		obs.AuthResolution("anonymous")
		return Anonymous()
	}

	user, session, err := r.store.LookupSession(ctx, token)
	if err == nil {
		r.cache.Save(token, user, session)
		obs.AuthResolution("online")
		return Context{User: &user, SessionID: session.ID, Authenticated: true}
	}

	switch identity.ClassifyError(err) {
	case identity.ClassNetwork:
		if state, ok := r.cache.Load(token); ok {
			obs.AuthResolution("degraded")
			obs.Logger().WithField("user_id", state.User.ID).
				Warn("identity store unreachable, serving cached auth state")
			u := state.User
			return Context{User: &u, SessionID: state.Session.ID, Authenticated: true, Degraded: true}
		}
		obs.AuthResolution("anonymous")
		return Anonymous()
	case identity.ClassCredential:
		obs.AuthResolution("rejected")
		return Anonymous()
	default:
		obs.AuthResolution("rejected")
		obs.Logger().WithError(err).Warn("unclassified identity lookup failure")
		return Anonymous()
	}
}

// SignOut clears the cached auth state synchronously, then revokes the
// session remotely. A network-class revoke failure is queued for replay; the
// local deauthentication stands either way.
func (r *Resolver) SignOut(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	r.cache.Clear(token)

	revoker, ok := r.store.(identity.Revoker)
	if !ok {
		return nil
	}
	err := revoker.RevokeSession(ctx, token)
	if err == nil {
		return nil
	}
	if identity.ClassifyError(err) == identity.ClassNetwork {
		r.queue.Enqueue("auth.signout", func(ctx context.Context) error {
			return revoker.RevokeSession(ctx, token)
		})
		return ErrQueuedForRetry
	}
	return err
}

// Refresh extends the session. Success writes through to the cache; a
// network-class failure queues the refresh for replay on reconnect.
func (r *Resolver) Refresh(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	refresher, ok := r.store.(identity.Refresher)
	if !ok {
		return nil
	}
	user, session, err := refresher.RefreshSession(ctx, token)
	if err == nil {
		r.cache.Save(token, user, session)
		return nil
	}
	if identity.ClassifyError(err) == identity.ClassNetwork {
		r.queue.Enqueue("auth.refresh", func(ctx context.Context) error {
			u, s, err := refresher.RefreshSession(ctx, token)
			if err == nil {
				r.cache.Save(token, u, s)
			}
			return err
		})
		return ErrQueuedForRetry
	}
	return err
}

// Reconnected drains the retry queue once connectivity is restored.
func (r *Resolver) Reconnected(ctx context.Context) ([]offline.Notice, error) {
	return r.queue.DrainOnReconnect(ctx)
}

// TokenFromRequest extracts the session token from the Authorization header
// (preferred) or the session cookie.
func TokenFromRequest(req *http.Request) string {
	if req == nil {
		return ""
	}
	header := strings.TrimSpace(req.Header.Get(authHeader))
	if header != "" && strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		if token := strings.TrimSpace(header[len(bearer):]); token != "" {
			return token
		}
	}
	if cookie, err := req.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
