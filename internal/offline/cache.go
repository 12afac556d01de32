// Package offline keeps the gateway minimally usable when the identity
// provider is unreachable: a bounded cache of last-known-good auth state for
// read-path continuity, and a retry queue that replays mutating auth
// operations once connectivity returns.
package offline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"compass.education/internal/identity"
)

// CachedAuthState is the last successful resolution for one session.
type CachedAuthState struct {
	User            identity.User
	Session         identity.Session
	LastRefreshedAt time.Time
}

// Cache stores auth state keyed by a digest of the session token. Entries are
// bounded by an LRU and by age; it never stores raw tokens.
type Cache struct {
	entries *lru.Cache[string, CachedAuthState]
	maxAge  time.Duration
	now     func() time.Time
}

// CacheOption configures Cache behavior.
type CacheOption func(*Cache)

// WithCacheClock overrides the time source (useful for tests).
func WithCacheClock(fn func() time.Time) CacheOption {
	return func(c *Cache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCache constructs a cache holding at most size sessions. Entries older
// than maxAge are treated as misses; maxAge <= 0 disables the age check.
func NewCache(size int, maxAge time.Duration, opts ...CacheOption) (*Cache, error) {
	if size <= 0 {
		return nil, errors.New("offline: cache size must be positive")
	}
	entries, err := lru.New[string, CachedAuthState](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{entries: entries, maxAge: maxAge, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Save records the state for the given token. Written on every successful
// online resolution; last write wins.
func (c *Cache) Save(token string, user identity.User, session identity.Session) {
	if token == "" {
		return
	}
	c.entries.Add(cacheKey(token), CachedAuthState{
		User:            user,
		Session:         session,
		LastRefreshedAt: c.now().UTC(),
	})
}

// Load returns the cached state for the token, if present and fresh enough.
func (c *Cache) Load(token string) (CachedAuthState, bool) {
	if token == "" {
		return CachedAuthState{}, false
	}
	state, ok := c.entries.Get(cacheKey(token))
	if !ok {
		return CachedAuthState{}, false
	}
	if c.maxAge > 0 && c.now().Sub(state.LastRefreshedAt) > c.maxAge {
		c.entries.Remove(cacheKey(token))
		return CachedAuthState{}, false
	}
	return state, true
}

// Clear drops the cached state for one token. Sign-out calls this
// synchronously so local deauthentication never depends on the network.
func (c *Cache) Clear(token string) {
	if token == "" {
		return
	}
	c.entries.Remove(cacheKey(token))
}

// Purge drops all cached state.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// Len reports the number of cached sessions.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func cacheKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
