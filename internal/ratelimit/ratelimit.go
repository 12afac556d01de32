// Package ratelimit implements fixed-window request counting per
// (caller, route) key. Windows live in memory; checks are synchronous and
// never suspend.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
	span  time.Duration
}

func (w *window) expired(now time.Time) bool {
	return !now.Before(w.start.Add(w.span))
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key in fixed windows. The increment-and-compare
// runs under a single lock so two requests racing at the boundary can never
// both be admitted.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	stopCh  chan struct{}
}

// Option configures Limiter behavior.
type Option func(*Limiter)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New constructs a Limiter and starts a janitor that evicts expired windows.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.janitor()
	return l
}

// Check admits the request if the key's current window has capacity. A new
// window starts when none exists or the previous one expired; expiry creates
// a fresh window rather than mutating the old one. The count never exceeds
// the limit.
func (l *Limiter) Check(key string, limit int, span time.Duration) Decision {
	if limit <= 0 || span <= 0 {
		return Decision{Allowed: true}
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || w.expired(now) {
		l.windows[key] = &window{count: 1, start: now, span: span}
		return Decision{Allowed: true, Remaining: limit - 1}
	}
	if w.count < limit {
		w.count++
		return Decision{Allowed: true, Remaining: limit - w.count}
	}
	return Decision{Allowed: false, RetryAfter: w.start.Add(w.span).Sub(now)}
}

// Key builds the canonical (caller, route) limiter key.
func Key(caller, route string) string {
	return caller + "|" + route
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictExpired()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) evictExpired() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if w.expired(now) {
			delete(l.windows, key)
		}
	}
}

// Stop terminates the janitor goroutine.
func (l *Limiter) Stop() {
	close(l.stopCh)
}
