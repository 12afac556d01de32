package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckAdmitsUpToLimitThenDenies(t *testing.T) {
	now := time.Now()
	limiter := New(WithClock(func() time.Time { return now }))
	defer limiter.Stop()

	key := Key("user-1", "GET /v1/resource")
	const limit = 3

	for i := 0; i < limit; i++ {
		d := limiter.Check(key, limit, time.Minute)
		require.True(t, d.Allowed, "call %d within limit must be admitted", i+1)
		require.Equal(t, limit-i-1, d.Remaining)
	}

	d := limiter.Check(key, limit, time.Minute)
	require.False(t, d.Allowed, "call over limit must be denied")
	require.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestWindowExpiryStartsFreshWindow(t *testing.T) {
	now := time.Now()
	limiter := New(WithClock(func() time.Time { return now }))
	defer limiter.Stop()

	key := Key("10.0.0.1", "POST /v1/files")

	require.True(t, limiter.Check(key, 1, time.Second).Allowed)
	require.False(t, limiter.Check(key, 1, time.Second).Allowed)

	now = now.Add(time.Second)
	require.True(t, limiter.Check(key, 1, time.Second).Allowed, "new window must readmit")
}

func TestKeysAreIndependent(t *testing.T) {
	limiter := New()
	defer limiter.Stop()

	require.True(t, limiter.Check(Key("a", "r"), 1, time.Minute).Allowed)
	require.False(t, limiter.Check(Key("a", "r"), 1, time.Minute).Allowed)
	require.True(t, limiter.Check(Key("b", "r"), 1, time.Minute).Allowed, "other caller unaffected")
	require.True(t, limiter.Check(Key("a", "r2"), 1, time.Minute).Allowed, "other route unaffected")
}

func TestConcurrentChecksNeverExceedLimit(t *testing.T) {
	limiter := New()
	defer limiter.Stop()

	const limit = 50
	key := Key("user-1", "GET /v1/plans")

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 2*limit; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check(key, limit, time.Minute).Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(limit), admitted.Load(), "exactly the limit must be admitted under contention")
}

func TestEvictExpiredWindows(t *testing.T) {
	now := time.Now()
	limiter := New(WithClock(func() time.Time { return now }))
	defer limiter.Stop()

	limiter.Check(Key("a", "r"), 5, time.Second)
	now = now.Add(2 * time.Second)
	limiter.evictExpired()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.Empty(t, limiter.windows)
}

func TestZeroLimitDisablesCheck(t *testing.T) {
	limiter := New()
	defer limiter.Stop()
	require.True(t, limiter.Check(Key("a", "r"), 0, 0).Allowed)
}
