package offline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"compass.education/internal/identity"
)

func TestCacheSaveLoadClear(t *testing.T) {
	cache, err := NewCache(8, 0)
	require.NoError(t, err)

	user := identity.User{ID: "user-1", Email: "s@example.edu", Role: "student"}
	session := identity.Session{ID: "sess-1", UserID: "user-1"}

	_, ok := cache.Load("tok-1")
	require.False(t, ok, "empty cache should miss")

	cache.Save("tok-1", user, session)
	state, ok := cache.Load("tok-1")
	require.True(t, ok)
	require.Equal(t, user, state.User)
	require.Equal(t, session, state.Session)
	require.False(t, state.LastRefreshedAt.IsZero())

	_, ok = cache.Load("tok-other")
	require.False(t, ok, "different token must not hit")

	cache.Clear("tok-1")
	_, ok = cache.Load("tok-1")
	require.False(t, ok, "cleared entry must miss")
}

func TestCacheLastWriteWins(t *testing.T) {
	cache, err := NewCache(8, 0)
	require.NoError(t, err)

	cache.Save("tok", identity.User{ID: "u", Role: "student"}, identity.Session{ID: "old"})
	cache.Save("tok", identity.User{ID: "u", Role: "student"}, identity.Session{ID: "new"})

	state, ok := cache.Load("tok")
	require.True(t, ok)
	require.Equal(t, "new", state.Session.ID)
}

func TestCacheExpiresByAge(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	cache, err := NewCache(8, time.Minute, WithCacheClock(func() time.Time { return clock() }))
	require.NoError(t, err)

	cache.Save("tok", identity.User{ID: "u"}, identity.Session{ID: "s"})
	_, ok := cache.Load("tok")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = cache.Load("tok")
	require.False(t, ok, "stale entry must miss")
	require.Zero(t, cache.Len(), "stale entry should be evicted")
}

func TestCacheBoundedByLRU(t *testing.T) {
	cache, err := NewCache(2, 0)
	require.NoError(t, err)

	cache.Save("a", identity.User{ID: "a"}, identity.Session{})
	cache.Save("b", identity.User{ID: "b"}, identity.Session{})
	cache.Save("c", identity.User{ID: "c"}, identity.Session{})

	require.Equal(t, 2, cache.Len())
	_, ok := cache.Load("a")
	require.False(t, ok, "oldest entry should have been evicted")
}
