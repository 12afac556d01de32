package offline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func fastQueue(opts ...QueueOption) *Queue {
	base := []QueueOption{WithReplayRate(rate.Inf, 1)}
	return NewQueue(append(base, opts...)...)
}

func TestDrainReplaysInOrderExactlyOnce(t *testing.T) {
	queue := fastQueue()

	var mu sync.Mutex
	var replayed []string
	for _, name := range []string{"refresh", "signin", "signout"} {
		name := name
		queue.Enqueue(name, func(ctx context.Context) error {
			mu.Lock()
			replayed = append(replayed, name)
			mu.Unlock()
			return nil
		})
	}

	notices, err := queue.DrainOnReconnect(context.Background())
	require.NoError(t, err)
	require.Empty(t, notices)
	require.Equal(t, []string{"refresh", "signin", "signout"}, replayed)
	require.Zero(t, queue.Len())
}

func TestDrainStopsAndRequeuesOnFailure(t *testing.T) {
	queue := fastQueue(WithMaxAttempts(10), WithMaxPasses(1))

	var firstRuns, secondRuns int
	queue.Enqueue("first", func(ctx context.Context) error {
		firstRuns++
		return errors.New("still offline")
	})
	queue.Enqueue("second", func(ctx context.Context) error {
		secondRuns++
		return nil
	})

	notices, err := queue.DrainOnReconnect(context.Background())
	require.NoError(t, err)
	require.Empty(t, notices)
	require.Equal(t, 1, firstRuns, "head action attempted once per pass")
	require.Zero(t, secondRuns, "remainder must stay queued behind the failure")
	require.Equal(t, 2, queue.Len())
}

func TestDrainDropsExhaustedActionsWithNotice(t *testing.T) {
	queue := fastQueue(WithMaxAttempts(2), WithMaxPasses(5))

	queue.Enqueue("doomed", func(ctx context.Context) error {
		return errors.New("provider still down")
	})
	var ran bool
	queue.Enqueue("healthy", func(ctx context.Context) error {
		ran = true
		return nil
	})

	notices, err := queue.DrainOnReconnect(context.Background())
	require.NoError(t, err)
	require.Len(t, notices, 1)
	require.Equal(t, "doomed", notices[0].Name)
	require.Error(t, notices[0].Err)
	require.True(t, ran, "actions behind a dropped one must still replay")
	require.Zero(t, queue.Len())
}

func TestSecondDrainSignalDoesNotStartDuplicate(t *testing.T) {
	queue := fastQueue()

	release := make(chan struct{})
	started := make(chan struct{})
	queue.Enqueue("slow", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := queue.DrainOnReconnect(context.Background())
		require.NoError(t, err)
	}()

	<-started
	_, err := queue.DrainOnReconnect(context.Background())
	require.ErrorIs(t, err, ErrDrainInProgress)

	close(release)
	wg.Wait()
	require.Zero(t, queue.Len())
}

func TestDrainHonorsContextCancellation(t *testing.T) {
	queue := NewQueue(WithReplayRate(rate.Limit(0.001), 1))
	queue.Enqueue("never", func(ctx context.Context) error { return nil })
	queue.Enqueue("never2", func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := queue.DrainOnReconnect(ctx)
	require.Error(t, err)
}
