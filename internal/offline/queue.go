package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"compass.education/internal/ids"
	"compass.education/internal/obs"
)

// ErrDrainInProgress is returned when a reconnect signal arrives while a
// drain is already running. The caller should not start a second drain.
var ErrDrainInProgress = errors.New("offline: drain already in progress")

// Action is a mutating auth operation waiting for connectivity.
type Action struct {
	ID         string
	Name       string
	Op         func(ctx context.Context) error
	EnqueuedAt time.Time

	attempts int
}

// Notice surfaces an action that could not be confirmed after bounded
// retries. Non-fatal: the caller decides how to present it.
type Notice struct {
	ActionID string
	Name     string
	Err      error
}

// Queue is a FIFO, single-consumer retry queue. Only one drain runs at a
// time; replays are paced so a reconnect burst does not hammer the provider.
type Queue struct {
	mu      sync.Mutex
	actions []*Action

	draining    atomic.Bool
	maxAttempts int
	maxPasses   int
	limiter     *rate.Limiter
	now         func() time.Time
}

// QueueOption configures Queue behavior.
type QueueOption func(*Queue)

// WithMaxAttempts bounds retries per action before it is dropped.
func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithMaxPasses bounds full replay passes per drain.
func WithMaxPasses(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxPasses = n
		}
	}
}

// WithReplayRate paces replays during a drain.
func WithReplayRate(limit rate.Limit, burst int) QueueOption {
	return func(q *Queue) {
		if limit > 0 && burst > 0 {
			q.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// WithQueueClock overrides the time source (useful for tests).
func WithQueueClock(fn func() time.Time) QueueOption {
	return func(q *Queue) {
		if fn != nil {
			q.now = fn
		}
	}
}

// NewQueue constructs an empty retry queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		maxAttempts: 3,
		maxPasses:   3,
		limiter:     rate.NewLimiter(rate.Limit(20), 5),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends an operation for replay on reconnect and returns its ID.
func (q *Queue) Enqueue(name string, op func(ctx context.Context) error) string {
	action := &Action{
		ID:         ids.New(),
		Name:       name,
		Op:         op,
		EnqueuedAt: q.now().UTC(),
	}
	q.mu.Lock()
	q.actions = append(q.actions, action)
	q.mu.Unlock()
	return action.ID
}

// Len reports the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}

// DrainOnReconnect replays queued operations in FIFO order. Each pass walks
// the queue once; an action is executed at most once per pass. On failure the
// action and the untouched remainder stay queued for the next pass. Actions
// exhausting their retry budget are dropped and surfaced as notices rather
// than lost silently.
func (q *Queue) DrainOnReconnect(ctx context.Context) ([]Notice, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return nil, ErrDrainInProgress
	}
	defer q.draining.Store(false)

	var notices []Notice
	for pass := 0; pass < q.maxPasses; pass++ {
		done, err := q.drainPass(ctx, &notices)
		if err != nil {
			return notices, err
		}
		if done {
			break
		}
	}

	q.mu.Lock()
	remaining := len(q.actions)
	q.mu.Unlock()
	if remaining > 0 {
		obs.Logger().WithField("remaining", remaining).Warn("retry queue drain incomplete")
	}
	return notices, nil
}

// drainPass replays from the head until the queue empties or a replay fails.
func (q *Queue) drainPass(ctx context.Context, notices *[]Notice) (done bool, err error) {
	for {
		q.mu.Lock()
		if len(q.actions) == 0 {
			q.mu.Unlock()
			return true, nil
		}
		action := q.actions[0]
		q.mu.Unlock()

		if err := q.limiter.Wait(ctx); err != nil {
			return false, err
		}

		if runErr := action.Op(ctx); runErr != nil {
			action.attempts++
			if action.attempts >= q.maxAttempts {
				q.dequeue(action)
				*notices = append(*notices, Notice{ActionID: action.ID, Name: action.Name, Err: runErr})
				obs.RetryReplay("dropped")
				obs.Logger().WithError(runErr).WithField("action", action.Name).
					Warn("queued auth operation unconfirmed after bounded retries")
				continue
			}
			obs.RetryReplay("failed")
			return false, nil
		}

		q.dequeue(action)
		obs.RetryReplay("ok")
	}
}

func (q *Queue) dequeue(action *Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.actions {
		if a == action {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			return
		}
	}
}
