package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"compass.education/internal/ids"
	"compass.education/internal/obs"
)

const defaultWriteTimeout = 5 * time.Second

// Dispatcher decouples request handling from audit persistence: Log enqueues
// onto a buffered channel and a single worker writes entries in order. Writes
// run on a background context so a disconnecting client never aborts an
// in-flight audit write.
type Dispatcher struct {
	store        Store
	ch           chan Entry
	done         chan struct{}
	wg           sync.WaitGroup
	closed       atomic.Bool
	closeOnce    sync.Once
	writeTimeout time.Duration
	now          func() time.Time
}

// DispatcherOption configures Dispatcher behavior.
type DispatcherOption func(*Dispatcher)

// WithWriteTimeout bounds each persistence attempt.
func WithWriteTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.writeTimeout = d
		}
	}
}

// WithDispatcherClock overrides the time source (useful for tests).
func WithDispatcherClock(fn func() time.Time) DispatcherOption {
	return func(dp *Dispatcher) {
		if fn != nil {
			dp.now = fn
		}
	}
}

// NewDispatcher starts the worker goroutine. buffer bounds how many entries
// may be pending before new ones are dropped (and counted).
func NewDispatcher(store Store, buffer int, opts ...DispatcherOption) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	d := &Dispatcher{
		store:        store,
		ch:           make(chan Entry, buffer),
		done:         make(chan struct{}),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(1)
	go d.run()
	return d
}

var _ Logger = (*Dispatcher)(nil)

// Log enqueues the entry. It never blocks the caller and never returns an
// error: on backpressure the entry is dropped and the drop is counted.
func (d *Dispatcher) Log(ctx context.Context, entry Entry) {
	if d == nil || d.closed.Load() {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = d.now().UTC()
	}
	select {
	case d.ch <- entry:
	default:
		obs.AuditDropped()
		obs.Logger().WithField("action", entry.Action).Warn("audit entry dropped: buffer full")
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case entry := <-d.ch:
			d.persist(entry)
		case <-d.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case entry := <-d.ch:
					d.persist(entry)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) persist(entry Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), d.writeTimeout)
	defer cancel()
	if err := d.store.Append(ctx, &entry); err != nil {
		obs.AuditWriteFailure()
		obs.Logger().WithError(err).WithField("action", entry.Action).
			Error("audit write failed")
	}
}

// Close stops accepting entries, drains the queue and waits for the worker.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
