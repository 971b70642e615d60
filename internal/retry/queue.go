/*
Package retry holds the in-process queue of failed room-deletion attempts and
the background drainer that re-issues them against the room provider.

Items run to success or exhaustion; cancellation of an individual item is not
supported. Exhaustion is terminal but non-crashing: by the time anything lands
here the coordinator has already cleaned all state it owns, so the worst case
is a room left behind on the provider side.
*/
package retry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/communet/sessiond/internal/observability"
	"github.com/communet/sessiond/pkg/ports"
)

type item struct {
	roomName  string
	attempts  int
	notBefore time.Time
}

// Queue implements ports.DeletionQueue with a ticker-driven drainer.
type Queue struct {
	provider ports.RoomProvider
	logger   *slog.Logger
	metrics  *observability.Metrics

	interval    time.Duration
	backoff     time.Duration
	maxAttempts int
	callTimeout time.Duration
	now         func() time.Time

	mu    sync.Mutex
	items []item
}

type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithMetrics wires the retry counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

// WithInterval sets how often the drainer wakes up.
func WithInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.interval = d
	}
}

// WithBackoff sets the base delay before an item becomes due again.
// The delay doubles with each failed attempt.
func WithBackoff(d time.Duration) Option {
	return func(q *Queue) {
		q.backoff = d
	}
}

// WithMaxAttempts bounds the total provider calls per room, counting the
// original one made at teardown.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		q.maxAttempts = n
	}
}

// WithCallTimeout bounds each re-issued provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.callTimeout = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New creates a retry queue for the given provider.
func New(provider ports.RoomProvider, opts ...Option) *Queue {
	q := &Queue{
		provider:    provider,
		logger:      slog.Default(),
		metrics:     observability.NewNop(),
		interval:    30 * time.Second,
		backoff:     time.Minute,
		maxAttempts: 5,
		callTimeout: 5 * time.Second,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Add enqueues a retry item for roomName carrying its attempt count.
// Safe for concurrent use; never blocks the caller.
func (q *Queue) Add(roomName string, attempts int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, item{
		roomName:  roomName,
		attempts:  attempts,
		notBefore: q.now().Add(q.backoff),
	})
	q.logger.Info("queued room deletion retry", "room", roomName, "attempts", attempts)
}

// Len returns the number of pending items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Start runs the drainer until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Drain(ctx)
			}
		}
	}()
}

// Drain re-issues the deletion call for every due item. Failed items are
// re-enqueued with an incremented attempt count and doubled backoff until the
// attempt limit is reached, then dropped with a terminal log entry.
func (q *Queue) Drain(ctx context.Context) {
	due := q.takeDue()

	for _, it := range due {
		callCtx, cancel := context.WithTimeout(ctx, q.callTimeout)
		err := q.provider.DeleteRoom(callCtx, it.roomName)
		cancel()

		if err == nil {
			q.metrics.RetryAttempts.WithLabelValues("ok").Inc()
			q.logger.Info("room deleted on retry", "room", it.roomName, "attempts", it.attempts)
			continue
		}

		q.metrics.RetryAttempts.WithLabelValues("fail").Inc()
		next := it.attempts + 1
		if next >= q.maxAttempts {
			q.metrics.RetryExhausted.Inc()
			q.logger.Error("giving up on room deletion",
				"room", it.roomName, "attempts", next, "err", err)
			continue
		}

		q.requeue(item{
			roomName:  it.roomName,
			attempts:  next,
			notBefore: q.now().Add(q.backoff << (next - 1)),
		})
		q.logger.Warn("room deletion retry failed",
			"room", it.roomName, "attempts", next, "err", err)
	}
}

func (q *Queue) takeDue() []item {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var due, rest []item
	for _, it := range q.items {
		if it.notBefore.After(now) {
			rest = append(rest, it)
		} else {
			due = append(due, it)
		}
	}
	q.items = rest
	return due
}

func (q *Queue) requeue(it item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, it)
}
