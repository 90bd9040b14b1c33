package outbox

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a bounded Queue kept in process memory.
// It is safe for concurrent use.
type InMemoryQueue struct {
	mu       sync.Mutex
	tasks    []Task
	leased   map[int64]Task
	nextSeq  int64
	capacity int

	// wake is signalled on every Enqueue and Release so that a blocked
	// Dequeue can re-check for eligible tasks.
	wake         chan struct{}
	pollInterval time.Duration
}

// NewInMemoryQueue creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		capacity:     capacity,
		leased:       make(map[int64]Task),
		wake:         make(chan struct{}, 1),
		pollInterval: 50 * time.Millisecond,
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if len(q.tasks)+len(q.leased) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	q.nextSeq++
	t.seq = q.nextSeq
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		task, wait := q.take(time.Now())
		if task != nil {
			return task, nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Ack forgets a leased task. It never blocks, so ctx is not consulted.
func (q *InMemoryQueue) Ack(_ context.Context, t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.leased[t.seq]; !ok {
		return ErrNotLeased
	}
	delete(q.leased, t.seq)
	return nil
}

// Release puts a leased task back in line. It never blocks, so ctx is not
// consulted.
func (q *InMemoryQueue) Release(_ context.Context, t *Task) error {
	q.mu.Lock()
	if _, ok := q.leased[t.seq]; !ok {
		q.mu.Unlock()
		return ErrNotLeased
	}
	delete(q.leased, t.seq)
	q.tasks = append(q.tasks, *t)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *InMemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// take leases the first task that is eligible at now, in FIFO order among
// tasks with the earliest NotBefore. If none is eligible it returns how
// long to wait before looking again.
func (q *InMemoryQueue) take(now time.Time) (*Task, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	best := -1
	for i, t := range q.tasks {
		if t.NotBefore.After(now) {
			continue
		}
		if best < 0 || t.NotBefore.Before(q.tasks[best].NotBefore) {
			best = i
		}
	}
	if best >= 0 {
		t := q.tasks[best]
		q.tasks = append(q.tasks[:best], q.tasks[best+1:]...)
		q.leased[t.seq] = t
		return &t, 0
	}

	wait := q.pollInterval
	for _, t := range q.tasks {
		if d := t.NotBefore.Sub(now); d < wait {
			wait = d
		}
	}
	return nil, wait
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) + len(q.leased)
}
