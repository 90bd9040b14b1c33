// Package outbox queues pathway change notifications until a worker has
// delivered them.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/petrijr/pathways/pkg/api"
	"github.com/petrijr/pathways/pkg/keys"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypePathwayChanged delivers a change notification for one event.
	TaskTypePathwayChanged TaskType = "pathway-changed"
)

var (
	// ErrQueueFull is returned by bounded queues that cannot take more tasks.
	ErrQueueFull = errors.New("outbox queue is full")

	// ErrNotLeased is returned by Ack and Release for a task that was not
	// handed out by Dequeue on the same queue, or whose lease was settled.
	ErrNotLeased = errors.New("outbox task is not leased")
)

// Task represents one notification waiting for delivery.
type Task struct {
	// ID is a time-ordered ksuid, stable across retries so receivers can
	// deduplicate.
	ID   string
	Type TaskType

	// PathwayKey is the opaque key of the pathway that changed.
	PathwayKey string
	Event      api.PathwayEvent

	// Attempts counts failed deliveries so far.
	Attempts int

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately".
	NotBefore time.Time

	// seq identifies the stored row of a leased task.
	seq int64
}

// NewTask builds the notification task for ev.
func NewTask(ev api.PathwayEvent) Task {
	return Task{
		ID:         ksuid.New().String(),
		Type:       TaskTypePathwayChanged,
		PathwayKey: keys.NewPathwayKey(ev.PathwayUUID).String(),
		Event:      ev,
		EnqueuedAt: time.Now(),
	}
}

// Queue is a simple FIFO task queue honouring NotBefore.
//
// Dequeue leases a task rather than removing it. The task stays queued
// until the caller settles the lease with Ack or Release, so a task is
// never lost between being handed out and being delivered.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue leases and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Ack removes a leased task for good.
	Ack(ctx context.Context, t *Task) error

	// Release hands a leased task back, storing its Attempts and NotBefore.
	Release(ctx context.Context, t *Task) error

	// Len returns the approximate number of tasks queued, leased ones
	// included.
	Len() int
}
