package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/pathways/internal/outbox"
	"github.com/petrijr/pathways/pkg/api"
)

// ErrDeliveryAbandoned wraps the last delivery error once a task has used
// all of its attempts.
var ErrDeliveryAbandoned = errors.New("notification delivery abandoned")

// Config controls retries and logging of a Worker.
type Config struct {
	// Retry is applied to failed deliveries. The zero value delivers once.
	Retry api.RetryPolicy
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and delivers them to a Sink.
type Worker struct {
	queue  outbox.Queue
	sink   Sink
	retry  api.RetryPolicy
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Worker that delivers each task once.
func New(queue outbox.Queue, sink Sink) *Worker {
	return NewWithConfig(queue, sink, Config{})
}

// NewWithConfig creates a Worker using cfg.
func NewWithConfig(queue outbox.Queue, sink Sink, cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:  queue,
		sink:   sink,
		retry:  cfg.Retry,
		logger: logger,
		now:    time.Now,
	}
}

// settleTimeout bounds Ack and Release, which run even after the caller's
// context is cancelled so that shutdown never drops a leased task.
const settleTimeout = 5 * time.Second

// ProcessOne pulls a single task from the queue and delivers it.
// Returns (processed, error):
//   - processed == false: no task was obtained; err is the dequeue error
//     (usually the context's).
//   - processed == true, err == nil: delivered, or rescheduled for retry.
//   - processed == true, err != nil: the task was dropped, could not be
//     settled, or delivery was interrupted by ctx and the task was handed
//     back without using an attempt.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if task.Type != outbox.TaskTypePathwayChanged {
		// Unknown task type; drop it but return an error so this isn't silently ignored.
		if err := w.queue.Ack(settleCtx, task); err != nil {
			return true, fmt.Errorf("ack %s: %w", task.ID, err)
		}
		return true, errors.New("unknown task type: " + string(task.Type))
	}

	deliverErr := w.sink.Deliver(ctx, NotificationFromTask(*task))
	if deliverErr == nil {
		if err := w.queue.Ack(settleCtx, task); err != nil {
			return true, fmt.Errorf("ack %s: %w", task.ID, err)
		}
		return true, nil
	}

	if ctx.Err() != nil {
		w.logger.InfoContext(settleCtx, "pathway_notification_interrupted",
			slog.String("id", task.ID),
			slog.String("pathway", task.PathwayKey),
		)
		if err := w.queue.Release(settleCtx, task); err != nil {
			return true, fmt.Errorf("release %s: %w", task.ID, err)
		}
		return true, ctx.Err()
	}

	attempt := task.Attempts + 1
	if attempt >= w.retry.Attempts() {
		if err := w.queue.Ack(settleCtx, task); err != nil {
			return true, fmt.Errorf("ack %s: %w", task.ID, err)
		}
		return true, fmt.Errorf("%w after %d attempts: %w", ErrDeliveryAbandoned, attempt, deliverErr)
	}

	task.Attempts = attempt
	task.NotBefore = w.now().Add(w.retry.Delay(attempt + 1))
	w.logger.WarnContext(ctx, "pathway_notification_retry",
		slog.String("id", task.ID),
		slog.String("pathway", task.PathwayKey),
		slog.Int("attempt", attempt),
		slog.Time("not_before", task.NotBefore),
		slog.Any("error", deliverErr),
	)
	if err := w.queue.Release(settleCtx, task); err != nil {
		return true, fmt.Errorf("reschedule %s: %w", task.ID, err)
	}
	return true, nil
}

// Run processes tasks until ctx is cancelled. Delivery failures are
// logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			if processed && err != nil && !errors.Is(err, ctx.Err()) {
				w.logger.ErrorContext(context.WithoutCancel(ctx), "pathway_notification_failed", slog.Any("error", err))
			}
			return nil
		}
		if err == nil {
			continue
		}
		if !processed {
			// Dequeue failed without a cancelled context; back off briefly.
			w.logger.ErrorContext(ctx, "pathway_notification_dequeue_failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		w.logger.ErrorContext(ctx, "pathway_notification_failed", slog.Any("error", err))
	}
}
