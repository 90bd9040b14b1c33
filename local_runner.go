package pathways

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/petrijr/pathways/internal/outbox"
	"github.com/petrijr/pathways/internal/service"
	"github.com/petrijr/pathways/pkg/notify"
)

// LocalRunner bundles an in-memory Service, an in-memory notification
// queue, and a Worker to provide a simple "local runner" for development
// and debugging.
//
// Typical usage:
//
//	runner := pathways.NewLocalRunner(notify.LogSink{}, pathways.Options{...})
//	_ = runner.StartWorkers(ctx, 2)
//	pw, err := runner.Service.Create(ctx, principal, pathways.CreateRequest{})
//	...
//	runner.Stop()
type LocalRunner struct {
	// Service is the in-memory pathway service used by this runner.
	Service Service

	// Worker delivers notifications queued by Service.
	Worker *notify.Worker

	queue  *outbox.InMemoryQueue
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewLocalRunner constructs a LocalRunner delivering notifications to sink
// once, without retries.
//
// This is intended for local development, tests, and simple single-process
// deployments.
func NewLocalRunner(sink notify.Sink, opts Options) *LocalRunner {
	q := outbox.NewInMemoryQueue(1024)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalRunner{
		Service: service.New(opts.config(service.InMemoryPersistence(), q)),
		Worker:  notify.NewWithConfig(q, sink, notify.Config{Logger: logger}),
		queue:   q,
		logger:  logger,
	}
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("pathways: LocalRunner already started")
	}

	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()

			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					// Cancellation is a clean shutdown signal.
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Keep going so a single bad notification doesn't kill the loop.
					r.logger.ErrorContext(ctx, "local runner notification failed", slog.Any("error", err))
					continue
				}
				if !processed && ctx.Err() != nil {
					return
				}
			}
		}()
	}

	return nil
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Pending returns the number of notifications waiting for delivery.
func (r *LocalRunner) Pending() int {
	return r.queue.Len()
}
