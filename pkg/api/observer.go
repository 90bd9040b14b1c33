package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Observer receives callbacks from the pathway service for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay API requests.
type Observer interface {
	// OnPathwayEvent is called after a mutation has been stored.
	OnPathwayEvent(ctx context.Context, p *Pathway, ev PathwayEvent)

	// OnOperationFailed is called when an operation returns an error.
	// op is the Service method name; key is empty when unknown.
	OnOperationFailed(ctx context.Context, op string, key string, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnPathwayEvent(ctx context.Context, p *Pathway, ev PathwayEvent)         {}
func (NoopObserver) OnOperationFailed(ctx context.Context, op string, key string, err error) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnPathwayEvent(ctx context.Context, p *Pathway, ev PathwayEvent) {
	for _, o := range c.observers {
		o.OnPathwayEvent(ctx, p, ev)
	}
}

func (c *CompositeObserver) OnOperationFailed(ctx context.Context, op string, key string, err error) {
	for _, o := range c.observers {
		o.OnOperationFailed(ctx, op, key, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs pathway lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnPathwayEvent(ctx context.Context, p *Pathway, ev PathwayEvent) {
	o.Logger.InfoContext(ctx, string(ev.Type),
		slog.String("pathway", p.Key().String()),
		slog.String("actor", ev.Actor),
		slog.Int("draft_items", len(p.Draft.Items)),
		slog.Int("published_items", len(p.Published.Items)),
		slog.String("detail", ev.Detail),
	)
}

func (o *LoggingObserver) OnOperationFailed(ctx context.Context, op string, key string, err error) {
	// Client mistakes are routine; only unexpected failures are errors.
	level := slog.LevelError
	if IsValidationError(err) || isClientError(err) {
		level = slog.LevelDebug
	}
	o.Logger.Log(ctx, level, "pathway_operation_failed",
		slog.String("op", op),
		slog.String("pathway", key),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters. It implements Observer, and can be
// combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	created   atomic.Int64
	updated   atomic.Int64
	published atomic.Int64
	reverted  atomic.Int64
	deleted   atomic.Int64
	failed    atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Created   int64
	Updated   int64
	Published int64
	Reverted  int64
	Deleted   int64
	Failed    int64

	// Live is created minus deleted since the process started.
	Live int64
}

func (m *BasicMetrics) OnPathwayEvent(ctx context.Context, p *Pathway, ev PathwayEvent) {
	switch ev.Type {
	case EventPathwayCreated:
		m.created.Add(1)
	case EventPathwayDraftUpdated, EventPathwayOwnerChanged:
		m.updated.Add(1)
	case EventPathwayPublished:
		m.published.Add(1)
	case EventPathwayReverted:
		m.reverted.Add(1)
	case EventPathwayDeleted:
		m.deleted.Add(1)
	}
}

func (m *BasicMetrics) OnOperationFailed(ctx context.Context, op string, key string, err error) {
	m.failed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	created := m.created.Load()
	deleted := m.deleted.Load()
	return BasicMetricsSnapshot{
		Created:   created,
		Updated:   m.updated.Load(),
		Published: m.published.Load(),
		Reverted:  m.reverted.Load(),
		Deleted:   deleted,
		Failed:    m.failed.Load(),
		Live:      created - deleted,
	}
}
