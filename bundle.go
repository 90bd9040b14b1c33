package pathways

import (
	"database/sql"

	"github.com/petrijr/pathways/internal/outbox"
	"github.com/petrijr/pathways/internal/service"
	"github.com/petrijr/pathways/pkg/notify"
)

// NotifyingBundle wires together a Service, a durable change notification
// queue, and a Worker that delivers queued notifications.
//
// For now, we only provide a SQLite-backed bundle.
type NotifyingBundle struct {
	Service Service
	Worker  *notify.Worker

	// queue is kept unexported; it is useful for inspection in tests.
	queue outbox.Queue
}

// NewSQLiteBundle constructs a durable Service + Queue + Worker combo
// sharing the same SQLite database. Pathways, their history and pending
// notifications are all persisted in db.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:pathways.db?_journal=WAL")
//	bundle, err := pathways.NewSQLiteBundle(db, sink, pathways.Options{...}, pathways.Retry(3).Policy())
//	go bundle.Worker.Run(ctx)
func NewSQLiteBundle(db *sql.DB, sink notify.Sink, opts Options, retry RetryPolicy) (*NotifyingBundle, error) {
	p, err := service.SQLitePersistence(db)
	if err != nil {
		return nil, err
	}

	q, err := outbox.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}

	w := notify.NewWithConfig(q, sink, notify.Config{Retry: retry, Logger: opts.Logger})

	return &NotifyingBundle{
		Service: service.New(opts.config(p, q)),
		Worker:  w,
		queue:   q,
	}, nil
}

// Pending returns the number of notifications waiting for delivery.
func (b *NotifyingBundle) Pending() int {
	return b.queue.Len()
}
