package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// DefaultLease is how long a dequeued task stays hidden from other
// workers before it is handed out again.
const DefaultLease = time.Minute

// SQLiteQueue is a persistent task queue implementation backed by SQLite.
// It is safe for concurrent use for our purposes, using simple FIFO semantics
// based on an auto-incrementing id.
//
// Rows are leased by setting claimed_until and are only deleted by Ack. A
// worker that dies mid-delivery leaves a lease that expires, after which the
// task is delivered again.
type SQLiteQueue struct {
	db           *sql.DB
	pollInterval time.Duration
	lease        time.Duration
}

// NewSQLiteQueue initializes the outbox table in the given DB and returns a new queue.
func NewSQLiteQueue(db *sql.DB) (*SQLiteQueue, error) {
	q := &SQLiteQueue{
		db:           db,
		pollInterval: 20 * time.Millisecond,
		lease:        DefaultLease,
	}
	if err := q.initSchema(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) initSchema() error {
	_, err := q.db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			type TEXT NOT NULL,
			pathway_key TEXT NOT NULL,
			event BLOB,
			enqueued_at INTEGER NOT NULL,
			not_before INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			claimed_until INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_tasks_not_before ON outbox_tasks(not_before, id);
	`)
	return err
}

// Ensure SQLiteQueue implements Queue.
var _ Queue = (*SQLiteQueue)(nil)

func (q *SQLiteQueue) Enqueue(ctx context.Context, t Task) error {
	event, err := json.Marshal(t.Event)
	if err != nil {
		return err
	}

	enqueuedAt := t.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now()
	}
	notBefore := t.NotBefore
	if notBefore.IsZero() {
		notBefore = enqueuedAt
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO outbox_tasks (task_id, type, pathway_key, event, enqueued_at, not_before, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Type),
		t.PathwayKey,
		event,
		enqueuedAt.UnixNano(),
		notBefore.UnixNano(),
		t.Attempts,
	)
	return err
}

func (q *SQLiteQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		task, err := q.claim(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		if task != nil {
			return task, nil
		}

		// Nothing available: sleep a bit and retry.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// claim leases the next eligible row in one transaction.
// It returns nil, nil when nothing is eligible.
func (q *SQLiteQueue) claim(ctx context.Context, now time.Time) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		task        Task
		typeStr     string
		event       []byte
		enqueuedInt int64
		notBefore   int64
	)
	row := tx.QueryRowContext(ctx, `
		SELECT id, task_id, type, pathway_key, event, enqueued_at, not_before, attempts
		FROM outbox_tasks
		WHERE not_before <= ? AND claimed_until <= ?
		ORDER BY not_before, id
		LIMIT 1`, now.UnixNano(), now.UnixNano())
	err = row.Scan(&task.seq, &task.ID, &typeStr, &task.PathwayKey, &event, &enqueuedInt, &notBefore, &task.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE outbox_tasks SET claimed_until = ?
		WHERE id = ? AND claimed_until <= ?`,
		now.Add(q.lease).UnixNano(), task.seq, now.UnixNano())
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		// Another worker leased it first.
		return nil, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if len(event) > 0 {
		if err := json.Unmarshal(event, &task.Event); err != nil {
			return nil, err
		}
	}
	task.Type = TaskType(typeStr)
	task.EnqueuedAt = time.Unix(0, enqueuedInt)
	task.NotBefore = time.Unix(0, notBefore)
	return &task, nil
}

// Ack deletes the leased row.
func (q *SQLiteQueue) Ack(ctx context.Context, t *Task) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM outbox_tasks WHERE id = ? AND claimed_until > 0`, t.seq)
	if err != nil {
		return err
	}
	return leasedRow(res)
}

// Release clears the lease and stores the task's retry state.
func (q *SQLiteQueue) Release(ctx context.Context, t *Task) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE outbox_tasks SET attempts = ?, not_before = ?, claimed_until = 0
		WHERE id = ? AND claimed_until > 0`,
		t.Attempts, t.NotBefore.UnixNano(), t.seq)
	if err != nil {
		return err
	}
	return leasedRow(res)
}

func leasedRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotLeased
	}
	return nil
}

func (q *SQLiteQueue) Len() int {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox_tasks`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
