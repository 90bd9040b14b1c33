package persistence

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

// SQLiteEventStore stores pathway events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

// Ensure SQLiteEventStore implements the interfaces.
var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pathway_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pathway_uuid TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_pathway_events_pathway ON pathway_events(pathway_uuid, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.PathwayEvent) error {
	ev = withTimestamp(ev)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pathway_events (pathway_uuid, at, type, actor, detail)
		VALUES (?, ?, ?, ?, ?)`,
		ev.PathwayUUID.String(),
		ev.At.UnixNano(),
		string(ev.Type),
		ev.Actor,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, type, actor, detail
		FROM pathway_events
		WHERE pathway_uuid = ?
		ORDER BY id ASC`, pathway.String())
	if err != nil {
		return nil, err
	}
	return scanEvents(rows, pathway)
}

func scanEvents(rows *sql.Rows, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	defer rows.Close()

	var out []api.PathwayEvent
	for rows.Next() {
		var (
			atN    int64
			typ    string
			actor  string
			detail string
		)
		if err := rows.Scan(&atN, &typ, &actor, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.PathwayEvent{
			PathwayUUID: pathway,
			At:          fromUnixNano(atN),
			Type:        api.EventType(typ),
			Actor:       actor,
			Detail:      detail,
		})
	}
	return out, rows.Err()
}
