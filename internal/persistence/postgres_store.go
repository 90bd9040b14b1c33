package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

// PostgresStore is a PathwayStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresStore struct {
	db *sql.DB
}

// Ensure PostgresStore implements PathwayStore.
var _ PathwayStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given
// database and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pathways (
			uuid TEXT PRIMARY KEY,
			owner_user_id BIGINT,
			owner_group_name TEXT NOT NULL DEFAULT '',
			draft JSONB NOT NULL,
			published JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pathways_owner_user ON pathways(owner_user_id);
		CREATE INDEX IF NOT EXISTS idx_pathways_owner_group ON pathways(owner_group_name);
	`)
	return err
}

func postgresPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func (s *PostgresStore) CreatePathway(ctx context.Context, p *api.Pathway) error {
	row, err := toSQLRow(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pathways (`+pathwayColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (uuid) DO NOTHING
	`,
		row.UUID,
		row.OwnerUserID,
		row.OwnerGroupName,
		string(row.Draft),
		string(row.Published),
		row.CreatedAt,
		row.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if err := affectedOrNotFound(res); err != nil {
		if errors.Is(err, ErrPathwayNotFound) {
			return ErrPathwayExists
		}
		return err
	}
	return nil
}

func (s *PostgresStore) UpdatePathway(ctx context.Context, p *api.Pathway) error {
	row, err := toSQLRow(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pathways
		SET owner_user_id = $1, owner_group_name = $2, draft = $3, published = $4, updated_at = $5
		WHERE uuid = $6
	`,
		row.OwnerUserID,
		row.OwnerGroupName,
		string(row.Draft),
		string(row.Published),
		row.UpdatedAt,
		row.UUID,
	)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pathwayColumns+`
		FROM pathways
		WHERE uuid = $1
	`, id.String())

	p, err := scanPathway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPathwayNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) DeletePathway(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pathways WHERE uuid = $1`, id.String())
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *PostgresStore) ListPathways(ctx context.Context, filter PathwayFilter) ([]*api.Pathway, error) {
	where, args := filterClause(filter, postgresPlaceholder)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pathwayColumns+`
		FROM pathways`+where+`
		ORDER BY created_at ASC, uuid ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	return scanPathways(rows)
}

// PostgresEventStore stores pathway events in PostgreSQL.
type PostgresEventStore struct {
	db *sql.DB
}

var _ EventStore = (*PostgresEventStore)(nil)

func NewPostgresEventStore(db *sql.DB) (*PostgresEventStore, error) {
	s := &PostgresEventStore{db: db}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pathway_events (
			id BIGSERIAL PRIMARY KEY,
			pathway_uuid TEXT NOT NULL,
			at BIGINT NOT NULL,
			type TEXT NOT NULL,
			actor TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_pathway_events_pathway ON pathway_events(pathway_uuid, id);
	`); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresEventStore) AppendEvent(ctx context.Context, ev api.PathwayEvent) error {
	ev = withTimestamp(ev)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pathway_events (pathway_uuid, at, type, actor, detail)
		VALUES ($1, $2, $3, $4, $5)
	`,
		ev.PathwayUUID.String(),
		ev.At.UnixNano(),
		string(ev.Type),
		ev.Actor,
		ev.Detail,
	)
	return err
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, pathway uuid.UUID) ([]api.PathwayEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT at, type, actor, detail
		FROM pathway_events
		WHERE pathway_uuid = $1
		ORDER BY id ASC
	`, pathway.String())
	if err != nil {
		return nil, err
	}
	return scanEvents(rows, pathway)
}
