package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

// SQLiteStore is a PathwayStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements PathwayStore.
var _ PathwayStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given
// database and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pathways (
			uuid TEXT PRIMARY KEY,
			owner_user_id INTEGER,
			owner_group_name TEXT NOT NULL DEFAULT '',
			draft TEXT NOT NULL,
			published TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_pathways_owner_user ON pathways(owner_user_id);
		CREATE INDEX IF NOT EXISTS idx_pathways_owner_group ON pathways(owner_group_name);
	`)
	return err
}

func sqlitePlaceholder(int) string { return "?" }

func (s *SQLiteStore) CreatePathway(ctx context.Context, p *api.Pathway) error {
	row, err := toSQLRow(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pathways (`+pathwayColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uuid) DO NOTHING`,
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

func (s *SQLiteStore) UpdatePathway(ctx context.Context, p *api.Pathway) error {
	row, err := toSQLRow(p)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pathways
		SET owner_user_id = ?, owner_group_name = ?, draft = ?, published = ?, updated_at = ?
		WHERE uuid = ?`,
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

func (s *SQLiteStore) GetPathway(ctx context.Context, id uuid.UUID) (*api.Pathway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pathwayColumns+`
		FROM pathways
		WHERE uuid = ?`,
		id.String(),
	)
	p, err := scanPathway(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPathwayNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) DeletePathway(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pathways WHERE uuid = ?`, id.String())
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *SQLiteStore) ListPathways(ctx context.Context, filter PathwayFilter) ([]*api.Pathway, error) {
	where, args := filterClause(filter, sqlitePlaceholder)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pathwayColumns+`
		FROM pathways`+where+`
		ORDER BY created_at ASC, uuid ASC`, args...)
	if err != nil {
		return nil, err
	}
	return scanPathways(rows)
}
