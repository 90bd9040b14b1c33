package persistence

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/petrijr/pathways/pkg/api"
)

// Column order shared by the SQLite and PostgreSQL stores.
const pathwayColumns = "uuid, owner_user_id, owner_group_name, draft, published, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

// sqlPathwayRow is the column representation of a pathway.
type sqlPathwayRow struct {
	UUID           string
	OwnerUserID    sql.NullInt64
	OwnerGroupName string
	Draft          []byte
	Published      []byte
	CreatedAt      int64
	UpdatedAt      int64
}

func toSQLRow(p *api.Pathway) (sqlPathwayRow, error) {
	draft, err := EncodeData(p.Draft)
	if err != nil {
		return sqlPathwayRow{}, fmt.Errorf("encode draft: %w", err)
	}
	published, err := EncodeData(p.Published)
	if err != nil {
		return sqlPathwayRow{}, fmt.Errorf("encode published: %w", err)
	}
	row := sqlPathwayRow{
		UUID:           p.UUID.String(),
		OwnerGroupName: p.Owner.GroupName,
		Draft:          draft,
		Published:      published,
		CreatedAt:      toUnixNano(p.CreatedAt),
		UpdatedAt:      toUnixNano(p.UpdatedAt),
	}
	if p.Owner.UserID != nil {
		row.OwnerUserID = sql.NullInt64{Int64: *p.Owner.UserID, Valid: true}
	}
	return row, nil
}

func scanPathway(sc rowScanner) (*api.Pathway, error) {
	var row sqlPathwayRow
	if err := sc.Scan(
		&row.UUID,
		&row.OwnerUserID,
		&row.OwnerGroupName,
		&row.Draft,
		&row.Published,
		&row.CreatedAt,
		&row.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(row.UUID)
	if err != nil {
		return nil, fmt.Errorf("stored uuid %q: %w", row.UUID, err)
	}
	draft, err := DecodeData(row.Draft)
	if err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	published, err := DecodeData(row.Published)
	if err != nil {
		return nil, fmt.Errorf("decode published: %w", err)
	}

	p := &api.Pathway{
		UUID:      id,
		Owner:     api.Owner{GroupName: row.OwnerGroupName},
		Draft:     draft,
		Published: published,
		CreatedAt: fromUnixNano(row.CreatedAt),
		UpdatedAt: fromUnixNano(row.UpdatedAt),
	}
	if row.OwnerUserID.Valid {
		uid := row.OwnerUserID.Int64
		p.Owner.UserID = &uid
	}
	return p, nil
}

func scanPathways(rows *sql.Rows) ([]*api.Pathway, error) {
	defer rows.Close()

	result := []*api.Pathway{}
	for rows.Next() {
		p, err := scanPathway(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// filterClause builds a WHERE clause; placeholder renders the n-th
// (1-based) bind parameter for the dialect.
func filterClause(filter PathwayFilter, placeholder func(n int) string) (string, []any) {
	var clauses []string
	var args []any

	if filter.OwnerUserID != nil {
		args = append(args, *filter.OwnerUserID)
		clauses = append(clauses, "owner_user_id = "+placeholder(len(args)))
	}
	if filter.OwnerGroupName != "" {
		args = append(args, filter.OwnerGroupName)
		clauses = append(clauses, "owner_group_name = "+placeholder(len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func affectedOrNotFound(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPathwayNotFound
	}
	return nil
}
