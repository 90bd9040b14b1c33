// Package export dumps learner state for pathway and library blocks from
// the LMS courseware_studentmodule table.
package export

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// DefaultPrefixes are the block key prefixes exported when none are given.
var DefaultPrefixes = []string{
	"lb:LabXchange:",
	"lb:HarvardX:",
	"lb:SDGAcademyX:",
	"lx-pb:",
}

// DefaultChunkSize is the number of rows fetched per query.
const DefaultChunkSize = 1000

// Columns is the CSV header row.
var Columns = []string{"student_username", "course_id", "module_state_key", "state"}

// Row is one exported student module.
type Row struct {
	ID              int64          `db:"id"`
	StudentUsername string         `db:"student_username"`
	CourseID        string         `db:"course_id"`
	ModuleStateKey  string         `db:"module_state_key"`
	State           sql.NullString `db:"state"`
}

// Options controls which rows are exported.
type Options struct {
	// Prefixes selects rows whose module_state_key starts with any of them.
	// Empty means DefaultPrefixes.
	Prefixes  []string
	ChunkSize int
}

// Exporter reads student modules in id order using a keyset cursor.
type Exporter struct {
	db     *sqlx.DB
	prefix []string
	chunk  int
}

// New returns an Exporter over db, which must be a MySQL or SQLite
// database holding courseware_studentmodule and auth_user.
func New(db *sqlx.DB, opts Options) *Exporter {
	prefixes := opts.Prefixes
	if len(prefixes) == 0 {
		prefixes = DefaultPrefixes
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Exporter{db: db, prefix: prefixes, chunk: chunk}
}

// Open connects to a MySQL DSN such as
// "user:pass@tcp(localhost:3306)/edxapp?parseTime=true".
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

// Prefixes returns the block key prefixes being exported.
func (e *Exporter) Prefixes() []string { return e.prefix }

// ParsePrefixes splits a comma-separated prefix list.
func ParsePrefixes(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// escapeLike escapes LIKE wildcards using '!' as the escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// query returns the chunk query and its arguments for rows after afterID.
func (e *Exporter) query(afterID int64) (string, []any) {
	conds := make([]string, len(e.prefix))
	args := make([]any, 0, len(e.prefix)+2)
	args = append(args, afterID)
	for i, p := range e.prefix {
		conds[i] = "sm.module_state_key LIKE ? ESCAPE '!'"
		args = append(args, escapeLike(p)+"%")
	}
	args = append(args, e.chunk)

	q := `SELECT sm.id, u.username AS student_username, sm.course_id, sm.module_state_key, sm.state
FROM courseware_studentmodule sm
JOIN auth_user u ON u.id = sm.student_id
WHERE sm.id > ? AND (` + strings.Join(conds, " OR ") + `)
ORDER BY sm.id
LIMIT ?`
	return q, args
}

// Each calls fn for every matching row in id order.
func (e *Exporter) Each(ctx context.Context, fn func(Row) error) error {
	var after int64
	for {
		q, args := e.query(after)
		var rows []Row
		if err := e.db.SelectContext(ctx, &rows, q, args...); err != nil {
			return fmt.Errorf("select student modules after id %d: %w", after, err)
		}
		for _, r := range rows {
			if err := fn(r); err != nil {
				return err
			}
		}
		if len(rows) < e.chunk {
			return nil
		}
		after = rows[len(rows)-1].ID
	}
}

// WriteCSV writes the header and every matching row to w and returns the
// number of data rows written. A NULL state is written as an empty field.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return 0, err
	}
	n := 0
	err := e.Each(ctx, func(r Row) error {
		n++
		return cw.Write([]string{r.StudentUsername, r.CourseID, r.ModuleStateKey, r.State.String})
	})
	cw.Flush()
	if err != nil {
		return n, err
	}
	return n, cw.Error()
}

// Explain writes the database's query plan for the first chunk query as
// JSON, without reading any rows.
func (e *Exporter) Explain(ctx context.Context, w io.Writer) error {
	q, args := e.query(0)
	switch e.db.DriverName() {
	case "mysql":
		q = "EXPLAIN FORMAT=JSON " + q
	default:
		q = "EXPLAIN QUERY PLAN " + q
	}

	rows, err := e.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("explain: %w", err)
	}
	defer rows.Close()

	var plan []map[string]any
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return fmt.Errorf("explain: %w", err)
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		plan = append(plan, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("explain: %w", err)
	}

	// MySQL returns the whole plan as one JSON document.
	if len(plan) == 1 && len(plan[0]) == 1 {
		for _, v := range plan[0] {
			if s, ok := v.(string); ok && json.Valid([]byte(s)) {
				_, err := io.WriteString(w, s+"\n")
				return err
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
