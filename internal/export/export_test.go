package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE auth_user (
	id INTEGER PRIMARY KEY,
	username TEXT NOT NULL
);
CREATE TABLE courseware_studentmodule (
	id INTEGER PRIMARY KEY,
	student_id INTEGER NOT NULL,
	course_id TEXT NOT NULL,
	module_state_key TEXT NOT NULL,
	state TEXT
);`

func newDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	db.MustExec(schema)
	db.MustExec(`INSERT INTO auth_user (id, username) VALUES (1, 'alice'), (2, 'bob')`)
	return db
}

func insertModule(t *testing.T, db *sqlx.DB, id, student int64, key string, state any) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO courseware_studentmodule (id, student_id, course_id, module_state_key, state)
VALUES (?, ?, ?, ?, ?)`, id, student, "course-v1:LabXchange+Pathways+2020", key, state)
	require.NoError(t, err)
}

func TestWriteCSV_DefaultPrefixes(t *testing.T) {
	db := newDB(t)
	insertModule(t, db, 1, 1, "lb:LabXchange:lib1:problem:p1", `{"attempts": 1}`)
	insertModule(t, db, 2, 2, "block-v1:edX+DemoX+2024+type@html+block@intro", `{}`)
	insertModule(t, db, 3, 2, "lx-pb:b0fd731a-5bab-4fe2-8491-405292e5176e:problem:0ff24589", nil)
	insertModule(t, db, 4, 1, "lb:OtherOrg:lib1:html:h1", `{}`)

	var buf bytes.Buffer
	n, err := New(db, Options{}).WriteCSV(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		Columns,
		{"alice", "course-v1:LabXchange+Pathways+2020", "lb:LabXchange:lib1:problem:p1", `{"attempts": 1}`},
		{"bob", "course-v1:LabXchange+Pathways+2020", "lx-pb:b0fd731a-5bab-4fe2-8491-405292e5176e:problem:0ff24589", ""},
	}, records)
}

func TestEach_ChunksInIDOrder(t *testing.T) {
	db := newDB(t)
	for i := int64(1); i <= 7; i++ {
		insertModule(t, db, i*10, 1+i%2, fmt.Sprintf("lb:SomeOrg:lib:html:h%d", i), nil)
	}

	var ids []int64
	err := New(db, Options{Prefixes: []string{"lb:SomeOrg:"}, ChunkSize: 3}).Each(context.Background(), func(r Row) error {
		ids = append(ids, r.ID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int64{10, 20, 30, 40, 50, 60, 70}, ids)
}

func TestEach_LikeWildcardsAreLiteral(t *testing.T) {
	db := newDB(t)
	insertModule(t, db, 1, 1, "lb:Some_Org:lib:html:h1", nil)
	insertModule(t, db, 2, 1, "lb:SomeXOrg:lib:html:h1", nil)

	var keys []string
	err := New(db, Options{Prefixes: []string{"lb:Some_Org:"}}).Each(context.Background(), func(r Row) error {
		keys = append(keys, r.ModuleStateKey)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"lb:Some_Org:lib:html:h1"}, keys)
}

func TestExplain(t *testing.T) {
	db := newDB(t)

	var buf bytes.Buffer
	require.NoError(t, New(db, Options{}).Explain(context.Background(), &buf))
	require.Contains(t, buf.String(), `"detail"`)
}

func TestParsePrefixes(t *testing.T) {
	require.Equal(t, []string{"lb:SomeOrg", "lb:AnotherOrg"}, ParsePrefixes("lb:SomeOrg, lb:AnotherOrg,"))
	require.Empty(t, ParsePrefixes(""))
}
