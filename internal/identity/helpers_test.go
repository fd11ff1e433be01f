package identity

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"jdbacl/internal/core"
	"jdbacl/internal/dialect"
)

// countingQueryer counts the queries sent to a database.
type countingQueryer struct {
	db *sql.DB

	mu      sync.Mutex
	queries []string
}

func (q *countingQueryer) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q.mu.Lock()
	q.queries = append(q.queries, query)
	q.mu.Unlock()
	return q.db.QueryContext(ctx, query, args...)
}

func (q *countingQueryer) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queries)
}

func openSQLite(t *testing.T, name string, ddl ...string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

// geoSchema is the metadata of the country/state/city test schema.
func geoSchema() *core.Database {
	return &core.Database{
		Name:    "geo",
		Dialect: core.DialectSQLite,
		Tables: []*core.Table{
			{
				Name:    "country",
				Columns: []*core.Column{{Name: "code", PrimaryKey: true}, {Name: "name"}},
				Constraints: []*core.Constraint{
					{Type: core.ConstraintPrimaryKey, Columns: []string{"code"}},
				},
			},
			{
				Name:    "state",
				Columns: []*core.Column{{Name: "id", PrimaryKey: true}, {Name: "code"}, {Name: "country"}},
				Constraints: []*core.Constraint{
					{Type: core.ConstraintPrimaryKey, Columns: []string{"id"}},
					{
						Name:              "fk_state_country",
						Type:              core.ConstraintForeignKey,
						Columns:           []string{"country"},
						ReferencedTable:   "country",
						ReferencedColumns: []string{"code"},
					},
				},
			},
			{
				Name:    "city",
				Columns: []*core.Column{{Name: "id", PrimaryKey: true}, {Name: "name"}, {Name: "state_id"}},
				Constraints: []*core.Constraint{
					{Type: core.ConstraintPrimaryKey, Columns: []string{"id"}},
					{
						Name:              "fk_city_state",
						Type:              core.ConstraintForeignKey,
						Columns:           []string{"state_id"},
						ReferencedTable:   "state",
						ReferencedColumns: []string{"id"},
					},
				},
			},
		},
	}
}

var geoDDL = []string{
	"CREATE TABLE country (code TEXT PRIMARY KEY, name TEXT)",
	"CREATE TABLE state (id INTEGER PRIMARY KEY, code TEXT, country TEXT REFERENCES country(code))",
	"CREATE TABLE city (id INTEGER PRIMARY KEY, name TEXT, state_id INTEGER REFERENCES state(id))",
}

func geoDatabase(t *testing.T, id string, rows ...string) (*Database, *countingQueryer) {
	t.Helper()
	conn := openSQLite(t, id, append(append([]string(nil), geoDDL...), rows...)...)
	q := &countingQueryer{db: conn}
	return &Database{
		ID:       id,
		Conn:     q,
		Renderer: dialect.ForDialect(core.DialectSQLite),
		Metadata: geoSchema(),
	}, q
}

func drain(t *testing.T, it TupleIterator) [][]any {
	t.Helper()
	var out [][]any
	for it.Next() {
		out = append(out, it.Tuple())
	}
	require.NoError(t, it.Err())
	require.NoError(t, it.Close())
	return out
}

// geoProvider registers country by natural pk, state owned by country and
// city owned by state.
func geoProvider(t *testing.T) *Provider {
	t.Helper()
	p := NewProvider()
	p.Register(NewNaturalPK("country"))
	state, err := NewSubNkPkQuery("state", []string{"country"}, "select code, id from state where country = ?", p)
	require.NoError(t, err)
	p.Register(state)
	city, err := NewSubNkPkQuery("city", []string{"state"}, "select name, id from city where state_id = ?", p)
	require.NoError(t, err)
	p.Register(city)
	return p
}
