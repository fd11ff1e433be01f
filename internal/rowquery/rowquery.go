// Package rowquery executes SQL queries and exposes their results as forward-only,
// closeable cursors of positional tuples. It is the only place where the toolkit
// turns driver rows into plain Go values.
package rowquery

import (
	"context"
	"database/sql"
	"fmt"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Cursor is a forward-only sequence of rows. Values of the current row are
// materialized by Next. A Cursor must be closed, Close is safe to call twice.
type Cursor struct {
	rows    *sql.Rows
	columns []string
	current []any
	err     error
	closed  bool
}

// Query runs query against q and returns a cursor over its result.
func Query(ctx context.Context, q Queryer, query string, args ...any) (*Cursor, error) {
	if q == nil {
		return nil, fmt.Errorf("rowquery: no connection for query %q", query)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("rowquery: %w\n  Query: %s", err, query)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rowquery: read columns: %w", err)
	}
	return &Cursor{rows: rows, columns: columns}, nil
}

// Columns returns the column names of the result.
func (c *Cursor) Columns() []string {
	return c.columns
}

// Next advances to the next row. It returns false when the result is
// exhausted or an error occurred; check Err afterwards.
func (c *Cursor) Next() bool {
	if c.closed || c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		c.current = nil
		return false
	}

	values := make([]any, len(c.columns))
	dest := make([]any, len(c.columns))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = fmt.Errorf("rowquery: scan: %w", err)
		c.current = nil
		return false
	}
	for i, v := range values {
		values[i] = normalize(v)
	}
	c.current = values
	return true
}

// Values returns the values of the current row.
func (c *Cursor) Values() []any {
	return c.current
}

// Err returns the first error encountered while iterating.
func (c *Cursor) Err() error {
	return c.err
}

// Close releases the underlying driver cursor.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.current = nil
	return c.rows.Close()
}

// normalize converts driver values to the types the rest of the toolkit
// compares on. Byte slices coming from text columns become strings.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return v
	}
}

// All drains the result of query into memory. It is meant for small
// results, e.g. metadata lookups and tests.
func All(ctx context.Context, q Queryer, query string, args ...any) ([][]any, error) {
	cur, err := Query(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out [][]any
	for cur.Next() {
		out = append(out, cur.Values())
	}
	return out, cur.Err()
}

// Count returns the number of rows produced by query.
func Count(ctx context.Context, q Queryer, query string) (int, error) {
	cur, err := Query(ctx, q, query)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	n := 0
	for cur.Next() {
		n++
	}
	return n, cur.Err()
}
