// Package identity reconciles rows of two databases that hold the same logical
// data under different primary keys. Every table gets a Model that derives a
// stable natural key (NK) for each of its rows, a KeyMapper indexes NK and primary
// key (PK) per table and database, and the Transcoder rewrites the PK and the
// foreign keys of a source row into target identifiers.
package identity

import (
	"context"
	"fmt"
	"strings"

	"jdbacl/internal/core"
	"jdbacl/internal/dialect"
	"jdbacl/internal/rowquery"
)

// Metadata exposes the tables of a database. *core.Database implements it.
type Metadata interface {
	FindTable(name string) *core.Table
}

var _ Metadata = (*core.Database)(nil)

// Database binds a database id to a connection, its SQL dialect and its metadata.
type Database struct {
	ID       string
	Conn     rowquery.Queryer
	Renderer dialect.Renderer
	Metadata Metadata
}

func (db *Database) renderer() dialect.Renderer {
	if db.Renderer == nil {
		return dialect.ForDialect(core.DialectUnknown)
	}
	return db.Renderer
}

func (db *Database) table(name string) *core.Table {
	if db.Metadata == nil {
		return nil
	}
	return db.Metadata.FindTable(name)
}

// TupleIterator is a lazy, finite sequence of NK/PK tuples shaped
// [naturalKey, pk1, ..., pkN]. It must be drained or closed.
type TupleIterator interface {
	Next() bool
	Tuple() []any
	Err() error
	Close() error
}

// Model is the identity definition of one table.
type Model interface {
	// Table returns the name of the table the identity describes.
	Table() string
	// Description returns a short human readable description.
	Description() string
	// Irrelevant lists columns that are ignored when rows are compared.
	Irrelevant() []string
	// NkPkIterator queries db for the NK/PK tuples of all rows of the table.
	NkPkIterator(ctx context.Context, db *Database, mapper KeyMapper) (TupleIterator, error)
}

// ExtractNK returns the natural key of a tuple.
func ExtractNK(tuple []any) string {
	if len(tuple) == 0 {
		return ""
	}
	return ValueString(tuple[0])
}

// ExtractPK returns the primary key of a tuple: the second element for a
// scalar key, the remaining elements as []any for a composite key.
func ExtractPK(tuple []any) (any, error) {
	switch {
	case len(tuple) < 2:
		return nil, fmt.Errorf("identity: tuple %v: %w", tuple, ErrNoPrimaryKey)
	case len(tuple) == 2:
		return tuple[1], nil
	default:
		pk := make([]any, len(tuple)-1)
		copy(pk, tuple[1:])
		return pk, nil
	}
}

// base holds what every identity variant shares.
type base struct {
	table      string
	irrelevant []string
}

func (b *base) Table() string { return b.table }

func (b *base) Irrelevant() []string { return b.irrelevant }

// SetIrrelevant sets the columns ignored by equivalence checks.
func (b *base) SetIrrelevant(columns []string) {
	b.irrelevant = append([]string(nil), columns...)
}

// IsIrrelevant reports whether column is one of the irrelevant columns.
func (b *base) IsIrrelevant(column string) bool {
	for _, c := range b.irrelevant {
		if strings.EqualFold(c, column) {
			return true
		}
	}
	return false
}

// cursorIterator adapts a rowquery cursor to TupleIterator. An optional
// transform repackages raw rows into NK/PK tuples.
type cursorIterator struct {
	cur       *rowquery.Cursor
	transform func([]any) []any
	current   []any
}

func newCursorIterator(cur *rowquery.Cursor, transform func([]any) []any) *cursorIterator {
	return &cursorIterator{cur: cur, transform: transform}
}

func (it *cursorIterator) Next() bool {
	if !it.cur.Next() {
		it.current = nil
		return false
	}
	row := it.cur.Values()
	if it.transform != nil {
		row = it.transform(row)
	}
	it.current = row
	return true
}

func (it *cursorIterator) Tuple() []any { return it.current }

func (it *cursorIterator) Err() error { return it.cur.Err() }

func (it *cursorIterator) Close() error { return it.cur.Close() }

func query(ctx context.Context, db *Database, table, sql string, transform func([]any) []any) (TupleIterator, error) {
	if db == nil || db.Conn == nil {
		return nil, configErrorf("", table, "no database connection")
	}
	cur, err := rowquery.Query(ctx, db.Conn, sql)
	if err != nil {
		return nil, fmt.Errorf("identity: database %q table %q: %w", db.ID, table, err)
	}
	return newCursorIterator(cur, transform), nil
}

func selectColumns(table string, columns ...[]string) string {
	var all []string
	for _, cols := range columns {
		all = append(all, cols...)
	}
	return "SELECT " + strings.Join(all, ", ") + " FROM " + table
}

// primaryKeyColumns resolves the PK columns of table from db metadata.
func primaryKeyColumns(db *Database, table string) ([]string, error) {
	t := db.table(table)
	if t == nil {
		return nil, configErrorf(db.ID, table, "table not found in database metadata")
	}
	cols := t.PrimaryKeyColumns()
	if len(cols) == 0 {
		return nil, &ConfigError{DB: db.ID, Table: table, Reason: ErrNoPrimaryKey.Error()}
	}
	return cols, nil
}
