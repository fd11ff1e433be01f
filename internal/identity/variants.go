package identity

import (
	"context"
	"fmt"
	"strings"
)

// NaturalPK uses the primary key of a table as its natural key. Composite
// keys are joined with NKSeparator in key column order.
type NaturalPK struct {
	base
}

// NewNaturalPK creates a natural-pk identity for table.
func NewNaturalPK(table string) *NaturalPK {
	return &NaturalPK{base: base{table: table}}
}

func (m *NaturalPK) Description() string {
	return fmt.Sprintf("natural-pk identity of %s", m.table)
}

func (m *NaturalPK) NkPkIterator(ctx context.Context, db *Database, _ KeyMapper) (TupleIterator, error) {
	pkCols, err := primaryKeyColumns(db, m.table)
	if err != nil {
		return nil, err
	}
	return query(ctx, db, m.table, selectColumns(m.table, pkCols), func(row []any) []any {
		tuple := make([]any, 0, len(row)+1)
		tuple = append(tuple, BuildNK(row...))
		return append(tuple, row...)
	})
}

// NkPkQuery runs a fixed query returning rows of [nk, pk1, ..., pkN].
type NkPkQuery struct {
	base
	query string
}

// NewNkPkQuery creates an identity from a query returning NK and PK columns.
func NewNkPkQuery(table, query string) *NkPkQuery {
	return &NkPkQuery{base: base{table: table}, query: strings.TrimSpace(query)}
}

// Query returns the configured SQL.
func (m *NkPkQuery) Query() string { return m.query }

func (m *NkPkQuery) Description() string {
	return fmt.Sprintf("nk-pk-query identity of %s: %s", m.table, m.query)
}

func (m *NkPkQuery) NkPkIterator(ctx context.Context, db *Database, _ KeyMapper) (TupleIterator, error) {
	if m.query == "" {
		return nil, configErrorf(db.ID, m.table, "nk-pk-query is empty")
	}
	return query(ctx, db, m.table, m.query, nil)
}

// UniqueKey builds the natural key from the values of unique key columns.
type UniqueKey struct {
	base
	columns []string
}

// NewUniqueKey creates a unique-key identity. The order of columns matters:
// it defines the order of the natural key components.
func NewUniqueKey(table string, columns []string) *UniqueKey {
	return &UniqueKey{base: base{table: table}, columns: append([]string(nil), columns...)}
}

// Columns returns the unique key columns.
func (m *UniqueKey) Columns() []string { return m.columns }

func (m *UniqueKey) Description() string {
	return fmt.Sprintf("unique-key identity of %s (%s)", m.table, strings.Join(m.columns, ", "))
}

func (m *UniqueKey) NkPkIterator(ctx context.Context, db *Database, _ KeyMapper) (TupleIterator, error) {
	if len(m.columns) == 0 {
		return nil, configErrorf(db.ID, m.table, "unique-key identity has no columns")
	}
	pkCols, err := primaryKeyColumns(db, m.table)
	if err != nil {
		return nil, err
	}
	n := len(m.columns)
	return query(ctx, db, m.table, selectColumns(m.table, m.columns, pkCols), func(row []any) []any {
		tuple := make([]any, 0, len(row)-n+1)
		tuple = append(tuple, BuildNK(row[:n]...))
		return append(tuple, row[n:]...)
	})
}

// NoIdentity marks a table whose identity is intentionally undefined.
type NoIdentity struct {
	base
}

// NewNoIdentity creates the placeholder identity for table.
func NewNoIdentity(table string) *NoIdentity {
	return &NoIdentity{base: base{table: table}}
}

func (m *NoIdentity) Description() string {
	return fmt.Sprintf("no identity defined for %s", m.table)
}

func (m *NoIdentity) NkPkIterator(_ context.Context, db *Database, _ KeyMapper) (TupleIterator, error) {
	id := ""
	if db != nil {
		id = db.ID
	}
	return nil, configErrorf(id, m.table, "no identity defined")
}
