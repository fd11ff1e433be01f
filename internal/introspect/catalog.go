package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"jdbacl/internal/core"
)

// CatalogQueries are the metadata queries of a database exposing a SQL catalog.
// Each query reads the current schema only.
type CatalogQueries struct {
	// Name returns one row holding the database name.
	Name string
	// Tables returns (table_name, comment) of the base tables.
	Tables string
	// Columns returns (table_name, column_name, data_type, nullable) in ordinal order.
	Columns string
	// PrimaryKeys returns (table_name, constraint_name, column_name) in key order.
	PrimaryKeys string
	// ForeignKeys returns (table_name, constraint_name, column_name,
	// referenced_table, referenced_column) in key order.
	ForeignKeys string
}

type catalogIntrospecter struct {
	dialect core.Dialect
	queries CatalogQueries
}

// NewCatalog returns an introspecter running queries against the catalog.
func NewCatalog(dialect core.Dialect, queries CatalogQueries) Introspecter {
	return &catalogIntrospecter{dialect: dialect, queries: queries}
}

type introspectCtx struct {
	ctx    context.Context
	db     *sql.DB
	tables map[string]*core.Table
}

func (c *catalogIntrospecter) Introspect(ctx context.Context, db *sql.DB) (*core.Database, error) {
	d := &core.Database{Dialect: c.dialect}
	if c.queries.Name != "" {
		var name sql.NullString
		if err := db.QueryRowContext(ctx, c.queries.Name).Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect: database name: %w", err)
		}
		d.Name = name.String
	}

	ic := &introspectCtx{ctx: ctx, db: db, tables: make(map[string]*core.Table)}
	steps := []struct {
		name string
		fn   func(*introspectCtx, *core.Database) error
	}{
		{"tables", c.introspectTables},
		{"columns", c.introspectColumns},
		{"primary keys", c.introspectPrimaryKeys},
		{"foreign keys", c.introspectForeignKeys},
	}
	for _, step := range steps {
		if err := step.fn(ic, d); err != nil {
			return nil, fmt.Errorf("introspect: %s: %w", step.name, err)
		}
	}
	return d, nil
}

func (c *catalogIntrospecter) introspectTables(ic *introspectCtx, d *core.Database) error {
	rows, err := ic.db.QueryContext(ic.ctx, c.queries.Tables)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, comment sql.NullString
		if err := rows.Scan(&name, &comment); err != nil {
			return err
		}
		t := &core.Table{Name: name.String, Comment: comment.String}
		d.Tables = append(d.Tables, t)
		ic.tables[strings.ToLower(t.Name)] = t
	}
	return rows.Err()
}

func (c *catalogIntrospecter) introspectColumns(ic *introspectCtx, _ *core.Database) error {
	rows, err := ic.db.QueryContext(ic.ctx, c.queries.Columns)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, name, dataType, nullable sql.NullString
		if err := rows.Scan(&table, &name, &dataType, &nullable); err != nil {
			return err
		}
		t := ic.tables[strings.ToLower(table.String)]
		if t == nil {
			continue
		}
		t.Columns = append(t.Columns, &core.Column{
			Name:     name.String,
			TypeRaw:  dataType.String,
			Type:     core.NormalizeDataType(dataType.String),
			Nullable: IsNullable(nullable.String),
		})
	}
	return rows.Err()
}

func (c *catalogIntrospecter) introspectPrimaryKeys(ic *introspectCtx, _ *core.Database) error {
	rows, err := ic.db.QueryContext(ic.ctx, c.queries.PrimaryKeys)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, constraint, column sql.NullString
		if err := rows.Scan(&table, &constraint, &column); err != nil {
			return err
		}
		t := ic.tables[strings.ToLower(table.String)]
		if t == nil {
			continue
		}
		AddPrimaryKeyColumn(t, constraint.String, column.String)
	}
	return rows.Err()
}

func (c *catalogIntrospecter) introspectForeignKeys(ic *introspectCtx, _ *core.Database) error {
	if c.queries.ForeignKeys == "" {
		return nil
	}
	rows, err := ic.db.QueryContext(ic.ctx, c.queries.ForeignKeys)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, constraint, column, refTable, refColumn sql.NullString
		if err := rows.Scan(&table, &constraint, &column, &refTable, &refColumn); err != nil {
			return err
		}
		t := ic.tables[strings.ToLower(table.String)]
		if t == nil {
			continue
		}
		AddForeignKeyColumn(t, constraint.String, column.String, refTable.String, refColumn.String)
	}
	return rows.Err()
}

// IsNullable interprets the nullable flag of a catalog.
func IsNullable(flag string) bool {
	switch strings.ToUpper(strings.TrimSpace(flag)) {
	case "YES", "Y", "1", "TRUE":
		return true
	default:
		return false
	}
}

// AddPrimaryKeyColumn appends column to the primary key of t, creating the
// constraint on first use.
func AddPrimaryKeyColumn(t *core.Table, constraint, column string) {
	pk := t.PrimaryKey()
	if pk == nil {
		pk = &core.Constraint{Name: constraint, Type: core.ConstraintPrimaryKey}
		t.Constraints = append(t.Constraints, pk)
	}
	pk.Columns = append(pk.Columns, column)
	if col := t.FindColumn(column); col != nil {
		col.PrimaryKey = true
	}
}

// AddForeignKeyColumn appends one column pair to the foreign key named
// constraint of t, creating the constraint on first use.
func AddForeignKeyColumn(t *core.Table, constraint, column, refTable, refColumn string) {
	var fk *core.Constraint
	for _, c := range t.ForeignKeys() {
		if c.Name == constraint {
			fk = c
			break
		}
	}
	if fk == nil {
		fk = &core.Constraint{Name: constraint, Type: core.ConstraintForeignKey, ReferencedTable: refTable}
		t.Constraints = append(t.Constraints, fk)
	}
	fk.Columns = append(fk.Columns, column)
	if refColumn != "" {
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
}
