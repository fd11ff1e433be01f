// Package mysql contains introspect implementation for MySQL and MariaDB,
// since they share the same information schema, it reads tables, columns and
// key constraints of the current database and detects the server flavor.
package mysql

import (
	"context"
	"database/sql"

	"jdbacl/internal/core"
	"jdbacl/internal/introspect"
)

func init() {
	introspect.Register(core.DialectMySQL, New)
}

var queries = introspect.CatalogQueries{
	Name: "SELECT DATABASE()",
	Tables: `
		SELECT table_name, table_comment
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`,
	Columns: `
		SELECT table_name, column_name, column_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position
	`,
	PrimaryKeys: `
		SELECT table_name, constraint_name, column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND constraint_name = 'PRIMARY'
		ORDER BY table_name, ordinal_position
	`,
	ForeignKeys: `
		SELECT table_name, constraint_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
		ORDER BY table_name, constraint_name, ordinal_position
	`,
}

type introspecter struct {
	catalog introspect.Introspecter
}

func New() introspect.Introspecter {
	return &introspecter{catalog: introspect.NewCatalog(core.DialectMySQL, queries)}
}

func (i *introspecter) Introspect(ctx context.Context, db *sql.DB) (*core.Database, error) {
	d, err := i.catalog.Introspect(ctx, db)
	if err != nil {
		return nil, err
	}
	flavor, version, err := detectFlavor(ctx, db)
	if err != nil {
		return nil, err
	}
	d.Version = version
	if flavor != "" {
		d.Version = flavor + " " + version
	}
	return d, nil
}
