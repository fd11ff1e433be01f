// Package postgresql contains the introspect implementation for PostgreSQL. It
// reads the current schema through pg_catalog and the information schema.
package postgresql

import (
	"jdbacl/internal/core"
	"jdbacl/internal/introspect"
)

func init() {
	introspect.Register(core.DialectPostgreSQL, New)
}

var queries = introspect.CatalogQueries{
	Name: "SELECT current_database()",
	Tables: `
		SELECT c.relname, COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = current_schema() AND c.relkind IN ('r', 'p')
		ORDER BY c.relname
	`,
	Columns: `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position
	`,
	PrimaryKeys: `
		SELECT kcu.table_name, kcu.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema()
		ORDER BY kcu.table_name, kcu.ordinal_position
	`,
	ForeignKeys: `
		SELECT kcu.table_name, kcu.constraint_name, kcu.column_name, ref.table_name, ref.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.table_schema
		JOIN information_schema.key_column_usage ref
			ON ref.constraint_name = rc.unique_constraint_name
			AND ref.constraint_schema = rc.unique_constraint_schema
			AND ref.ordinal_position = kcu.position_in_unique_constraint
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = current_schema()
		ORDER BY kcu.table_name, kcu.constraint_name, kcu.ordinal_position
	`,
}

func New() introspect.Introspecter {
	return introspect.NewCatalog(core.DialectPostgreSQL, queries)
}
