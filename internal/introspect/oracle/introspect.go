// Package oracle contains the introspect implementation for Oracle. It reads the
// USER_* dictionary views of the connected schema.
package oracle

import (
	"jdbacl/internal/core"
	"jdbacl/internal/introspect"
)

func init() {
	introspect.Register(core.DialectOracle, New)
}

var queries = introspect.CatalogQueries{
	Name: "SELECT SYS_CONTEXT('USERENV', 'CURRENT_SCHEMA') FROM dual",
	Tables: `
		SELECT t.table_name, c.comments
		FROM user_tables t
		LEFT JOIN user_tab_comments c ON c.table_name = t.table_name
		ORDER BY t.table_name
	`,
	Columns: `
		SELECT table_name, column_name, data_type, nullable
		FROM user_tab_columns
		ORDER BY table_name, column_id
	`,
	PrimaryKeys: `
		SELECT c.table_name, c.constraint_name, cc.column_name
		FROM user_constraints c
		JOIN user_cons_columns cc ON cc.constraint_name = c.constraint_name
		WHERE c.constraint_type = 'P'
		ORDER BY c.table_name, cc.position
	`,
	ForeignKeys: `
		SELECT c.table_name, c.constraint_name, cc.column_name, rc.table_name, rcc.column_name
		FROM user_constraints c
		JOIN user_cons_columns cc ON cc.constraint_name = c.constraint_name
		JOIN user_constraints rc ON rc.constraint_name = c.r_constraint_name
		JOIN user_cons_columns rcc ON rcc.constraint_name = rc.constraint_name AND rcc.position = cc.position
		WHERE c.constraint_type = 'R'
		ORDER BY c.table_name, c.constraint_name, cc.position
	`,
}

func New() introspect.Introspecter {
	return introspect.NewCatalog(core.DialectOracle, queries)
}
