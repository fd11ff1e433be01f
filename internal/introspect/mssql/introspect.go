// Package mssql contains the introspect implementation for Microsoft SQL Server.
// Foreign keys are read from sys.foreign_key_columns, which keeps the pairing of
// referencing and referenced columns.
package mssql

import (
	"jdbacl/internal/core"
	"jdbacl/internal/introspect"
)

func init() {
	introspect.Register(core.DialectMSSQL, New)
}

var queries = introspect.CatalogQueries{
	Name: "SELECT DB_NAME()",
	Tables: `
		SELECT TABLE_NAME, ''
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`,
	Columns: `
		SELECT TABLE_NAME, COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = SCHEMA_NAME()
		ORDER BY TABLE_NAME, ORDINAL_POSITION
	`,
	PrimaryKeys: `
		SELECT kcu.TABLE_NAME, kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME AND kcu.TABLE_SCHEMA = tc.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_SCHEMA = SCHEMA_NAME()
		ORDER BY kcu.TABLE_NAME, kcu.ORDINAL_POSITION
	`,
	ForeignKeys: `
		SELECT tp.name, fk.name, cp.name, tr.name, cr.name
		FROM sys.foreign_keys fk
		JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN sys.tables tp ON tp.object_id = fkc.parent_object_id
		JOIN sys.columns cp ON cp.object_id = fkc.parent_object_id AND cp.column_id = fkc.parent_column_id
		JOIN sys.tables tr ON tr.object_id = fkc.referenced_object_id
		JOIN sys.columns cr ON cr.object_id = fkc.referenced_object_id AND cr.column_id = fkc.referenced_column_id
		WHERE SCHEMA_NAME(tp.schema_id) = SCHEMA_NAME()
		ORDER BY tp.name, fk.name, fkc.constraint_column_id
	`,
}

func New() introspect.Introspecter {
	return introspect.NewCatalog(core.DialectMSSQL, queries)
}
