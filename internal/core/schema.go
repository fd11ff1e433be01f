// Package core contains the relational metadata model shared by the introspecters,
// the identity mapper and the transcoder. It describes tables, their columns, their
// primary keys and the foreign keys between them for every database we can read.
package core

import (
	"fmt"
	"strings"
)

// Dialect identifies a supported SQL dialect.
type Dialect string

const (
	DialectOracle     Dialect = "oracle"
	DialectPostgreSQL Dialect = "postgresql"
	DialectMySQL      Dialect = "mysql"
	DialectMSSQL      Dialect = "mssql"
	DialectDB2        Dialect = "db2"
	DialectH2         Dialect = "h2"
	DialectHSQL       Dialect = "hsql"
	DialectDerby      Dialect = "derby"
	DialectFirebird   Dialect = "firebird"
	DialectCubrid     Dialect = "cubrid"
	DialectSQLite     Dialect = "sqlite"
	DialectUnknown    Dialect = "unknown"
)

// SupportedDialects returns a slice of all supported dialect values.
func SupportedDialects() []Dialect {
	return []Dialect{
		DialectOracle,
		DialectPostgreSQL,
		DialectMySQL,
		DialectMSSQL,
		DialectDB2,
		DialectH2,
		DialectHSQL,
		DialectDerby,
		DialectFirebird,
		DialectCubrid,
		DialectSQLite,
		DialectUnknown,
	}
}

var dialectAliases = map[string]Dialect{
	"postgres":  DialectPostgreSQL,
	"pg":        DialectPostgreSQL,
	"mariadb":   DialectMySQL,
	"sqlserver": DialectMSSQL,
	"sqlite3":   DialectSQLite,
	"hsqldb":    DialectHSQL,
	"interbase": DialectFirebird,
}

// IsValidDialect reports whether d is a recognized dialect string.
func IsValidDialect(d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	if _, ok := dialectAliases[d]; ok {
		return true
	}
	for _, supported := range SupportedDialects() {
		if string(supported) == d {
			return true
		}
	}
	return false
}

// ParseDialect maps a dialect or driver name to a Dialect. Names we do not
// recognize map to DialectUnknown.
func ParseDialect(name string) Dialect {
	name = strings.ToLower(strings.TrimSpace(name))
	if d, ok := dialectAliases[name]; ok {
		return d
	}
	for _, supported := range SupportedDialects() {
		if string(supported) == name {
			return supported
		}
	}
	return DialectUnknown
}

// Database represents a database catalog as seen through one connection.
type Database struct {
	Name    string   `json:"name"`
	Dialect Dialect  `json:"dialect"`
	Version string   `json:"version,omitempty"`
	Tables  []*Table `json:"tables"`
}

// Table represents a table in the schema.
type Table struct {
	Name        string        `json:"name"`
	Columns     []*Column     `json:"columns"`
	Constraints []*Constraint `json:"constraints,omitempty"`
	Comment     string        `json:"comment,omitempty"`
}

// Column represents a single column inside a table.
type Column struct {
	Name       string   `json:"name"`
	TypeRaw    string   `json:"typeRaw"`
	Type       DataType `json:"type"`
	Nullable   bool     `json:"nullable"`
	PrimaryKey bool     `json:"primaryKey"`
}

// DataType is an ENUM with all portable column data types.
type DataType string

const (
	DataTypeString   DataType = "string"
	DataTypeInt      DataType = "int"
	DataTypeFloat    DataType = "float"
	DataTypeBoolean  DataType = "boolean"
	DataTypeDatetime DataType = "datetime"
	DataTypeBinary   DataType = "binary"
	DataTypeUnknown  DataType = "unknown"
)

// Constraint describes a primary key, unique key or foreign key of a table.
type Constraint struct {
	Name    string         `json:"name,omitempty"`
	Type    ConstraintType `json:"type"`
	Columns []string       `json:"columns"`

	ReferencedTable   string   `json:"referencedTable,omitempty"`
	ReferencedColumns []string `json:"referencedColumns,omitempty"`
}

// ConstraintType is an ENUM with the constraint types the toolkit reads.
type ConstraintType string

const (
	ConstraintPrimaryKey ConstraintType = "PRIMARY KEY"
	ConstraintForeignKey ConstraintType = "FOREIGN KEY"
	ConstraintUnique     ConstraintType = "UNIQUE"
)

// GetName methods allow these types to be used with generic Named interface.
func (t *Table) GetName() string      { return t.Name }
func (c *Column) GetName() string     { return c.Name }
func (c *Constraint) GetName() string { return c.Name }

// FindTable looks for a table by name inside a database.
func (db *Database) FindTable(name string) *Table {
	if db == nil {
		return nil
	}
	for _, t := range db.Tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}
	return nil
}

// FindColumn looks for a column by name inside a table.
func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// FindConstraint looks for a constraint by name inside a table.
func (t *Table) FindConstraint(name string) *Constraint {
	for _, c := range t.Constraints {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// PrimaryKey returns the primary key constraint of the table.
func (t *Table) PrimaryKey() *Constraint {
	for _, c := range t.Constraints {
		if c.Type == ConstraintPrimaryKey {
			return c
		}
	}
	return nil
}

// PrimaryKeyColumns returns the ordered primary key column names, or nil
// when the table has no primary key.
func (t *Table) PrimaryKeyColumns() []string {
	if pk := t.PrimaryKey(); pk != nil && len(pk.Columns) > 0 {
		return pk.Columns
	}
	var cols []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			cols = append(cols, c.Name)
		}
	}
	return cols
}

// ForeignKeys returns the foreign key constraints of the table in declaration order.
func (t *Table) ForeignKeys() []*Constraint {
	var fks []*Constraint
	for _, c := range t.Constraints {
		if c.Type == ConstraintForeignKey {
			fks = append(fks, c)
		}
	}
	return fks
}

// ColumnNames returns the names of all columns in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// String returns a string representation of a table with its columns and constraints.
func (t *Table) String() string {
	return fmt.Sprintf("Table: %s (%d cols, %d constraints)",
		t.Name, len(t.Columns), len(t.Constraints))
}

type normalizeDataTypeRule struct {
	dataType   DataType
	substrings []string
}

var normalizeDataTypeRules = []normalizeDataTypeRule{
	{dataType: DataTypeString, substrings: []string{"char", "text", "string", "clob"}},
	{dataType: DataTypeBoolean, substrings: []string{"bool", "tinyint(1)", "bit"}},
	{dataType: DataTypeInt, substrings: []string{"int", "serial"}},
	{dataType: DataTypeFloat, substrings: []string{"float", "double", "decimal", "numeric", "number", "real"}},
	{dataType: DataTypeDatetime, substrings: []string{"timestamp", "date", "time"}},
	{dataType: DataTypeBinary, substrings: []string{"blob", "binary", "bytea", "raw", "image"}},
}

// NormalizeDataType maps a raw SQL type string (e.g. "VARCHAR(255)") to one of
// the portable DataType constants. The matching is case-insensitive and based
// on substring containment using normalizeDataTypeRules.
func NormalizeDataType(rawType string) DataType {
	lower := strings.ToLower(strings.TrimSpace(rawType))
	if lower == "" {
		return DataTypeUnknown
	}
	for _, rule := range normalizeDataTypeRules {
		for _, sub := range rule.substrings {
			if strings.Contains(lower, sub) {
				return rule.dataType
			}
		}
	}
	return DataTypeUnknown
}
