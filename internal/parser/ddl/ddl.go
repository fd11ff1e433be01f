// Package ddl reads table metadata from a dump of CREATE TABLE statements.
// Only what identity reconciliation needs is kept: columns, the primary key,
// unique keys and foreign keys.
package ddl

import (
	"fmt"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"jdbacl/internal/core"
)

type Parser struct {
	p *parser.Parser
}

func NewParser() *Parser {
	return &Parser{
		p: parser.New(),
	}
}

// Parse converts every CREATE TABLE statement of sql. Other statements are
// ignored, except USE, which names the database.
func (p *Parser) Parse(sql string) (*core.Database, error) {
	stmtNodes, _, err := p.p.Parse(sql, "", "")
	if err != nil {
		return nil, fmt.Errorf("ddl: failed to parse schema: %w", err)
	}

	db := &core.Database{
		Dialect: core.DialectMySQL,
		Tables:  []*core.Table{},
	}
	for _, stmtNode := range stmtNodes {
		switch stmt := stmtNode.(type) {
		case *ast.UseStmt:
			db.Name = stmt.DBName
		case *ast.CreateDatabaseStmt:
			if db.Name == "" {
				db.Name = stmt.Name.O
			}
		case *ast.CreateTableStmt:
			if db.FindTable(stmt.Table.Name.O) != nil {
				return nil, fmt.Errorf("ddl: table %q defined twice", stmt.Table.Name.O)
			}
			db.Tables = append(db.Tables, p.convertCreateTable(stmt))
		}
	}
	return db, nil
}

func (p *Parser) convertCreateTable(stmt *ast.CreateTableStmt) *core.Table {
	table := &core.Table{
		Name:        stmt.Table.Name.O,
		Columns:     []*core.Column{},
		Constraints: []*core.Constraint{},
	}
	for _, opt := range stmt.Options {
		if opt.Tp == ast.TableOptionComment {
			table.Comment = opt.StrValue
		}
	}

	p.parseColumns(stmt.Cols, table)
	for _, constraint := range stmt.Constraints {
		p.parseConstraint(constraint, table)
	}
	return table
}

func (p *Parser) parseColumns(cols []*ast.ColumnDef, table *core.Table) {
	for _, colDef := range cols {
		typeRaw := colDef.Tp.String()
		col := &core.Column{
			Name:     colDef.Name.Name.O,
			TypeRaw:  typeRaw,
			Type:     core.NormalizeDataType(typeRaw),
			Nullable: true,
		}
		table.Columns = append(table.Columns, col)

		for _, opt := range colDef.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull:
				col.Nullable = false
			case ast.ColumnOptionNull:
				col.Nullable = true
			case ast.ColumnOptionPrimaryKey:
				col.PrimaryKey = true
				col.Nullable = false
				ensurePrimaryKeyColumn(table, col.Name)
			case ast.ColumnOptionUniqKey:
				table.Constraints = append(table.Constraints, &core.Constraint{
					Type:    core.ConstraintUnique,
					Columns: []string{col.Name},
				})
			case ast.ColumnOptionReference:
				table.Constraints = append(table.Constraints, &core.Constraint{
					Type:              core.ConstraintForeignKey,
					Columns:           []string{col.Name},
					ReferencedTable:   opt.Refer.Table.Name.O,
					ReferencedColumns: referencedColumns(opt.Refer),
				})
			}
		}
	}
}

func (p *Parser) parseConstraint(constraint *ast.Constraint, table *core.Table) {
	columns := make([]string, 0, len(constraint.Keys))
	for _, key := range constraint.Keys {
		if key.Column != nil {
			columns = append(columns, key.Column.Name.O)
		}
	}

	switch constraint.Tp {
	case ast.ConstraintPrimaryKey:
		table.Constraints = append(table.Constraints, &core.Constraint{
			Name:    "PRIMARY",
			Type:    core.ConstraintPrimaryKey,
			Columns: columns,
		})
		for _, name := range columns {
			if col := table.FindColumn(name); col != nil {
				col.PrimaryKey = true
				col.Nullable = false
			}
		}
	case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
		table.Constraints = append(table.Constraints, &core.Constraint{
			Name:    constraint.Name,
			Type:    core.ConstraintUnique,
			Columns: columns,
		})
	case ast.ConstraintForeignKey:
		table.Constraints = append(table.Constraints, &core.Constraint{
			Name:              constraint.Name,
			Type:              core.ConstraintForeignKey,
			Columns:           columns,
			ReferencedTable:   constraint.Refer.Table.Name.O,
			ReferencedColumns: referencedColumns(constraint.Refer),
		})
	}
}

// ensurePrimaryKeyColumn records an inline PRIMARY KEY column option as a
// primary key constraint.
func ensurePrimaryKeyColumn(table *core.Table, column string) {
	if pk := table.PrimaryKey(); pk != nil {
		pk.Columns = append(pk.Columns, column)
		return
	}
	table.Constraints = append(table.Constraints, &core.Constraint{
		Name:    "PRIMARY",
		Type:    core.ConstraintPrimaryKey,
		Columns: []string{column},
	})
}

func referencedColumns(ref *ast.ReferenceDef) []string {
	cols := make([]string, 0, len(ref.IndexPartSpecifications))
	for _, part := range ref.IndexPartSpecifications {
		if part.Column != nil {
			cols = append(cols, part.Column.Name.O)
		}
	}
	return cols
}
