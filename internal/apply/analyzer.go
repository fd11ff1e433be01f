package apply

import (
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver" // required to register TiDB parser driver implementations
)

// StatementAnalysis contains the results of analyzing a SQL statement.
type StatementAnalysis struct {
	StatementType     string
	IsInsert          bool
	IsDestructive     bool
	DestructiveReason string
	IsDDL             bool
	Parsed            bool
}

// StatementAnalyzer uses TiDB's AST parser for reliable SQL analysis
type StatementAnalyzer struct {
	parser *parser.Parser
}

// NewStatementAnalyzer creates a new AST-based statement analyzer.
func NewStatementAnalyzer() *StatementAnalyzer {
	return &StatementAnalyzer{
		parser: parser.New(),
	}
}

// AnalyzeStatement parses a single SQL statement and returns analysis results.
// Statements the MySQL grammar rejects are classified by their leading keyword.
func (a *StatementAnalyzer) AnalyzeStatement(sql string) *StatementAnalysis {
	stmtNodes, _, err := a.parser.Parse(sql, "", "")
	if err != nil || len(stmtNodes) == 0 {
		return analyzeKeyword(sql)
	}
	return analyzeNode(stmtNodes[0], sql)
}

// AnalyzeStatements analyzes multiple SQL statements and returns a PreflightResult.
func (a *StatementAnalyzer) AnalyzeStatements(statements []string, unsafeAllowed bool) *PreflightResult {
	result := &PreflightResult{IsTransactional: true}

	for _, stmt := range statements {
		analysis := a.AnalyzeStatement(stmt)
		switch {
		case analysis.IsDDL:
			result.IsTransactional = false
			result.Errors = append(result.Errors, "schema changes are not applied: "+truncateSQL(stmt))
		case analysis.IsDestructive:
			result.Warnings = append(result.Warnings, Warning{Level: WarnDanger, Message: analysis.DestructiveReason, SQL: stmt})
			if !unsafeAllowed {
				result.Errors = append(result.Errors, analysis.DestructiveReason+"; use --unsafe to proceed")
			}
		case analysis.IsInsert:
		case !analysis.Parsed:
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnCaution,
				Message: analysis.StatementType + " statement could not be parsed and is executed as is",
				SQL:     stmt,
			})
		default:
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnCaution,
				Message: analysis.StatementType + " statement is not an INSERT",
				SQL:     stmt,
			})
		}
	}

	return result
}

func analyzeNode(node ast.StmtNode, sql string) *StatementAnalysis {
	analysis := &StatementAnalysis{Parsed: true}
	switch n := node.(type) {
	case *ast.InsertStmt:
		analysis.StatementType = "INSERT"
		analysis.IsInsert = !n.IsReplace
		if n.IsReplace {
			analysis.StatementType = "REPLACE"
			analysis.IsDestructive = true
			analysis.DestructiveReason = "REPLACE overwrites rows already present in the target"
		}
	case *ast.UpdateStmt:
		analysis.StatementType = "UPDATE"
		analysis.IsDestructive = true
		analysis.DestructiveReason = "UPDATE modifies rows already present in the target"
	case *ast.DeleteStmt:
		analysis.StatementType = "DELETE"
		analysis.IsDestructive = true
		analysis.DestructiveReason = "DELETE removes rows from the target"
	case ast.DDLNode:
		analysis.StatementType = "DDL"
		analysis.IsDDL = true
	default:
		analysis.StatementType = leadingKeyword(sql)
	}
	return analysis
}

func analyzeKeyword(sql string) *StatementAnalysis {
	keyword := leadingKeyword(sql)
	analysis := &StatementAnalysis{StatementType: keyword}
	switch keyword {
	case "INSERT":
		analysis.IsInsert = true
	case "UPDATE", "DELETE", "MERGE", "TRUNCATE":
		analysis.IsDestructive = true
		analysis.DestructiveReason = keyword + " modifies rows already present in the target"
	case "CREATE", "ALTER", "DROP", "RENAME":
		analysis.IsDDL = true
	}
	return analysis
}

func leadingKeyword(sql string) string {
	fields := strings.Fields(strings.TrimSpace(sql))
	if len(fields) == 0 {
		return "EMPTY"
	}
	return strings.ToUpper(strings.TrimRight(fields[0], "(;"))
}
