// Package sqlscan analyzes the SQL queries that define identities. It uses TiDB's
// AST parser to make sure a query is a single read-only statement and to locate its
// positional `?` markers. Queries the MySQL grammar cannot parse (vendor syntax of
// other databases) fall back to a lexical scan that understands quotes and comments.
package sqlscan

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/test_driver" // registers TiDB parser driver implementations, ParamMarkerExpr lives here
)

// Analysis contains the result of analyzing one SQL query.
type Analysis struct {
	// Parsed reports whether the TiDB parser accepted the query.
	Parsed bool
	// StatementType is a short upper case label such as SELECT or UNION.
	StatementType string
	// IsSelect reports whether the query only reads data.
	IsSelect bool
	// Markers holds the byte offsets of the positional `?` markers.
	Markers []int
}

// Analyzer wraps a TiDB parser. It is not safe for concurrent use.
type Analyzer struct {
	parser *parser.Parser
}

// NewAnalyzer creates a new AST-based query analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{parser: parser.New()}
}

// Analyze parses query. A query the parser rejects is still analyzed
// lexically; the returned error is only set for empty or multi-statement input.
func (a *Analyzer) Analyze(query string) (*Analysis, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, fmt.Errorf("sqlscan: empty query")
	}

	stmtNodes, _, err := a.parser.Parse(query, "", "")
	if err != nil || len(stmtNodes) == 0 {
		return lexicalAnalysis(query), nil
	}
	if len(stmtNodes) > 1 {
		return nil, fmt.Errorf("sqlscan: expected a single statement, got %d", len(stmtNodes))
	}

	node := stmtNodes[0]
	analysis := &Analysis{Parsed: true}
	switch node.(type) {
	case *ast.SelectStmt:
		analysis.StatementType = "SELECT"
		analysis.IsSelect = true
	case *ast.SetOprStmt:
		analysis.StatementType = "UNION"
		analysis.IsSelect = true
	default:
		analysis.StatementType = statementLabel(trimmed)
	}

	collector := &markerCollector{}
	node.Accept(collector)
	if !validOffsets(query, collector.offsets) {
		// The parser reported positions that do not point at a marker, trust the lexer instead.
		analysis.Markers = ScanMarkers(query)
	} else {
		analysis.Markers = collector.offsets
	}

	return analysis, nil
}

// Analyze is a convenience wrapper creating a throwaway Analyzer.
func Analyze(query string) (*Analysis, error) {
	return NewAnalyzer().Analyze(query)
}

type markerCollector struct {
	offsets []int
}

func (c *markerCollector) Enter(n ast.Node) (ast.Node, bool) {
	if m, ok := n.(*test_driver.ParamMarkerExpr); ok {
		c.offsets = append(c.offsets, m.Offset)
	}
	return n, false
}

func (c *markerCollector) Leave(n ast.Node) (ast.Node, bool) {
	return n, true
}

func validOffsets(query string, offsets []int) bool {
	prev := -1
	for _, off := range offsets {
		if off <= prev || off < 0 || off >= len(query) || query[off] != '?' {
			return false
		}
		prev = off
	}
	return len(offsets) == len(ScanMarkers(query))
}

func lexicalAnalysis(query string) *Analysis {
	label := statementLabel(strings.TrimSpace(query))
	return &Analysis{
		StatementType: label,
		IsSelect:      label == "SELECT" || label == "WITH",
		Markers:       ScanMarkers(query),
	}
}

func statementLabel(query string) string {
	query = skipLeadingComments(query)
	end := strings.IndexFunc(query, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	})
	if end < 0 {
		end = len(query)
	}
	return strings.ToUpper(query[:end])
}

func skipLeadingComments(query string) string {
	for {
		query = strings.TrimSpace(query)
		switch {
		case strings.HasPrefix(query, "--"):
			nl := strings.IndexByte(query, '\n')
			if nl < 0 {
				return ""
			}
			query = query[nl+1:]
		case strings.HasPrefix(query, "/*"):
			end := strings.Index(query, "*/")
			if end < 0 {
				return ""
			}
			query = query[end+2:]
		default:
			return query
		}
	}
}

// ScanMarkers returns the byte offsets of `?` markers outside of string
// literals, quoted identifiers and comments. Backslash escapes inside string
// literals follow MySQL.
func ScanMarkers(query string) []int {
	return scanMarkers(query, true)
}

// ScanMarkersStandard is ScanMarkers for dialects where a backslash inside a
// string literal is an ordinary character, like PostgreSQL, Oracle and SQL Server.
func ScanMarkersStandard(query string) []int {
	return scanMarkers(query, false)
}

func scanMarkers(query string, backslashEscapes bool) []int {
	var offsets []int
	for i := 0; i < len(query); i++ {
		switch ch := query[i]; ch {
		case '\'', '"', '`':
			i = skipQuoted(query, i, ch, backslashEscapes && ch == '\'')
		case '[':
			if end := strings.IndexByte(query[i:], ']'); end >= 0 {
				i += end
			}
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				nl := strings.IndexByte(query[i:], '\n')
				if nl < 0 {
					return offsets
				}
				i += nl
			}
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				end := strings.Index(query[i+2:], "*/")
				if end < 0 {
					return offsets
				}
				i += end + 3
			}
		case '?':
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// skipQuoted returns the index of the closing quote. Doubled quotes inside
// the literal are treated as escaped quotes.
func skipQuoted(query string, start int, quote byte, backslashEscapes bool) int {
	for i := start + 1; i < len(query); i++ {
		if backslashEscapes && query[i] == '\\' {
			i++
			continue
		}
		if query[i] == quote {
			if i+1 < len(query) && query[i+1] == quote {
				i++
				continue
			}
			return i
		}
	}
	return len(query) - 1
}

// CheckIdentityQuery validates a query used to define an identity. The query
// must read data only, and it must contain at least minMarkers positional markers.
func (a *Analyzer) CheckIdentityQuery(query string, minMarkers int) error {
	analysis, err := a.Analyze(query)
	if err != nil {
		return err
	}
	if !analysis.IsSelect {
		return fmt.Errorf("sqlscan: identity query must be a SELECT, got %s", analysis.StatementType)
	}
	// Dialects without backslash escapes may see more markers than MySQL.
	found := max(len(analysis.Markers), len(ScanMarkersStandard(query)))
	if found < minMarkers {
		return fmt.Errorf("sqlscan: identity query needs at least %d '?' marker(s), found %d", minMarkers, found)
	}
	return nil
}
