package dialect

import (
	"fmt"
	"strings"

	"jdbacl/internal/core"
	"jdbacl/internal/sqlscan"
)

// Substitute replaces the positional `?` markers of template, left to right,
// with params rendered as literals of r. The number of markers and params must match.
func Substitute(template string, params []any, r Renderer) (string, error) {
	t, err := NewTemplate(template)
	if err != nil {
		return "", fmt.Errorf("dialect: substitute: %w", err)
	}
	return t.Render(params, r)
}

// Template is a query template analyzed once and substituted many times.
type Template struct {
	sql string
	// markers follow MySQL string literal rules, standard those of
	// dialects without backslash escapes.
	markers  []int
	standard []int
}

// NewTemplate analyzes sql and remembers its marker positions.
func NewTemplate(sql string) (*Template, error) {
	analysis, err := sqlscan.Analyze(sql)
	if err != nil {
		return nil, fmt.Errorf("dialect: template: %w", err)
	}
	return &Template{
		sql:      sql,
		markers:  analysis.Markers,
		standard: sqlscan.ScanMarkersStandard(sql),
	}, nil
}

// Markers returns the number of positional markers in the template. The
// count can differ by dialect when string literals hold backslashes, the
// larger one is returned.
func (t *Template) Markers() int {
	return max(len(t.markers), len(t.standard))
}

// SQL returns the raw template text.
func (t *Template) SQL() string {
	return t.sql
}

// Render substitutes params into the template.
func (t *Template) Render(params []any, r Renderer) (string, error) {
	if r == nil {
		r = ForDialect(core.DialectUnknown)
	}
	markers := t.standard
	if backslashEscapes(r) {
		markers = t.markers
	}
	return substituteAt(t.sql, markers, params, r)
}

// backslashEscapes reports whether string literals rendered by r treat a
// backslash as an escape character.
func backslashEscapes(r Renderer) bool {
	if builtin, ok := r.(*renderer); ok {
		return builtin.style.backslash
	}
	return r.Dialect() == core.DialectMySQL
}

func substituteAt(template string, markers []int, params []any, r Renderer) (string, error) {
	if len(markers) != len(params) {
		return "", fmt.Errorf("dialect: query has %d marker(s) but %d parameter(s) were given: %s",
			len(markers), len(params), template)
	}
	if r == nil {
		r = ForDialect(core.DialectUnknown)
	}

	var sb strings.Builder
	sb.Grow(len(template) + 16*len(params))
	last := 0
	for i, off := range markers {
		lit, err := r.Literal(params[i])
		if err != nil {
			return "", err
		}
		sb.WriteString(template[last:off])
		sb.WriteString(lit)
		last = off + 1
	}
	sb.WriteString(template[last:])
	return sb.String(), nil
}
