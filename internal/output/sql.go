package output

import (
	"fmt"
	"strings"

	"jdbacl/internal/core"
	"jdbacl/internal/dialect"
	"jdbacl/internal/diff"
)

type sqlFormatter struct{}

// FormatKeys writes the key index as SQL comments.
func (sqlFormatter) FormatKeys(k *KeyDump) (string, error) {
	if k == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("-- keys of %s in %s\n", k.Table, k.DB))
	for _, e := range k.Entries {
		sb.WriteString(fmt.Sprintf("-- %s: %v\n", e.NaturalKey, e.PK))
	}
	return sb.String(), nil
}

// FormatDiff writes the natural key diff as SQL comments.
func (sqlFormatter) FormatDiff(d *diff.KeySetDiff) (string, error) {
	if d == nil {
		return "", nil
	}
	var sb strings.Builder
	for line := range strings.SplitSeq(strings.TrimRight(d.String(), "\n"), "\n") {
		if line == "" {
			sb.WriteString("--\n")
			continue
		}
		sb.WriteString("-- " + line + "\n")
	}
	return sb.String(), nil
}

// FormatTranscoded writes one INSERT statement per transcoded row.
func (sqlFormatter) FormatTranscoded(t *Transcoded) (string, error) {
	if t == nil {
		return "", nil
	}
	stmts, err := InsertStatements(t)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("-- jdbacl: %s rows of %s transcoded for %s\n", t.SourceDB, t.Table, t.TargetDB))
	sb.WriteString("-- Review before running in production.\n")
	if len(stmts) == 0 {
		sb.WriteString("\n-- No rows to insert.\n")
		return sb.String(), nil
	}
	sb.WriteString("\n")
	for _, stmt := range stmts {
		sb.WriteString(stmt)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// InsertStatements renders the rows of t as INSERT statements in the dialect
// of the target database.
func InsertStatements(t *Transcoded) ([]string, error) {
	r := t.Renderer
	if r == nil {
		r = dialect.ForDialect(core.DialectUnknown)
	}
	stmts := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		cols := row.Columns()
		if len(cols) == 0 {
			continue
		}
		quoted := make([]string, len(cols))
		values := make([]string, len(cols))
		for i, col := range cols {
			v, _ := row.Get(col)
			lit, err := r.Literal(v)
			if err != nil {
				return nil, fmt.Errorf("output: table %q column %q: %w", row.Table, col, err)
			}
			quoted[i] = r.QuoteIdentifier(col)
			values[i] = lit
		}
		stmts = append(stmts, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
			r.QuoteIdentifier(row.Table), strings.Join(quoted, ", "), strings.Join(values, ", ")))
	}
	return stmts, nil
}
