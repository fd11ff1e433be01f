package output

import (
	"fmt"
	"strings"

	"jdbacl/internal/diff"
)

type humanFormatter struct{}

// FormatKeys formats a key dump in human-readable format.
func (humanFormatter) FormatKeys(k *KeyDump) (string, error) {
	if k == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Keys of %s in %s (%d):\n", k.Table, k.DB, len(k.Entries)))
	if k.Identity != "" {
		sb.WriteString(fmt.Sprintf("  identity: %s\n", k.Identity))
	}
	for _, e := range k.Entries {
		if e.TargetPK != nil {
			sb.WriteString(fmt.Sprintf("  %s -> %v (target %v)\n", e.NaturalKey, e.PK, e.TargetPK))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s -> %v\n", e.NaturalKey, e.PK))
	}
	return sb.String(), nil
}

// FormatDiff formats a natural key diff in human-readable format.
func (humanFormatter) FormatDiff(d *diff.KeySetDiff) (string, error) {
	if d == nil {
		return "", nil
	}
	return d.String(), nil
}

// FormatTranscoded lists the rewritten rows one per line.
func (humanFormatter) FormatTranscoded(t *Transcoded) (string, error) {
	if t == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Transcoded %d rows of %s (%s -> %s):\n", len(t.Rows), t.Table, t.SourceDB, t.TargetDB))
	for _, row := range t.Rows {
		parts := make([]string, 0, len(row.Values))
		for _, col := range row.Columns() {
			v, _ := row.Get(col)
			parts = append(parts, fmt.Sprintf("%s=%v", col, v))
		}
		sb.WriteString("  " + strings.Join(parts, " ") + "\n")
	}
	return sb.String(), nil
}
