package diff

import (
	"fmt"
	"strings"
)

// String returns a human readable report of the natural key differences.
func (d *KeySetDiff) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Natural keys of %s (%s -> %s):\n", d.Table, d.SourceDB, d.TargetDB))

	if len(d.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range d.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", w))
		}
	}

	if d.IsEmpty() {
		sb.WriteString(fmt.Sprintf("\nNo differences detected, %d keys matched.\n", len(d.Matched)))
		return sb.String()
	}

	if len(d.OnlyInSource) > 0 {
		sb.WriteString(fmt.Sprintf("\nOnly in %s:\n", d.SourceDB))
		writeKeys(&sb, d.OnlyInSource)
	}
	if len(d.OnlyInTarget) > 0 {
		sb.WriteString(fmt.Sprintf("\nOnly in %s:\n", d.TargetDB))
		writeKeys(&sb, d.OnlyInTarget)
	}
	sb.WriteString(fmt.Sprintf("\nMatched: %d\n", len(d.Matched)))
	return sb.String()
}

func writeKeys(sb *strings.Builder, keys []*Key) {
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  - %s (pk %v)\n", k.NaturalKey, k.PK))
	}
}
