// Package output provides a set of formatters for key dumps, natural key diffs
// and transcoded rows. It is extendable and for now provides three formats:
// human, JSON and SQL.
package output

import (
	"fmt"
	"strings"

	"jdbacl/internal/dialect"
	"jdbacl/internal/diff"
	"jdbacl/internal/identity"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatSQL   Format = "sql"
)

// KeyDump is the populated key index of one table in one database.
type KeyDump struct {
	DB       string
	Table    string
	Identity string
	Entries  []identity.Entry
}

// Transcoded holds source rows rewritten into target identifiers.
type Transcoded struct {
	Table    string
	SourceDB string
	TargetDB string
	Rows     []*identity.Row
	Renderer dialect.Renderer
}

// Formatter is an interface for formatting the results of a reconciliation session.
type Formatter interface {
	FormatKeys(*KeyDump) (string, error)
	FormatDiff(*diff.KeySetDiff) (string, error)
	FormatTranscoded(*Transcoded) (string, error)
}

// NewFormatter creates a new Formatter instance based on the given name.
// If no format is specified, defaults to the human format.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatHuman:
		return humanFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	case FormatSQL:
		return sqlFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'human', 'json', or 'sql'", name)
	}
}
