package output

import (
	"encoding/json"

	"jdbacl/internal/diff"
)

type jsonFormatter struct{}

type keyEntry struct {
	NaturalKey string `json:"naturalKey"`
	PK         any    `json:"pk"`
	TargetPK   any    `json:"targetPk,omitempty"`
}

type keysPayload struct {
	Format   string     `json:"format"`
	DB       string     `json:"db"`
	Table    string     `json:"table"`
	Identity string     `json:"identity,omitempty"`
	Count    int        `json:"count"`
	Entries  []keyEntry `json:"entries"`
}

type diffSummary struct {
	OnlyInSource int `json:"onlyInSource"`
	OnlyInTarget int `json:"onlyInTarget"`
	Matched      int `json:"matched"`
}

type diffPayload struct {
	Format  string           `json:"format"`
	Summary diffSummary      `json:"summary"`
	Diff    *diff.KeySetDiff `json:"diff,omitempty"`
}

type transcodedPayload struct {
	Format   string           `json:"format"`
	Table    string           `json:"table"`
	SourceDB string           `json:"sourceDb"`
	TargetDB string           `json:"targetDb"`
	Rows     []map[string]any `json:"rows"`
	SQL      []string         `json:"sql,omitempty"`
}

type Payload interface {
	keysPayload | diffPayload | transcodedPayload
}

func (jsonFormatter) FormatKeys(k *KeyDump) (string, error) {
	payload := keysPayload{Format: string(FormatJSON), Entries: []keyEntry{}}
	if k != nil {
		payload.DB = k.DB
		payload.Table = k.Table
		payload.Identity = k.Identity
		payload.Count = len(k.Entries)
		for _, e := range k.Entries {
			payload.Entries = append(payload.Entries, keyEntry{NaturalKey: e.NaturalKey, PK: e.PK, TargetPK: e.TargetPK})
		}
	}
	return marshalJSON(payload)
}

func (jsonFormatter) FormatDiff(d *diff.KeySetDiff) (string, error) {
	payload := diffPayload{Format: string(FormatJSON)}
	if d != nil {
		payload.Diff = d
		payload.Summary = diffSummary{
			OnlyInSource: len(d.OnlyInSource),
			OnlyInTarget: len(d.OnlyInTarget),
			Matched:      len(d.Matched),
		}
	}
	return marshalJSON(payload)
}

func (jsonFormatter) FormatTranscoded(t *Transcoded) (string, error) {
	payload := transcodedPayload{Format: string(FormatJSON), Rows: []map[string]any{}}
	if t != nil {
		payload.Table = t.Table
		payload.SourceDB = t.SourceDB
		payload.TargetDB = t.TargetDB
		for _, row := range t.Rows {
			payload.Rows = append(payload.Rows, row.Values)
		}
		stmts, err := InsertStatements(t)
		if err != nil {
			return "", err
		}
		payload.SQL = stmts
	}
	return marshalJSON(payload)
}

func marshalJSON[T Payload](payload T) (string, error) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
