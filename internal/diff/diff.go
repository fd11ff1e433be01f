// Package diff compares the natural keys of a table in a source database with
// the natural keys of the same table in the target database. Rows are matched
// on natural key alone, primary keys only serve to report where a row lives.
package diff

import (
	"context"
	"fmt"
	"sort"

	"jdbacl/internal/identity"
)

// EntryLister is the part of a key mapper the comparison reads.
type EntryLister interface {
	Entries(ctx context.Context, dbID string, model identity.Model) ([]identity.Entry, error)
	TargetDBID() string
}

// KeySetDiff represents the differences between the natural keys of one table.
type KeySetDiff struct {
	Table        string   `json:"table"`
	SourceDB     string   `json:"sourceDb"`
	TargetDB     string   `json:"targetDb"`
	Warnings     []string `json:"warnings,omitempty"`
	OnlyInSource []*Key   `json:"onlyInSource,omitempty"`
	OnlyInTarget []*Key   `json:"onlyInTarget,omitempty"`
	Matched      []*Match `json:"matched,omitempty"`
}

// Key is a natural key and the primary key of the row holding it.
type Key struct {
	NaturalKey string `json:"naturalKey"`
	PK         any    `json:"pk"`
}

// Match is a natural key present in both databases.
type Match struct {
	NaturalKey string `json:"naturalKey"`
	SourcePK   any    `json:"sourcePk"`
	TargetPK   any    `json:"targetPk"`
}

// Compare populates the key indexes of model in sourceDB and the target and
// returns their difference.
func Compare(ctx context.Context, mapper EntryLister, model identity.Model, sourceDB string) (*KeySetDiff, error) {
	if model == nil {
		return nil, fmt.Errorf("diff: no identity given")
	}
	targetDB := mapper.TargetDBID()
	if targetDB == "" {
		return nil, fmt.Errorf("diff: table %q: no target database", model.Table())
	}
	if sourceDB == targetDB {
		return nil, fmt.Errorf("diff: table %q: source and target are both %q", model.Table(), sourceDB)
	}

	source, err := mapper.Entries(ctx, sourceDB, model)
	if err != nil {
		return nil, fmt.Errorf("diff: table %q: source %q: %w", model.Table(), sourceDB, err)
	}
	target, err := mapper.Entries(ctx, targetDB, model)
	if err != nil {
		return nil, fmt.Errorf("diff: table %q: target %q: %w", model.Table(), targetDB, err)
	}

	d := &KeySetDiff{Table: model.Table(), SourceDB: sourceDB, TargetDB: targetDB}
	targetKeys, collisions := mapEntriesByNK(target)
	for _, nk := range collisions {
		d.Warnings = append(d.Warnings, fmt.Sprintf("target: natural key %q is held by more than one row", nk))
	}
	sourceKeys, collisions := mapEntriesByNK(source)
	for _, nk := range collisions {
		d.Warnings = append(d.Warnings, fmt.Sprintf("source: natural key %q is held by more than one row", nk))
	}

	for nk, se := range sourceKeys {
		te, ok := targetKeys[nk]
		if !ok {
			d.OnlyInSource = append(d.OnlyInSource, &Key{NaturalKey: nk, PK: se.PK})
			continue
		}
		d.Matched = append(d.Matched, &Match{NaturalKey: nk, SourcePK: se.PK, TargetPK: te.PK})
	}
	for nk, te := range targetKeys {
		if _, ok := sourceKeys[nk]; !ok {
			d.OnlyInTarget = append(d.OnlyInTarget, &Key{NaturalKey: nk, PK: te.PK})
		}
	}

	sortKeys(d.OnlyInSource)
	sortKeys(d.OnlyInTarget)
	sort.Slice(d.Matched, func(i, j int) bool { return d.Matched[i].NaturalKey < d.Matched[j].NaturalKey })
	return d, nil
}

// IsEmpty returns true if both databases hold the same natural keys.
func (d *KeySetDiff) IsEmpty() bool {
	return len(d.OnlyInSource) == 0 && len(d.OnlyInTarget) == 0
}

func mapEntriesByNK(entries []identity.Entry) (map[string]identity.Entry, []string) {
	m := make(map[string]identity.Entry, len(entries))
	var collisions []string
	for _, e := range entries {
		if _, ok := m[e.NaturalKey]; ok {
			collisions = append(collisions, e.NaturalKey)
			continue
		}
		m[e.NaturalKey] = e
	}
	sort.Strings(collisions)
	return m, collisions
}

func sortKeys(keys []*Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].NaturalKey < keys[j].NaturalKey })
}
