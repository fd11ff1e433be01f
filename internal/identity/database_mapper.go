package identity

import (
	"sort"
	"strings"
	"sync"
)

// databaseMapper owns the table mappers of one database. Table mappers are
// created on first access and kept for the lifetime of the session.
type databaseMapper[T interface{ stats() TableStats }] struct {
	db       *Database
	newTable func(Model) T

	mu     sync.Mutex
	tables map[string]T
}

func newDatabaseMapper[T interface{ stats() TableStats }](db *Database, newTable func(Model) T) *databaseMapper[T] {
	return &databaseMapper[T]{
		db:       db,
		newTable: newTable,
		tables:   make(map[string]T),
	}
}

func (d *databaseMapper[T]) table(model Model) T {
	key := strings.ToLower(model.Table())
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.tables[key]; ok {
		return m
	}
	m := d.newTable(model)
	d.tables[key] = m
	return m
}

func (d *databaseMapper[T]) stats() []TableStats {
	d.mu.Lock()
	keys := make([]string, 0, len(d.tables))
	for k := range d.tables {
		keys = append(keys, k)
	}
	d.mu.Unlock()
	sort.Strings(keys)

	out := make([]TableStats, 0, len(keys))
	for _, k := range keys {
		d.mu.Lock()
		m := d.tables[k]
		d.mu.Unlock()
		out = append(out, m.stats())
	}
	return out
}

type sourceDatabaseMapper = databaseMapper[*sourceTableMapper]

type targetDatabaseMapper = databaseMapper[*targetTableMapper]
