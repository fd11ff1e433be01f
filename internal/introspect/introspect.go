// Package introspect contains a main introspecter interface which let you introspect a database for
// the metadata identity reconciliation needs: tables, their columns, primary keys and foreign keys.
// It returns core.Database type with all information about current database,
// or an error if connection/queries were unsuccessful.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"jdbacl/internal/core"
)

type Introspecter interface {
	Introspect(ctx context.Context, db *sql.DB) (*core.Database, error)
}

var (
	registry = make(map[core.Dialect]func() Introspecter)
	mu       sync.RWMutex
)

func Register(dialect core.Dialect, fn func() Introspecter) {
	mu.Lock()
	defer mu.Unlock()
	registry[dialect] = fn
}

func NewIntrospecter(dialect core.Dialect) (Introspecter, error) {
	mu.RLock()
	fn, ok := registry[dialect]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("introspect: unsupported dialect %v", dialect)
	}

	return fn(), nil
}

// Dialects returns the dialects with a registered introspecter.
func Dialects() []core.Dialect {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]core.Dialect, 0, len(registry))
	for d := range registry {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
