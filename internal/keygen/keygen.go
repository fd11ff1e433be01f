// Package keygen assigns primary keys to source rows copied into the target
// database. A generator is chosen per session: keep the source key, mint a
// UUID, or count up from the largest key already present in the target table.
package keygen

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"jdbacl/internal/core"
	"jdbacl/internal/dialect"
	"jdbacl/internal/identity"
	"jdbacl/internal/rowquery"
)

const (
	Keep      = "keep"
	UUID      = "uuid"
	Increment = "increment"
)

// Generator returns the target primary key of a source row of table.
type Generator interface {
	Next(ctx context.Context, table string, sourcePK any) (any, error)
	Name() string
}

// Parse returns the generator called name. Increment reads the current
// maximum keys from target.
func Parse(name string, target *identity.Database) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Keep:
		return NewKeep(), nil
	case UUID:
		return NewUUID(), nil
	case Increment:
		if target == nil {
			return nil, fmt.Errorf("keygen: %s needs a target database", Increment)
		}
		return NewIncrement(target), nil
	default:
		return nil, fmt.Errorf("unsupported key generator: %s; use 'keep', 'uuid', or 'increment'", name)
	}
}

type keepGenerator struct{}

// NewKeep returns a generator reusing the source primary key.
func NewKeep() Generator { return keepGenerator{} }

func (keepGenerator) Next(_ context.Context, table string, sourcePK any) (any, error) {
	if sourcePK == nil {
		return nil, fmt.Errorf("keygen: table %q: no source key to keep", table)
	}
	return sourcePK, nil
}

func (keepGenerator) Name() string { return Keep }

type uuidGenerator struct{}

// NewUUID returns a generator minting time ordered UUIDs.
func NewUUID() Generator { return uuidGenerator{} }

func (uuidGenerator) Next(context.Context, string, any) (any, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String(), nil
	}
	return id.String(), nil
}

func (uuidGenerator) Name() string { return UUID }

// IncrementGenerator continues the integer keys of the target tables. The
// maximum is read once per table, later keys are counted in memory.
type IncrementGenerator struct {
	mu     sync.Mutex
	target *identity.Database
	next   map[string]int64
}

// NewIncrement returns a generator counting up from the target's keys.
func NewIncrement(target *identity.Database) *IncrementGenerator {
	return &IncrementGenerator{target: target, next: make(map[string]int64)}
}

func (g *IncrementGenerator) Name() string { return Increment }

func (g *IncrementGenerator) Next(ctx context.Context, table string, _ any) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := strings.ToLower(table)
	next, ok := g.next[key]
	if !ok {
		largest, err := g.max(ctx, table)
		if err != nil {
			return nil, err
		}
		next = largest + 1
	}
	g.next[key] = next + 1
	return next, nil
}

func (g *IncrementGenerator) max(ctx context.Context, table string) (int64, error) {
	column, err := g.keyColumn(table)
	if err != nil {
		return 0, err
	}
	r := g.target.Renderer
	if r == nil {
		r = dialect.ForDialect(core.DialectUnknown)
	}
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", r.QuoteIdentifier(column), r.QuoteIdentifier(table))
	rows, err := rowquery.All(ctx, g.target.Conn, query)
	if err != nil {
		return 0, fmt.Errorf("keygen: table %q: %w", table, err)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt64(table, rows[0][0])
}

func (g *IncrementGenerator) keyColumn(table string) (string, error) {
	if g.target.Metadata == nil {
		return "", fmt.Errorf("keygen: table %q: target metadata unavailable", table)
	}
	t := g.target.Metadata.FindTable(table)
	if t == nil {
		return "", fmt.Errorf("keygen: table %q not found in target", table)
	}
	cols := t.PrimaryKeyColumns()
	if len(cols) != 1 {
		return "", fmt.Errorf("keygen: table %q: %s needs a single column primary key, got %d columns",
			table, Increment, len(cols))
	}
	return cols[0], nil
}

func toInt64(table string, v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("keygen: table %q: key %q is not an integer", table, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("keygen: table %q: unsupported key type %T", table, v)
	}
}
