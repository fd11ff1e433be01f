package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"jdbacl/internal/dialect"
)

// SubNkPkQuery derives the natural key of an owned table from the natural key
// of its owner. For every owner row the sub-query is run with the owner's
// primary key substituted for its `?` markers; each result row has the shape
// [subNK, pk1, ..., pkN] and yields the tuple [ownerNK|subNK, pk1, ..., pkN].
type SubNkPkQuery struct {
	base
	parents  []string
	template *dialect.Template
	provider *Provider
}

// NewSubNkPkQuery creates an owned identity. Exactly one parent table is
// supported, and it must differ from table. The provider resolves the
// parent's identity when the table is iterated.
func NewSubNkPkQuery(table string, parents []string, query string, provider *Provider) (*SubNkPkQuery, error) {
	switch {
	case len(parents) == 0:
		return nil, configErrorf("", table, "sub-nk-pk-query needs a parent table")
	case len(parents) > 1:
		return nil, configErrorf("", table, "sub-nk-pk-query supports exactly one parent, got %s",
			strings.Join(parents, ", "))
	case strings.EqualFold(parents[0], table):
		return nil, configErrorf("", table, "table cannot own itself")
	case provider == nil:
		return nil, configErrorf("", table, "sub-nk-pk-query needs an identity provider")
	}

	tmpl, err := dialect.NewTemplate(strings.TrimSpace(query))
	if err != nil {
		return nil, &ConfigError{Table: table, Reason: err.Error()}
	}
	if tmpl.Markers() == 0 {
		return nil, configErrorf("", table, "sub-nk-pk-query has no parameter marker for the owner key")
	}

	return &SubNkPkQuery{
		base:     base{table: table},
		parents:  append([]string(nil), parents...),
		template: tmpl,
		provider: provider,
	}, nil
}

// Parents returns the owner tables.
func (m *SubNkPkQuery) Parents() []string { return m.parents }

// Parent returns the owner table.
func (m *SubNkPkQuery) Parent() string { return m.parents[0] }

// Query returns the sub-query template.
func (m *SubNkPkQuery) Query() string { return m.template.SQL() }

func (m *SubNkPkQuery) Description() string {
	return fmt.Sprintf("sub-nk-pk-query identity of %s owned by %s: %s",
		m.table, strings.Join(m.parents, ", "), m.template.SQL())
}

// OwnerChain lists the table followed by its owners, nearest first.
func (m *SubNkPkQuery) OwnerChain() []string {
	chain := []string{m.table}
	seen := map[string]bool{strings.ToLower(m.table): true}
	var cur Model = m
	for {
		sub, ok := cur.(*SubNkPkQuery)
		if !ok {
			return chain
		}
		parent := sub.Parent()
		chain = append(chain, parent)
		if seen[strings.ToLower(parent)] {
			return chain
		}
		seen[strings.ToLower(parent)] = true
		if cur = m.provider.Lookup(parent); cur == nil {
			return chain
		}
	}
}

// repeatsTable reports whether the last table of chain appears earlier in it.
func repeatsTable(chain []string) bool {
	last := chain[len(chain)-1]
	for _, table := range chain[:len(chain)-1] {
		if strings.EqualFold(table, last) {
			return true
		}
	}
	return false
}

func (m *SubNkPkQuery) NkPkIterator(ctx context.Context, db *Database, mapper KeyMapper) (TupleIterator, error) {
	if db == nil {
		return nil, configErrorf("", m.table, "no database connection")
	}
	if mapper == nil {
		return nil, configErrorf(db.ID, m.table, "sub-nk-pk-query needs a key mapper to resolve owner keys")
	}
	// Populating a table of a cycle would wait on its own mapper.
	if chain := m.OwnerChain(); repeatsTable(chain) {
		return nil, &InvalidIdentityError{Table: m.table, Chain: chain, Reason: "ownership cycle"}
	}
	parentModel, err := m.provider.Identity(m.Parent())
	if err != nil {
		return nil, &InvalidIdentityError{Table: m.table, Chain: m.OwnerChain(), Reason: err.Error()}
	}

	parentKeys, err := m.parentKeys(ctx, db, parentModel, mapper)
	if err != nil {
		return nil, err
	}
	return &recursiveIterator{
		ctx:         ctx,
		db:          db,
		mapper:      mapper,
		owner:       m,
		parentModel: parentModel,
		parents:     parentKeys,
	}, nil
}

// parentKeys opens the cursor over owner primary keys. Tuples carry the
// primary key from position 1 on, like NK/PK tuples. The plain key query is
// preferred; without metadata the owner identity's own sequence is used.
func (m *SubNkPkQuery) parentKeys(ctx context.Context, db *Database, parentModel Model, mapper KeyMapper) (TupleIterator, error) {
	if t := db.table(m.Parent()); t != nil {
		if cols := t.PrimaryKeyColumns(); len(cols) > 0 {
			return query(ctx, db, m.Parent(), selectColumns(m.Parent(), cols), func(row []any) []any {
				return append([]any{nil}, row...)
			})
		}
	}
	return parentModel.NkPkIterator(ctx, db, mapper)
}

// recursiveIterator streams the owned rows of one owner at a time. It holds
// the owner cursor and the current sub-cursor and releases both on Close.
type recursiveIterator struct {
	ctx         context.Context
	db          *Database
	mapper      KeyMapper
	owner       *SubNkPkQuery
	parentModel Model

	parents  TupleIterator
	sub      TupleIterator
	parentNK string
	current  []any
	err      error
	done     bool
}

func (it *recursiveIterator) Next() bool {
	it.current = nil
	if it.done {
		return false
	}
	for {
		if it.sub != nil {
			if it.sub.Next() {
				row := it.sub.Tuple()
				if len(row) == 0 {
					it.fail(configErrorf(it.db.ID, it.owner.table, "sub-nk-pk-query returned no columns"))
					return false
				}
				tuple := make([]any, len(row))
				copy(tuple, row)
				tuple[0] = ChildNK(it.parentNK, row[0])
				it.current = tuple
				return true
			}
			err := errors.Join(it.sub.Err(), it.sub.Close())
			it.sub = nil
			if err != nil {
				it.fail(err)
				return false
			}
		}

		if !it.parents.Next() {
			if err := it.parents.Err(); err != nil {
				it.fail(fmt.Errorf("identity: owner keys of %q: %w", it.owner.Parent(), err))
				return false
			}
			it.done = true
			return false
		}
		if err := it.openSub(it.parents.Tuple()); err != nil {
			it.fail(err)
			return false
		}
	}
}

func (it *recursiveIterator) openSub(parentTuple []any) error {
	pk, err := ExtractPK(parentTuple)
	if err != nil {
		return &InvalidIdentityError{Table: it.owner.table, Chain: it.owner.OwnerChain(), Reason: err.Error()}
	}
	nk, ok, err := it.mapper.NaturalKey(it.ctx, it.db.ID, it.parentModel, pk)
	if err != nil {
		return &InvalidIdentityError{Table: it.owner.table, Chain: it.owner.OwnerChain(), Reason: err.Error()}
	}
	if !ok {
		return &InvalidIdentityError{
			Table:  it.owner.table,
			Chain:  it.owner.OwnerChain(),
			Reason: fmt.Sprintf("%s row %v has no natural key in database %q", it.owner.Parent(), pk, it.db.ID),
		}
	}

	sql, err := it.owner.template.Render(PKComponents(pk), it.db.renderer())
	if err != nil {
		return &ConfigError{DB: it.db.ID, Table: it.owner.table, Reason: err.Error()}
	}
	sub, err := query(it.ctx, it.db, it.owner.table, sql, nil)
	if err != nil {
		return err
	}
	it.parentNK = nk
	it.sub = sub
	return nil
}

func (it *recursiveIterator) fail(err error) {
	it.err = err
	it.done = true
	it.current = nil
}

func (it *recursiveIterator) Tuple() []any { return it.current }

func (it *recursiveIterator) Err() error { return it.err }

func (it *recursiveIterator) Close() error {
	it.done = true
	it.current = nil
	var err error
	if it.sub != nil {
		err = it.sub.Close()
		it.sub = nil
	}
	if it.parents != nil {
		err = errors.Join(err, it.parents.Close())
		it.parents = nil
	}
	return err
}
