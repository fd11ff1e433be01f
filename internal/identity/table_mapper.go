package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type mapperState int

const (
	stateCreated mapperState = iota
	statePopulating
	statePopulated
	statePassive
)

func (s mapperState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case statePopulating:
		return "populating"
	case statePopulated:
		return "populated"
	case statePassive:
		return "passive"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const initialTableCapacity = 1000

// entry is one mapping fact of a table mapper.
type entry struct {
	id     RowID
	pk     any
	nk     string
	target any
}

// Entry is a mapping fact as reported by MemKeyMapper.Entries.
type Entry struct {
	NaturalKey string
	PK         any
	TargetPK   any
}

// tableMapper indexes PK to NK for one table of one database. The first read
// drains the identity's NK/PK sequence once; every fact, stored or populated,
// goes through put, which also feeds the secondary index of the owning mapper.
type tableMapper struct {
	mu     sync.Mutex
	model  Model
	db     *Database
	root   KeyMapper
	policy ErrorPolicy
	logger *zap.Logger

	state       mapperState
	populations int
	pkToNK      map[RowID]string
	pks         map[RowID]any
	index       func(entry)
}

func newTableMapper(model Model, db *Database, root KeyMapper, policy ErrorPolicy, logger *zap.Logger, index func(entry)) *tableMapper {
	return &tableMapper{
		model:  model,
		db:     db,
		root:   root,
		policy: policy,
		logger: logger,
		state:  stateCreated,
		pkToNK: make(map[RowID]string, initialTableCapacity),
		pks:    make(map[RowID]any, initialTableCapacity),
		index:  index,
	}
}

// put records e. Callers hold mu.
func (m *tableMapper) put(e entry) {
	m.pkToNK[e.id] = e.nk
	m.pks[e.id] = e.pk
	m.index(e)
}

// store records e without triggering population. Callers hold mu.
func (m *tableMapper) store(e entry) {
	if m.state == stateCreated {
		m.state = statePassive
	}
	m.put(e)
}

// ensurePopulated drains the identity once. A failed drain leaves the mapper
// in its previous state with its previous contents. Callers hold mu.
func (m *tableMapper) ensurePopulated(ctx context.Context) error {
	if m.state == statePopulated || m.state == statePopulating {
		return nil
	}
	prev := m.state
	m.state = statePopulating
	entries, err := m.drain(ctx)
	if err != nil {
		m.state = prev
		return err
	}
	for _, e := range entries {
		m.put(e)
	}
	m.state = statePopulated
	return nil
}

func (m *tableMapper) drain(ctx context.Context) (entries []entry, err error) {
	start := time.Now()
	it, err := m.model.NkPkIterator(ctx, m.db, m.root)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, it.Close())
	}()

	seen := make(map[string]RowID)
	for it.Next() {
		tuple := it.Tuple()
		pk, err := ExtractPK(tuple)
		if err != nil {
			return nil, &ConfigError{DB: m.db.ID, Table: m.model.Table(), Reason: err.Error()}
		}
		nk := ExtractNK(tuple)
		id := NewRowID(pk)
		if prev, dup := seen[nk]; dup && prev != id {
			dupErr := &NonEquivalenceError{
				DB:         m.db.ID,
				Table:      m.model.Table(),
				NaturalKey: nk,
				First:      m.pkOf(entries, prev),
				Second:     pk,
			}
			if err := m.policy.Handle(dupErr); err != nil {
				return nil, err
			}
		}
		seen[nk] = id
		entries = append(entries, entry{id: id, pk: pk, nk: nk})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	m.populations++
	m.logger.Debug("populated table mapper",
		zap.String("db", m.db.ID),
		zap.String("table", m.model.Table()),
		zap.Int("tuples", len(entries)),
		zap.Duration("duration", time.Since(start)))
	return entries, nil
}

func (m *tableMapper) pkOf(entries []entry, id RowID) any {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].id == id {
			return entries[i].pk
		}
	}
	return id.String()
}

func (m *tableMapper) naturalKey(ctx context.Context, pk any) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensurePopulated(ctx); err != nil {
		return "", false, err
	}
	nk, ok := m.pkToNK[NewRowID(pk)]
	return nk, ok, nil
}

// entries returns the facts of the table sorted by natural key.
func (m *tableMapper) entries(ctx context.Context, target func(RowID) any) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensurePopulated(ctx); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(m.pkToNK))
	for id, nk := range m.pkToNK {
		e := Entry{NaturalKey: nk, PK: m.pks[id]}
		if target != nil {
			e.TargetPK = target(id)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NaturalKey != out[j].NaturalKey {
			return out[i].NaturalKey < out[j].NaturalKey
		}
		return ValueString(out[i].PK) < ValueString(out[j].PK)
	})
	return out, nil
}

func (m *tableMapper) stats() TableStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return TableStats{
		DB:          m.db.ID,
		Table:       m.model.Table(),
		State:       m.state.String(),
		Entries:     len(m.pkToNK),
		Populations: m.populations,
	}
}

// sourceTableMapper adds the source PK to target PK index.
type sourceTableMapper struct {
	*tableMapper
	sourceToTarget map[RowID]any
}

func newSourceTableMapper(model Model, db *Database, root KeyMapper, policy ErrorPolicy, logger *zap.Logger) *sourceTableMapper {
	m := &sourceTableMapper{sourceToTarget: make(map[RowID]any)}
	m.tableMapper = newTableMapper(model, db, root, policy, logger, func(e entry) {
		if e.target != nil {
			m.sourceToTarget[e.id] = e.target
		}
	})
	return m
}

func (m *sourceTableMapper) storeKeys(srcPK any, nk string, targetPK any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(entry{id: NewRowID(srcPK), pk: srcPK, nk: nk, target: targetPK})
}

func (m *sourceTableMapper) targetPK(ctx context.Context, srcPK any) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensurePopulated(ctx); err != nil {
		return nil, false, err
	}
	pk, ok := m.sourceToTarget[NewRowID(srcPK)]
	return pk, ok, nil
}

func (m *sourceTableMapper) list(ctx context.Context) ([]Entry, error) {
	return m.entries(ctx, func(id RowID) any { return m.sourceToTarget[id] })
}

// targetTableMapper adds the NK to PK index of the target database.
type targetTableMapper struct {
	*tableMapper
	nkToPK map[string]any
}

func newTargetTableMapper(model Model, db *Database, root KeyMapper, policy ErrorPolicy, logger *zap.Logger) *targetTableMapper {
	m := &targetTableMapper{nkToPK: make(map[string]any, initialTableCapacity)}
	m.tableMapper = newTableMapper(model, db, root, policy, logger, func(e entry) {
		m.nkToPK[e.nk] = e.pk
	})
	return m
}

func (m *targetTableMapper) storeKeys(pk any, nk string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(entry{id: NewRowID(pk), pk: pk, nk: nk})
}

func (m *targetTableMapper) targetID(ctx context.Context, nk string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensurePopulated(ctx); err != nil {
		return nil, false, err
	}
	pk, ok := m.nkToPK[nk]
	return pk, ok, nil
}

func (m *targetTableMapper) list(ctx context.Context) ([]Entry, error) {
	return m.entries(ctx, nil)
}
