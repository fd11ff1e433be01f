package identity

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// TableStats describes the index of one table mapper.
type TableStats struct {
	DB          string
	Table       string
	State       string
	Entries     int
	Populations int
}

// MemKeyMapperOption configures a MemKeyMapper.
type MemKeyMapperOption func(*MemKeyMapper)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) MemKeyMapperOption {
	return func(m *MemKeyMapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithErrorPolicy sets how duplicate natural keys found while populating are handled.
func WithErrorPolicy(policy ErrorPolicy) MemKeyMapperOption {
	return func(m *MemKeyMapper) {
		if policy != nil {
			m.policy = policy
		}
	}
}

// MemKeyMapper keeps all mapping facts in memory. It is safe for concurrent
// use; every table is populated at most once.
type MemKeyMapper struct {
	logger *zap.Logger
	policy ErrorPolicy

	mu      sync.RWMutex
	target  *targetDatabaseMapper
	sources map[string]*sourceDatabaseMapper
}

var _ KeyMapper = (*MemKeyMapper)(nil)

// NewMemKeyMapper creates a mapper with no databases bound.
func NewMemKeyMapper(opts ...MemKeyMapperOption) *MemKeyMapper {
	m := &MemKeyMapper{
		logger:  zap.NewNop(),
		policy:  Raise(),
		sources: make(map[string]*sourceDatabaseMapper),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemKeyMapper) RegisterSource(db *Database) error {
	if db == nil || db.ID == "" {
		return configErrorf("", "", "source database needs an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[db.ID]; ok {
		return nil
	}
	m.sources[db.ID] = newDatabaseMapper(db, func(model Model) *sourceTableMapper {
		return newSourceTableMapper(model, db, m, m.policy, m.logger)
	})
	m.logger.Debug("registered source database", zap.String("db", db.ID))
	return nil
}

func (m *MemKeyMapper) SetTarget(db *Database) error {
	if db == nil || db.ID == "" {
		return configErrorf("", "", "target database needs an id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.target != nil {
		if m.target.db.ID != db.ID {
			return configErrorf(db.ID, "", "target database is already bound to %q", m.target.db.ID)
		}
		return nil
	}
	m.target = newDatabaseMapper(db, func(model Model) *targetTableMapper {
		return newTargetTableMapper(model, db, m, m.policy, m.logger)
	})
	m.logger.Debug("bound target database", zap.String("db", db.ID))
	return nil
}

func (m *MemKeyMapper) TargetDBID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.target == nil {
		return ""
	}
	return m.target.db.ID
}

func (m *MemKeyMapper) targetMapper() (*targetDatabaseMapper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.target == nil {
		return nil, configErrorf("", "", "no target database bound")
	}
	return m.target, nil
}

func (m *MemKeyMapper) sourceMapper(dbID string) (*sourceDatabaseMapper, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[dbID]
	if !ok {
		return nil, configErrorf(dbID, "", "source database is not registered")
	}
	return src, nil
}

func (m *MemKeyMapper) Store(_ context.Context, srcDB string, model Model, nk string, srcPK, targetPK any) error {
	if model == nil {
		return configErrorf(srcDB, "", "no identity given")
	}
	src, err := m.sourceMapper(srcDB)
	if err != nil {
		return err
	}
	var target *targetDatabaseMapper
	if targetPK != nil {
		if target, err = m.targetMapper(); err != nil {
			return err
		}
	}

	src.table(model).storeKeys(srcPK, nk, targetPK)
	if target != nil {
		target.table(model).storeKeys(targetPK, nk)
	}
	return nil
}

func (m *MemKeyMapper) TargetPKForSource(ctx context.Context, srcDB string, model Model, srcPK any) (any, bool, error) {
	if model == nil {
		return nil, false, configErrorf(srcDB, "", "no identity given")
	}
	src, err := m.sourceMapper(srcDB)
	if err != nil {
		return nil, false, err
	}
	return src.table(model).targetPK(ctx, srcPK)
}

func (m *MemKeyMapper) TargetPK(ctx context.Context, model Model, nk string) (any, bool, error) {
	if model == nil {
		return nil, false, configErrorf("", "", "no identity given")
	}
	target, err := m.targetMapper()
	if err != nil {
		return nil, false, err
	}
	return target.table(model).targetID(ctx, nk)
}

func (m *MemKeyMapper) NaturalKey(ctx context.Context, dbID string, model Model, pk any) (string, bool, error) {
	if model == nil {
		return "", false, configErrorf(dbID, "", "no identity given")
	}
	if dbID == m.TargetDBID() {
		target, err := m.targetMapper()
		if err != nil {
			return "", false, err
		}
		return target.table(model).naturalKey(ctx, pk)
	}
	src, err := m.sourceMapper(dbID)
	if err != nil {
		return "", false, err
	}
	return src.table(model).naturalKey(ctx, pk)
}

// Entries returns the facts known for the table of model in the database
// identified by dbID, populating it first. Source entries carry their
// target primary key when one is known.
func (m *MemKeyMapper) Entries(ctx context.Context, dbID string, model Model) ([]Entry, error) {
	if model == nil {
		return nil, configErrorf(dbID, "", "no identity given")
	}
	if dbID == m.TargetDBID() {
		target, err := m.targetMapper()
		if err != nil {
			return nil, err
		}
		return target.table(model).list(ctx)
	}
	src, err := m.sourceMapper(dbID)
	if err != nil {
		return nil, err
	}
	return src.table(model).list(ctx)
}

// Stats reports every table mapper created so far, target first.
func (m *MemKeyMapper) Stats() []TableStats {
	m.mu.RLock()
	target := m.target
	ids := make([]string, 0, len(m.sources))
	for id := range m.sources {
		ids = append(ids, id)
	}
	sources := make([]*sourceDatabaseMapper, 0, len(ids))
	sort.Strings(ids)
	for _, id := range ids {
		sources = append(sources, m.sources[id])
	}
	m.mu.RUnlock()

	var out []TableStats
	if target != nil {
		out = append(out, target.stats()...)
	}
	for _, src := range sources {
		out = append(out, src.stats()...)
	}
	return out
}
