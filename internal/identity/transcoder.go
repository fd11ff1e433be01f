package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"jdbacl/internal/core"
)

// Row is a table row addressed by column name. Column lookups ignore case.
type Row struct {
	Table  string
	Values map[string]any
}

// NewRow creates a row of table holding a copy of values.
func NewRow(table string, values map[string]any) *Row {
	r := &Row{Table: table, Values: make(map[string]any, len(values))}
	for k, v := range values {
		r.Values[k] = v
	}
	return r
}

func (r *Row) key(column string) (string, bool) {
	if _, ok := r.Values[column]; ok {
		return column, true
	}
	for k := range r.Values {
		if strings.EqualFold(k, column) {
			return k, true
		}
	}
	return "", false
}

// Get returns the value of column.
func (r *Row) Get(column string) (any, bool) {
	k, ok := r.key(column)
	if !ok {
		return nil, false
	}
	return r.Values[k], true
}

// Set assigns column, keeping the spelling of an existing column name.
func (r *Row) Set(column string, value any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if k, ok := r.key(column); ok {
		column = k
	}
	r.Values[column] = value
}

// Columns returns the column names in sorted order.
func (r *Row) Columns() []string {
	cols := make([]string, 0, len(r.Values))
	for k := range r.Values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// TranscoderOption configures a Transcoder.
type TranscoderOption func(*Transcoder)

// WithTranscoderLogger sets the logger used for FK rewrites.
func WithTranscoderLogger(logger *zap.Logger) TranscoderOption {
	return func(t *Transcoder) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transcoder rewrites the primary key and the foreign keys of rows read from
// one source database into the keys of the target database.
type Transcoder struct {
	provider   *Provider
	mapper     KeyMapper
	metadata   Metadata
	sourceDBID string
	logger     *zap.Logger
}

// NewTranscoder creates a transcoder for rows of the source database
// sourceDBID described by metadata.
func NewTranscoder(provider *Provider, mapper KeyMapper, metadata Metadata, sourceDBID string, opts ...TranscoderOption) *Transcoder {
	t := &Transcoder{
		provider:   provider,
		mapper:     mapper,
		metadata:   metadata,
		sourceDBID: sourceDBID,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SourceDBID returns the id of the source database.
func (t *Transcoder) SourceDBID() string { return t.sourceDBID }

// Transcode records that row has natural key nk and takes primary key newPK in
// the target, then rewrites the row in place: the primary key becomes newPK
// and every foreign key is replaced by the target key of the referenced row.
// A reference whose target key is unknown is an error; the row may be left
// partially rewritten.
func (t *Transcoder) Transcode(ctx context.Context, row *Row, nk string, newPK any) error {
	if row == nil {
		return errors.New("identity: transcode: nil row")
	}
	if newPK == nil {
		return fmt.Errorf("identity: transcode %s row %q: no new primary key", row.Table, nk)
	}
	model, err := t.provider.Identity(row.Table)
	if err != nil {
		return err
	}
	table := t.table(row.Table)
	if table == nil {
		return configErrorf(t.sourceDBID, row.Table, "table not found in database metadata")
	}
	pkCols := table.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return &ConfigError{DB: t.sourceDBID, Table: row.Table, Reason: ErrNoPrimaryKey.Error()}
	}

	oldPK, complete := rowKey(row, pkCols)
	if !complete {
		return configErrorf(t.sourceDBID, row.Table, "row %q has no value for primary key (%s)",
			nk, strings.Join(pkCols, ", "))
	}
	if err := t.mapper.Store(ctx, t.sourceDBID, model, nk, oldPK, newPK); err != nil {
		return err
	}
	if err := assignKey(row, pkCols, newPK); err != nil {
		return &ConfigError{DB: t.sourceDBID, Table: row.Table, Reason: err.Error()}
	}

	for _, fk := range table.ForeignKeys() {
		if err := t.transcodeReference(ctx, row, fk); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcoder) transcodeReference(ctx context.Context, row *Row, fk *core.Constraint) error {
	value, complete := rowKey(row, fk.Columns)
	if !complete {
		return nil
	}
	refModel, err := t.provider.Identity(fk.ReferencedTable)
	if err != nil {
		return err
	}
	if err := t.checkReferencedKey(fk); err != nil {
		return err
	}

	column := strings.Join(fk.Columns, ",")
	refNK, ok, err := t.mapper.NaturalKey(ctx, t.sourceDBID, refModel, value)
	if err != nil {
		return err
	}
	if !ok {
		return &UnresolvedReferenceError{
			DB: t.sourceDBID, Table: row.Table, Column: column, RefTable: fk.ReferencedTable, Value: value,
		}
	}
	targetPK, ok, err := t.mapper.TargetPK(ctx, refModel, refNK)
	if err != nil {
		return err
	}
	if !ok {
		return &UnresolvedReferenceError{
			DB: t.sourceDBID, Table: row.Table, Column: column, RefTable: fk.ReferencedTable, Value: value, NaturalKey: refNK,
		}
	}
	if err := assignKey(row, fk.Columns, targetPK); err != nil {
		return &ConfigError{DB: t.sourceDBID, Table: row.Table, Reason: err.Error()}
	}
	t.logger.Debug("rewrote foreign key",
		zap.String("table", row.Table),
		zap.String("column", column),
		zap.String("nk", refNK),
		zap.Any("from", value),
		zap.Any("to", targetPK))
	return nil
}

// checkReferencedKey rejects foreign keys that reference something other than
// the primary key of the referenced table, since only primary keys are mapped.
func (t *Transcoder) checkReferencedKey(fk *core.Constraint) error {
	if len(fk.ReferencedColumns) == 0 {
		return nil
	}
	ref := t.table(fk.ReferencedTable)
	if ref == nil {
		return nil
	}
	pk := ref.PrimaryKeyColumns()
	if len(pk) == len(fk.ReferencedColumns) {
		match := true
		for i := range pk {
			if !strings.EqualFold(pk[i], fk.ReferencedColumns[i]) {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}
	return configErrorf(t.sourceDBID, fk.ReferencedTable,
		"foreign key %s references (%s) which is not the primary key (%s)",
		fk.Name, strings.Join(fk.ReferencedColumns, ", "), strings.Join(pk, ", "))
}

func (t *Transcoder) table(name string) *core.Table {
	if t.metadata == nil {
		return nil
	}
	return t.metadata.FindTable(name)
}

// rowKey reads the key formed by columns. complete is false when any
// component is NULL or missing.
func rowKey(row *Row, columns []string) (key any, complete bool) {
	comps := make([]any, len(columns))
	complete = true
	for i, col := range columns {
		v, ok := row.Get(col)
		if !ok || v == nil {
			complete = false
		}
		comps[i] = v
	}
	return PKValue(comps), complete
}

func assignKey(row *Row, columns []string, key any) error {
	comps := PKComponents(key)
	if len(comps) != len(columns) {
		return fmt.Errorf("key %v has %d component(s) but (%s) has %d column(s)",
			key, len(comps), strings.Join(columns, ", "), len(columns))
	}
	for i, col := range columns {
		row.Set(col, comps[i])
	}
	return nil
}
