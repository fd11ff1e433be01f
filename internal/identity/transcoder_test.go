package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transcodeFixture struct {
	provider   *Provider
	mapper     *MemKeyMapper
	transcoder *Transcoder
}

func newTranscodeFixture(t *testing.T, sourceRows ...string) *transcodeFixture {
	t.Helper()
	src, _ := geoDatabase(t, "src", sourceRows...)
	target, _ := geoDatabase(t, "tgt")
	provider := geoProvider(t)
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.RegisterSource(src))
	require.NoError(t, mapper.SetTarget(target))
	return &transcodeFixture{
		provider:   provider,
		mapper:     mapper,
		transcoder: NewTranscoder(provider, mapper, src.Metadata, "src"),
	}
}

func TestTranscodeUpdatesTargetIndex(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t, "INSERT INTO country VALUES ('DE', 'GERMANY')")

	row := NewRow("country", map[string]any{"code": "DE", "name": "GERMANY"})
	require.NoError(t, f.transcoder.Transcode(ctx, row, "DE", "DX"))
	assert.Equal(t, "DX", row.Values["code"])

	country, err := f.provider.Identity("country")
	require.NoError(t, err)
	pk, ok, err := f.mapper.TargetPK(ctx, country, "DE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DX", pk)

	pk, ok, err = f.mapper.TargetPKForSource(ctx, "src", country, "DE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DX", pk)
}

func TestTranscodeRewritesPrimaryAndForeignKeys(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t,
		"INSERT INTO country VALUES ('DE', 'GERMANY')",
		"INSERT INTO state VALUES (7, 'BY', 'DE')",
	)
	require.NoError(t, f.transcoder.Transcode(ctx, NewRow("country", map[string]any{"code": "DE"}), "DE", "DX"))

	row := NewRow("state", map[string]any{"ID": int64(7), "code": "BY", "Country": "DE"})
	require.NoError(t, f.transcoder.Transcode(ctx, row, "DE|BY", int64(100)))

	assert.Equal(t, map[string]any{"ID": int64(100), "code": "BY", "Country": "DX"}, row.Values)

	state, err := f.provider.Identity("state")
	require.NoError(t, err)
	pk, ok, err := f.mapper.TargetPK(ctx, state, "DE|BY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), pk)
}

func TestTranscodeFailsOnUnresolvedReference(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t,
		"INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')",
		"INSERT INTO state VALUES (8, 'IDF', 'FR')",
	)

	row := NewRow("state", map[string]any{"id": int64(8), "code": "IDF", "country": "FR"})
	err := f.transcoder.Transcode(ctx, row, "FR|IDF", int64(200))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnresolvedReference))

	var unresolved *UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
	assert.Equal(t, "src", unresolved.DB)
	assert.Equal(t, "state", unresolved.Table)
	assert.Equal(t, "country", unresolved.Column)
	assert.Equal(t, "FR", unresolved.NaturalKey)
	assert.Equal(t, "FR", row.Values["country"])
}

func TestTranscodeReferenceWithoutSourceNaturalKey(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t, "INSERT INTO country VALUES ('DE', 'GERMANY')")

	row := NewRow("state", map[string]any{"id": int64(9), "code": "XX", "country": "ZZ"})
	err := f.transcoder.Transcode(ctx, row, "ZZ|XX", int64(300))
	require.Error(t, err)

	var unresolved *UnresolvedReferenceError
	require.True(t, errors.As(err, &unresolved))
	assert.Empty(t, unresolved.NaturalKey)
	assert.Equal(t, "ZZ", unresolved.Value)
}

func TestTranscodeSkipsNullForeignKeys(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t)

	row := NewRow("state", map[string]any{"id": int64(5), "code": "NA", "country": nil})
	require.NoError(t, f.transcoder.Transcode(ctx, row, "NA", int64(50)))
	assert.Equal(t, int64(50), row.Values["id"])
	assert.Nil(t, row.Values["country"])
}

func TestTranscodeConfigurationErrors(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t)

	err := f.transcoder.Transcode(ctx, NewRow("planet", map[string]any{"id": 1}), "P", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	err = f.transcoder.Transcode(ctx, NewRow("country", map[string]any{"code": "DE"}), "DE", []any{"D", "X"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	err = f.transcoder.Transcode(ctx, NewRow("country", map[string]any{"code": "DE"}), "DE", nil)
	require.Error(t, err)

	f.provider.Register(NewNaturalPK("orphan"))
	err = f.transcoder.Transcode(ctx, NewRow("orphan", map[string]any{"id": 1}), "1", 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestTranscodeRejectsForeignKeyToNonPrimaryColumns(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t)
	meta := geoSchema()
	state := meta.FindTable("state")
	state.Constraints[1].ReferencedColumns = []string{"name"}
	tr := NewTranscoder(f.provider, f.mapper, meta, "src")

	err := tr.Transcode(ctx, NewRow("state", map[string]any{"id": int64(1), "country": "GERMANY"}), "GERMANY|BY", int64(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestRowKeyAndAssignKey(t *testing.T) {
	row := NewRow("line", map[string]any{"Order_ID": int64(1), "pos": "a"})

	key, complete := rowKey(row, []string{"order_id", "POS"})
	assert.True(t, complete)
	assert.Equal(t, []any{int64(1), "a"}, key)

	require.NoError(t, assignKey(row, []string{"order_id", "pos"}, []any{int64(2), "b"}))
	assert.Equal(t, map[string]any{"Order_ID": int64(2), "pos": "b"}, row.Values)

	require.Error(t, assignKey(row, []string{"order_id", "pos"}, int64(3)))

	row.Set("pos", nil)
	_, complete = rowKey(row, []string{"order_id", "pos"})
	assert.False(t, complete)
	assert.Equal(t, []string{"Order_ID", "pos"}, row.Columns())
}

func TestTranscodeRejectsIncompletePrimaryKey(t *testing.T) {
	ctx := context.Background()
	f := newTranscodeFixture(t)
	country, err := f.provider.Identity("country")
	require.NoError(t, err)

	for name, values := range map[string]map[string]any{
		"missing column": {"name": "GERMANY"},
		"null value":     {"code": nil, "name": "GERMANY"},
	} {
		t.Run(name, func(t *testing.T) {
			row := NewRow("country", values)
			err := f.transcoder.Transcode(ctx, row, "DE", "DX")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))
			assert.Contains(t, err.Error(), "country")
			assert.Contains(t, err.Error(), "no value for primary key (code)")

			_, ok, err := f.mapper.TargetPK(ctx, country, "DE")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
