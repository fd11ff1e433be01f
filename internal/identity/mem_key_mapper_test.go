package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMemKeyMapperRoundTrip(t *testing.T) {
	ctx := context.Background()
	target, _ := geoDatabase(t, "tgt",
		"INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE'), ('UK', 'UNITED KINGDOM')")
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.SetTarget(target))
	country := NewNkPkQuery("country", "select name, code from country")

	for _, pk := range []string{"DE", "FR", "UK"} {
		nk, ok, err := mapper.NaturalKey(ctx, "tgt", country, pk)
		require.NoError(t, err)
		require.True(t, ok, pk)

		back, ok, err := mapper.TargetPK(ctx, country, nk)
		require.NoError(t, err)
		require.True(t, ok, nk)
		assert.Equal(t, pk, back)
	}

	_, ok, err := mapper.TargetPK(ctx, country, "ATLANTIS")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemKeyMapperPopulatesOnce(t *testing.T) {
	ctx := context.Background()
	src, q := geoDatabase(t, "src",
		"INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')")
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.RegisterSource(src))
	country := NewNaturalPK("country")

	assert.Equal(t, 0, q.count())

	nk, ok, err := mapper.NaturalKey(ctx, "src", country, "DE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DE", nk)
	assert.Equal(t, 1, q.count())

	nk, ok, err = mapper.NaturalKey(ctx, "src", country, "FR")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "FR", nk)

	_, ok, err = mapper.TargetPKForSource(ctx, "src", country, "DE")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, q.count())

	stats := mapper.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, TableStats{DB: "src", Table: "country", State: "populated", Entries: 2, Populations: 1}, stats[0])
}

func TestMemKeyMapperStoreBeforeRead(t *testing.T) {
	ctx := context.Background()
	src, q := geoDatabase(t, "src", "INSERT INTO country VALUES ('DE', 'GERMANY')")
	target, _ := geoDatabase(t, "tgt")
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.RegisterSource(src))
	require.NoError(t, mapper.SetTarget(target))
	country := NewNaturalPK("country")

	require.NoError(t, mapper.Store(ctx, "src", country, "XX", "XX", "X1"))
	assert.Equal(t, 0, q.count())

	stats := mapper.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "passive", stats[0].State)
	assert.Equal(t, "passive", stats[1].State)

	targetPK, ok, err := mapper.TargetPKForSource(ctx, "src", country, "XX")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "X1", targetPK)
	assert.Equal(t, 1, q.count())

	nk, ok, err := mapper.NaturalKey(ctx, "src", country, "DE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "DE", nk)

	entries, err := mapper.Entries(ctx, "src", country)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{NaturalKey: "DE", PK: "DE"},
		{NaturalKey: "XX", PK: "XX", TargetPK: "X1"},
	}, entries)

	pk, ok, err := mapper.TargetPK(ctx, country, "XX")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "X1", pk)
}

func TestMemKeyMapperCompositeKeys(t *testing.T) {
	ctx := context.Background()
	target, _ := geoDatabase(t, "tgt")
	src, _ := geoDatabase(t, "src")
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.SetTarget(target))
	require.NoError(t, mapper.RegisterSource(src))
	line := NewNkPkQuery("country", "select code, code from country")

	require.NoError(t, mapper.Store(ctx, "src", line, "1|a", []any{int64(1), "a"}, []any{int64(100), "a"}))

	got, ok, err := mapper.TargetPKForSource(ctx, "src", line, []any{1, "a"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{int64(100), "a"}, got)

	_, ok, err = mapper.TargetPKForSource(ctx, "src", line, []any{1, "b"})
	require.NoError(t, err)
	assert.False(t, ok)

	nk, ok, err := mapper.NaturalKey(ctx, "tgt", line, []any{int64(100), "a"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1|a", nk)
}

func TestMemKeyMapperConfigurationErrors(t *testing.T) {
	ctx := context.Background()
	country := NewNaturalPK("country")

	t.Run("unregistered source", func(t *testing.T) {
		mapper := NewMemKeyMapper()
		_, _, err := mapper.NaturalKey(ctx, "nowhere", country, "DE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))

		err = mapper.Store(ctx, "nowhere", country, "DE", "DE", nil)
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("no target", func(t *testing.T) {
		mapper := NewMemKeyMapper()
		_, _, err := mapper.TargetPK(ctx, country, "DE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
	})

	t.Run("rebinding target", func(t *testing.T) {
		mapper := NewMemKeyMapper()
		require.NoError(t, mapper.SetTarget(&Database{ID: "tgt"}))
		require.NoError(t, mapper.SetTarget(&Database{ID: "tgt"}))

		err := mapper.SetTarget(&Database{ID: "other"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))
		assert.Equal(t, "tgt", mapper.TargetDBID())
	})

	t.Run("source registered twice", func(t *testing.T) {
		mapper := NewMemKeyMapper()
		require.NoError(t, mapper.RegisterSource(&Database{ID: "src"}))
		require.NoError(t, mapper.RegisterSource(&Database{ID: "src"}))
	})

	t.Run("missing id", func(t *testing.T) {
		mapper := NewMemKeyMapper()
		assert.True(t, errors.Is(mapper.RegisterSource(&Database{}), ErrConfiguration))
		assert.True(t, errors.Is(mapper.SetTarget(nil), ErrConfiguration))
	})

	t.Run("no identity", func(t *testing.T) {
		mapper := NewMemKeyMapper()
		require.NoError(t, mapper.RegisterSource(&Database{ID: "src"}))
		_, _, err := mapper.NaturalKey(ctx, "src", nil, "DE")
		assert.True(t, errors.Is(err, ErrConfiguration))
	})
}

func TestMemKeyMapperDuplicateNaturalKeys(t *testing.T) {
	ctx := context.Background()
	dup := NewNkPkQuery("country", "select 'same', code from country")

	t.Run("raise", func(t *testing.T) {
		src, _ := geoDatabase(t, "src", "INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')")
		mapper := NewMemKeyMapper()
		require.NoError(t, mapper.RegisterSource(src))

		_, _, err := mapper.NaturalKey(ctx, "src", dup, "DE")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNonEquivalent))

		var nonEq *NonEquivalenceError
		require.True(t, errors.As(err, &nonEq))
		assert.Equal(t, "same", nonEq.NaturalKey)

		stats := mapper.Stats()
		require.Len(t, stats, 1)
		assert.Equal(t, "created", stats[0].State)
		assert.Equal(t, 0, stats[0].Entries)
	})

	t.Run("log", func(t *testing.T) {
		src, _ := geoDatabase(t, "src", "INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')")
		core, logs := observer.New(zap.WarnLevel)
		mapper := NewMemKeyMapper(WithErrorPolicy(Log(zap.New(core))))
		require.NoError(t, mapper.RegisterSource(src))

		nk, ok, err := mapper.NaturalKey(ctx, "src", dup, "FR")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "same", nk)
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("ignore", func(t *testing.T) {
		src, _ := geoDatabase(t, "src", "INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')")
		mapper := NewMemKeyMapper(WithErrorPolicy(Ignore()))
		require.NoError(t, mapper.RegisterSource(src))

		entries, err := mapper.Entries(ctx, "src", dup)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestMemKeyMapperFailedPopulationIsRetried(t *testing.T) {
	ctx := context.Background()
	src, q := geoDatabase(t, "src")
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.RegisterSource(src))
	broken := NewNkPkQuery("country", "select code, code from countries")

	_, _, err := mapper.NaturalKey(ctx, "src", broken, "DE")
	require.Error(t, err)
	_, _, err = mapper.NaturalKey(ctx, "src", broken, "DE")
	require.Error(t, err)
	assert.Equal(t, 2, q.count())
}

func TestParseErrorPolicy(t *testing.T) {
	for name, want := range map[string]string{"": "raise", "RAISE": "raise", "log": "log", "ignore": "ignore"} {
		policy, err := ParseErrorPolicy(name, nil)
		require.NoError(t, err)
		assert.Equal(t, want, policy.Name())
	}
	_, err := ParseErrorPolicy("panic", nil)
	require.Error(t, err)
}

func TestMemKeyMapperConcurrentFirstReadsPopulateOnce(t *testing.T) {
	ctx := context.Background()
	src, srcQ := geoDatabase(t, "src",
		"INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')")
	target, tgtQ := geoDatabase(t, "tgt",
		"INSERT INTO country VALUES ('DE', 'GERMANY'), ('FR', 'FRANCE')")
	mapper := NewMemKeyMapper()
	require.NoError(t, mapper.RegisterSource(src))
	require.NoError(t, mapper.SetTarget(target))
	country := NewNaturalPK("country")

	const readers = 16
	var wg sync.WaitGroup
	errs := make(chan error, 2*readers)
	for i := 0; i < readers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			nk, ok, err := mapper.NaturalKey(ctx, "src", country, "DE")
			if err == nil && (!ok || nk != "DE") {
				err = fmt.Errorf("natural key of DE: got %q, %v", nk, ok)
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			pk, ok, err := mapper.TargetPK(ctx, country, "FR")
			if err == nil && (!ok || pk != "FR") {
				err = fmt.Errorf("target pk of FR: got %v, %v", pk, ok)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, srcQ.count())
	assert.Equal(t, 1, tgtQ.count())
	stats := mapper.Stats()
	require.Len(t, stats, 2)
	for _, s := range stats {
		assert.Equal(t, 1, s.Populations, s.DB)
		assert.Equal(t, "populated", s.State, s.DB)
	}
}
