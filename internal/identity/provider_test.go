package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderLookupIsCaseInsensitive(t *testing.T) {
	p := NewProvider()
	country := NewNaturalPK("Country")
	p.Register(country)

	got, err := p.Identity("COUNTRY")
	require.NoError(t, err)
	assert.Same(t, country, got)
	assert.Same(t, country, p.Lookup("country"))
}

func TestProviderUnknownTable(t *testing.T) {
	p := NewProvider()

	_, err := p.Identity("planet")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrObjectNotFound))
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), `"planet"`)

	assert.Nil(t, p.Lookup("planet"))
}

func TestProviderNoIdentityPlaceholder(t *testing.T) {
	p := NewProvider()
	p.Register(NewNoIdentity("audit"))

	_, err := p.Identity("audit")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrObjectNotFound))

	_, ok := p.Lookup("audit").(*NoIdentity)
	assert.True(t, ok)
}

func TestProviderRegisterAsOverwrites(t *testing.T) {
	p := NewProvider()
	first := NewNaturalPK("country")
	second := NewNkPkQuery("country", "select code, code from country")
	p.Register(first)
	p.RegisterAs(second, "COUNTRY")

	got, err := p.Identity("country")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, []string{"COUNTRY"}, p.Tables())
}

func TestProviderTablesSorted(t *testing.T) {
	p := geoProvider(t)
	assert.Equal(t, []string{"city", "country", "state"}, p.Tables())
}

func TestProviderValidate(t *testing.T) {
	t.Run("valid chain", func(t *testing.T) {
		require.NoError(t, geoProvider(t).Validate())
	})

	t.Run("missing owner", func(t *testing.T) {
		p := NewProvider()
		state, err := NewSubNkPkQuery("state", []string{"country"}, "select code, id from state where country = ?", p)
		require.NoError(t, err)
		p.Register(state)

		err = p.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidIdentity))
	})

	t.Run("cycle", func(t *testing.T) {
		p := NewProvider()
		a, err := NewSubNkPkQuery("a", []string{"b"}, "select code, id from a where b_id = ?", p)
		require.NoError(t, err)
		b, err := NewSubNkPkQuery("b", []string{"a"}, "select code, id from b where a_id = ?", p)
		require.NoError(t, err)
		p.Register(a)
		p.Register(b)

		err = p.Validate()
		require.Error(t, err)
		var invalid *InvalidIdentityError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, "ownership cycle", invalid.Reason)
		assert.Equal(t, []string{"a", "b", "a"}, invalid.Chain)
	})
}
