package toml

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jdbacl/internal/identity"
)

func TestParseFileIdentities(t *testing.T) {
	p, err := NewParser().ParseFile(filepath.Join("testdata", "identities.toml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"audit_log", "city", "country", "currency", "person", "state"}, p.Tables())

	country, err := p.Identity("country")
	require.NoError(t, err)
	assert.IsType(t, &identity.NaturalPK{}, country)
	assert.Equal(t, []string{"updated_at"}, country.Irrelevant())

	state, err := p.Identity("STATE")
	require.NoError(t, err)
	sub, ok := state.(*identity.SubNkPkQuery)
	require.True(t, ok)
	assert.Equal(t, "country", sub.Parent())
	assert.Contains(t, sub.Query(), "where country = ?")

	city, err := p.Identity("city")
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "state", "country"}, city.(*identity.SubNkPkQuery).OwnerChain())

	person, err := p.Identity("person")
	require.NoError(t, err)
	assert.Equal(t, []string{"last_name", "first_name"}, person.(*identity.UniqueKey).Columns())

	currency, err := p.Identity("currency")
	require.NoError(t, err)
	assert.Equal(t, "select iso_code, id from currency", currency.(*identity.NkPkQuery).Query())

	_, err = p.Identity("audit_log")
	assert.True(t, errors.Is(err, identity.ErrObjectNotFound))
	assert.IsType(t, &identity.NoIdentity{}, p.Lookup("audit_log"))
}

func TestParseCommaSeparatedLists(t *testing.T) {
	p, err := NewParser().Parse(strings.NewReader(`
[[identity]]
type = "unique-key"
table = "person"
columns = ["last_name, first_name"]
irrelevant = ["created_at,updated_at"]
`))
	require.NoError(t, err)

	person, err := p.Identity("person")
	require.NoError(t, err)
	assert.Equal(t, []string{"last_name", "first_name"}, person.(*identity.UniqueKey).Columns())
	assert.Equal(t, []string{"created_at", "updated_at"}, person.Irrelevant())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "invalid toml",
			input:   `[[identity]`,
			wantErr: "decode error",
		},
		{
			name:    "unknown key",
			input:   "[[identity]]\ntype = \"natural-pk\"\ntable = \"country\"\nowner = \"x\"\n",
			wantErr: "unknown keys: identity.owner",
		},
		{
			name:    "missing table",
			input:   "[[identity]]\ntype = \"natural-pk\"\n",
			wantErr: "identity #1: table is required",
		},
		{
			name:    "missing type",
			input:   "[[identity]]\ntable = \"country\"\n",
			wantErr: "type is required",
		},
		{
			name:    "unsupported type",
			input:   "[[identity]]\ntype = \"guesswork\"\ntable = \"country\"\n",
			wantErr: `unsupported identity type "guesswork"`,
		},
		{
			name:    "duplicate table",
			input:   "[[identity]]\ntype = \"natural-pk\"\ntable = \"country\"\n[[identity]]\ntype = \"natural-pk\"\ntable = \"COUNTRY\"\n",
			wantErr: "duplicate identity",
		},
		{
			name:    "unique key without columns",
			input:   "[[identity]]\ntype = \"unique-key\"\ntable = \"person\"\n",
			wantErr: "needs columns",
		},
		{
			name:    "query missing",
			input:   "[[identity]]\ntype = \"nk-pk-query\"\ntable = \"country\"\n",
			wantErr: "query is required",
		},
		{
			name:    "query not a select",
			input:   "[[identity]]\ntype = \"nk-pk-query\"\ntable = \"country\"\nquery = \"delete from country\"\n",
			wantErr: "must be a SELECT",
		},
		{
			name:    "sub query without marker",
			input:   "[[identity]]\ntype = \"natural-pk\"\ntable = \"country\"\n[[identity]]\ntype = \"sub-nk-pk-query\"\ntable = \"state\"\nparents = [\"country\"]\nquery = \"select code, id from state\"\n",
			wantErr: "marker",
		},
		{
			name:    "two parents",
			input:   "[[identity]]\ntype = \"sub-nk-pk-query\"\ntable = \"state\"\nparents = [\"country\", \"region\"]\nquery = \"select code, id from state where country = ?\"\n",
			wantErr: "exactly one parent",
		},
		{
			name:    "owner not defined",
			input:   "[[identity]]\ntype = \"sub-nk-pk-query\"\ntable = \"state\"\nparents = [\"country\"]\nquery = \"select code, id from state where country = ?\"\n",
			wantErr: "invalid identity definition",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
