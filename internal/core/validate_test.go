package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geoSchema() *Database {
	return &Database{
		Name: "geo",
		Tables: []*Table{
			{
				Name:    "country",
				Columns: []*Column{{Name: "id"}, {Name: "code"}},
				Constraints: []*Constraint{
					{Name: "pk_country", Type: ConstraintPrimaryKey, Columns: []string{"id"}},
				},
			},
			{
				Name:    "state",
				Columns: []*Column{{Name: "id"}, {Name: "country_id"}},
				Constraints: []*Constraint{
					{Name: "pk_state", Type: ConstraintPrimaryKey, Columns: []string{"id"}},
					{
						Name: "fk_state_country", Type: ConstraintForeignKey,
						Columns: []string{"country_id"}, ReferencedTable: "country", ReferencedColumns: []string{"id"},
					},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid schema", func(t *testing.T) {
		require.NoError(t, geoSchema().Validate())
	})

	t.Run("nil database", func(t *testing.T) {
		var db *Database
		assert.EqualError(t, db.Validate(), "database is nil")
	})

	t.Run("implicit reference to primary key", func(t *testing.T) {
		db := geoSchema()
		db.Tables[1].ForeignKeys()[0].ReferencedColumns = nil
		require.NoError(t, db.Validate())
	})

	tests := []struct {
		name    string
		mutate  func(db *Database)
		wantErr string
	}{
		{
			name: "duplicate table",
			mutate: func(db *Database) {
				db.Tables = append(db.Tables, &Table{Name: "COUNTRY"})
			},
			wantErr: `duplicate table name "COUNTRY"`,
		},
		{
			name: "duplicate column",
			mutate: func(db *Database) {
				db.Tables[0].Columns = append(db.Tables[0].Columns, &Column{Name: "Code"})
			},
			wantErr: `table "country": duplicate column name "Code"`,
		},
		{
			name: "key on missing column",
			mutate: func(db *Database) {
				db.Tables[0].PrimaryKey().Columns = []string{"uuid"}
			},
			wantErr: `table "country": PRIMARY KEY "pk_country" references nonexistent column "uuid"`,
		},
		{
			name: "two primary keys",
			mutate: func(db *Database) {
				db.Tables[0].Constraints = append(db.Tables[0].Constraints,
					&Constraint{Type: ConstraintPrimaryKey, Columns: []string{"code"}})
			},
			wantErr: `table "country": multiple primary keys defined`,
		},
		{
			name: "missing referenced table",
			mutate: func(db *Database) {
				db.Tables[1].ForeignKeys()[0].ReferencedTable = "nation"
			},
			wantErr: `table "state": foreign key "fk_state_country" references nonexistent table "nation"`,
		},
		{
			name: "missing referenced column",
			mutate: func(db *Database) {
				db.Tables[1].ForeignKeys()[0].ReferencedColumns = []string{"iso"}
			},
			wantErr: `references nonexistent column country.iso`,
		},
		{
			name: "arity mismatch",
			mutate: func(db *Database) {
				db.Tables[1].ForeignKeys()[0].ReferencedColumns = []string{"id", "code"}
			},
			wantErr: `foreign key "fk_state_country" has 1 columns but references 2`,
		},
		{
			name: "implicit reference without primary key",
			mutate: func(db *Database) {
				db.Tables[0].Constraints = nil
				db.Tables[1].ForeignKeys()[0].ReferencedColumns = nil
			},
			wantErr: `references table "country" which has no primary key`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := geoSchema()
			tt.mutate(db)
			err := db.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
