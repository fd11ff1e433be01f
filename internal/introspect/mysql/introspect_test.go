package mysql

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"jdbacl/internal/core"
	"jdbacl/internal/introspect"
)

func setupMySQL(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("geo"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "parseTime=true")
	require.NoError(t, err, "failed to get connection string")

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx), "failed to ping database")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIntrospectIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupMySQL(t)
	ctx := context.Background()
	for _, stmt := range []string{
		"CREATE TABLE country (code CHAR(2) PRIMARY KEY, name VARCHAR(64) NOT NULL) COMMENT 'countries'",
		`CREATE TABLE state (
			id INT PRIMARY KEY,
			country CHAR(2) NOT NULL,
			code VARCHAR(8) NULL,
			CONSTRAINT fk_state_country FOREIGN KEY (country) REFERENCES country (code)
		)`,
	} {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	in, err := introspect.NewIntrospecter(core.DialectMySQL)
	require.NoError(t, err)
	meta, err := in.Introspect(ctx, db)
	require.NoError(t, err)

	assert.Equal(t, "geo", meta.Name)
	assert.Equal(t, core.DialectMySQL, meta.Dialect)
	assert.NotEmpty(t, meta.Version)

	country := meta.FindTable("country")
	require.NotNil(t, country)
	assert.Equal(t, "countries", country.Comment)
	assert.Equal(t, []string{"code"}, country.PrimaryKeyColumns())

	state := meta.FindTable("state")
	require.NotNil(t, state)
	assert.True(t, state.FindColumn("code").Nullable)
	fks := state.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "fk_state_country", fks[0].Name)
	assert.Equal(t, []string{"code"}, fks[0].ReferencedColumns)
}
