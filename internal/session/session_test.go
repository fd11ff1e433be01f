package session

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"jdbacl/internal/identity"
)

const identitiesTOML = `
[[identity]]
type = "unique-key"
table = "country"
columns = ["code"]

[[identity]]
type = "sub-nk-pk-query"
table = "state"
parents = ["country"]
query = "select code, id from state where country_id = ?"
`

var geoDDL = []string{
	"CREATE TABLE country (id INTEGER PRIMARY KEY, code TEXT NOT NULL)",
	"CREATE TABLE state (id INTEGER PRIMARY KEY, country_id INTEGER REFERENCES country (id), code TEXT NOT NULL)",
}

// fixture is a source and a target sqlite database plus the files of a session.
type fixture struct {
	dir    string
	source string
	target string
	config string
}

func newFixture(t *testing.T, keygen string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:    dir,
		source: filepath.Join(dir, "source.db"),
		target: filepath.Join(dir, "target.db"),
		config: filepath.Join(dir, "jdbacl.yaml"),
	}

	exec(t, f.source, append(geoDDL,
		"INSERT INTO country VALUES (1, 'DE'), (2, 'FR')",
		"INSERT INTO state VALUES (10, 1, 'BY'), (11, 2, 'IDF')",
	)...)
	exec(t, f.target, append(geoDDL,
		"INSERT INTO country VALUES (5, 'DE')",
	)...)

	identities := filepath.Join(dir, "identities.toml")
	require.NoError(t, os.WriteFile(identities, []byte(identitiesTOML), 0o644))

	yaml := fmt.Sprintf(`target:
  id: tgt
  driver: sqlite
  dsn: %s
sources:
  - id: src
    driver: sqlite3
    dsn: %s
identities: %s
keygen: %s
connect_timeout: 2s
`, f.target, f.source, identities, keygen)
	require.NoError(t, os.WriteFile(f.config, []byte(yaml), 0o644))
	return f
}

func exec(t *testing.T, path string, stmts ...string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func openSession(t *testing.T, f *fixture, opts ...Option) *Session {
	t.Helper()
	cfg, err := LoadConfig(f.config)
	require.NoError(t, err)
	s, err := Open(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestLoadConfig(t *testing.T) {
	f := newFixture(t, "increment")

	cfg, err := LoadConfig(f.config)
	require.NoError(t, err)
	assert.Equal(t, "tgt", cfg.Target.ID)
	assert.Equal(t, "sqlite", cfg.Target.Driver)
	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "src", cfg.Sources[0].ID)
	assert.Equal(t, "increment", cfg.KeyGen)
	assert.Equal(t, "raise", cfg.ErrorPolicy)
	assert.Equal(t, 2*time.Second, cfg.ConnectTimeout)

	src, ok := cfg.Source("src")
	assert.True(t, ok)
	assert.Equal(t, f.source, src.DSN)
	_, ok = cfg.Source("other")
	assert.False(t, ok)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	f := newFixture(t, "keep")
	t.Setenv("JDBACL_KEYGEN", "uuid")
	t.Setenv("JDBACL_ERROR_POLICY", "log")
	t.Setenv("JDBACL_TARGET_ID", "warehouse")

	cfg, err := LoadConfig(f.config)
	require.NoError(t, err)
	assert.Equal(t, "uuid", cfg.KeyGen)
	assert.Equal(t, "log", cfg.ErrorPolicy)
	assert.Equal(t, "warehouse", cfg.Target.ID)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session: read config")
	})

	t.Run("environment only needs a target", func(t *testing.T) {
		_, err := LoadConfig("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "identities is required")
		assert.Contains(t, err.Error(), `target database "target" has no dsn`)
	})
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{
		Target:     DatabaseConfig{ID: "db", Driver: "sqlite", DSN: "a.db"},
		Sources:    []DatabaseConfig{{ID: "db", Driver: "db9", DSN: "b"}, {Driver: "mysql"}},
		Identities: "identities.toml",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `database id "db" is used twice`)
	assert.Contains(t, err.Error(), `unsupported driver: "db9"`)
	assert.Contains(t, err.Error(), "source database has no id")
}

func TestLookupDriver(t *testing.T) {
	d, err := LookupDriver(" MariaDB ")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name)

	d, err = LookupDriver("mssql")
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", d.Name)

	_, err = LookupDriver("db9")
	assert.Error(t, err)
	assert.Contains(t, DriverNames(), "oracle")
}

func TestOpen(t *testing.T) {
	f := newFixture(t, "increment")
	core, logs := observer.New(zap.InfoLevel)
	s := openSession(t, f, WithLogger(zap.New(core)))

	assert.Equal(t, "tgt", s.Target().ID)
	assert.Equal(t, "tgt", s.Mapper().TargetDBID())
	assert.Equal(t, []string{"src"}, s.SourceIDs())
	assert.Equal(t, []string{"country", "state"}, s.Provider().Tables())
	assert.Equal(t, "increment", s.KeyGen().Name())
	assert.NotNil(t, s.TargetConn())
	assert.NotNil(t, s.Target().Metadata.FindTable("state"))
	assert.Equal(t, 1, logs.FilterMessage("session opened").Len())

	src, err := s.Source("")
	require.NoError(t, err)
	assert.Equal(t, "src", src.ID)
	_, err = s.Source("other")
	assert.Error(t, err)
}

func TestOpenFailuresCloseConnections(t *testing.T) {
	f := newFixture(t, "keep")
	cfg, err := LoadConfig(f.config)
	require.NoError(t, err)
	cfg.KeyGen = "sequence"

	_, err = Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported key generator")

	cfg.KeyGen = "keep"
	cfg.Identities = filepath.Join(f.dir, "missing.toml")
	_, err = Open(context.Background(), cfg)
	assert.Error(t, err)

	_, err = Open(context.Background(), nil)
	assert.Error(t, err)
}

func TestTranscodeTable(t *testing.T) {
	f := newFixture(t, "increment")
	s := openSession(t, f)
	ctx := context.Background()

	countries, err := s.TranscodeTable(ctx, "src", "country")
	require.NoError(t, err)
	assert.Equal(t, 1, countries.Skipped)
	require.Len(t, countries.Rows, 1)
	fr := countries.Rows[0].Values
	assert.Equal(t, int64(6), fr["id"])
	assert.Equal(t, "FR", fr["code"])

	states, err := s.TranscodeTable(ctx, "src", "state")
	require.NoError(t, err)
	assert.Equal(t, 0, states.Skipped)
	require.Len(t, states.Rows, 2)
	assert.Equal(t, int64(1), states.Rows[0].Values["id"])
	assert.Equal(t, int64(5), states.Rows[0].Values["country_id"])
	assert.Equal(t, int64(2), states.Rows[1].Values["id"])
	assert.Equal(t, int64(6), states.Rows[1].Values["country_id"])

	pk, ok, err := s.Mapper().TargetPKForSource(ctx, "src", s.Provider().Lookup("country"), int64(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), pk)
}

func TestTranscodeTableErrors(t *testing.T) {
	f := newFixture(t, "keep")
	s := openSession(t, f)
	ctx := context.Background()

	_, err := s.TranscodeTable(ctx, "src", "city")
	assert.ErrorIs(t, err, identity.ErrObjectNotFound)

	_, err = s.TranscodeTable(ctx, "other", "country")
	assert.Error(t, err)

	t.Run("unresolved reference", func(t *testing.T) {
		// Transcoding states first leaves FR without a target key.
		_, err := s.TranscodeTable(ctx, "src", "state")
		assert.ErrorIs(t, err, identity.ErrUnresolvedReference)
	})
}
