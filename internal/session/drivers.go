package session

import (
	"fmt"
	"sort"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/sijms/go-ora/v2"
	_ "modernc.org/sqlite"

	"jdbacl/internal/core"
	_ "jdbacl/internal/introspect/mssql"
	_ "jdbacl/internal/introspect/mysql"
	_ "jdbacl/internal/introspect/oracle"
	_ "jdbacl/internal/introspect/postgresql"
	_ "jdbacl/internal/introspect/sqlite"
)

// Driver names the database/sql driver of a dialect.
type Driver struct {
	Name    string
	Dialect core.Dialect
}

var drivers = map[string]Driver{
	"mysql":      {Name: "mysql", Dialect: core.DialectMySQL},
	"mariadb":    {Name: "mysql", Dialect: core.DialectMySQL},
	"postgres":   {Name: "postgres", Dialect: core.DialectPostgreSQL},
	"postgresql": {Name: "postgres", Dialect: core.DialectPostgreSQL},
	"pg":         {Name: "postgres", Dialect: core.DialectPostgreSQL},
	"sqlserver":  {Name: "sqlserver", Dialect: core.DialectMSSQL},
	"mssql":      {Name: "sqlserver", Dialect: core.DialectMSSQL},
	"oracle":     {Name: "oracle", Dialect: core.DialectOracle},
	"sqlite":     {Name: "sqlite", Dialect: core.DialectSQLite},
	"sqlite3":    {Name: "sqlite", Dialect: core.DialectSQLite},
}

// LookupDriver resolves a configured driver name or alias.
func LookupDriver(name string) (Driver, error) {
	d, ok := drivers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Driver{}, fmt.Errorf("unsupported driver: %q; use one of %s", name, strings.Join(DriverNames(), ", "))
	}
	return d, nil
}

// DriverNames returns the accepted driver names.
func DriverNames() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
