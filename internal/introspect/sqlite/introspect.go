// Package sqlite contains the introspect implementation for SQLite. SQLite has no
// information schema, tables are listed from sqlite_master and described with
// the table_info and foreign_key_list pragmas.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"jdbacl/internal/core"
	"jdbacl/internal/introspect"
)

func init() {
	introspect.Register(core.DialectSQLite, New)
}

type sqliteIntrospecter struct{}

func New() introspect.Introspecter {
	return &sqliteIntrospecter{}
}

func (i *sqliteIntrospecter) Introspect(ctx context.Context, db *sql.DB) (*core.Database, error) {
	d := &core.Database{Name: "main", Dialect: core.DialectSQLite}
	_ = db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&d.Version)

	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("introspect: tables: %w", err)
	}
	for _, name := range names {
		t := &core.Table{Name: name}
		if err := introspectColumns(ctx, db, t); err != nil {
			return nil, fmt.Errorf("introspect: table %q: columns: %w", name, err)
		}
		if err := introspectForeignKeys(ctx, db, t); err != nil {
			return nil, fmt.Errorf("introspect: table %q: foreign keys: %w", name, err)
		}
		d.Tables = append(d.Tables, t)
	}
	resolveImplicitReferences(d)
	return d, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func introspectColumns(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx,
		"SELECT cid, name, type, \"notnull\", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid", t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	// pk holds the 1-based position of the column in the primary key.
	keyCols := map[int]string{}
	for rows.Next() {
		var cid, notNull, pk int
		var name, typeName string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &typeName, &notNull, &dflt, &pk); err != nil {
			return err
		}
		t.Columns = append(t.Columns, &core.Column{
			Name:       name,
			TypeRaw:    typeName,
			Type:       core.NormalizeDataType(typeName),
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
		if pk > 0 {
			keyCols[pk] = name
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for pos := 1; pos <= len(keyCols); pos++ {
		introspect.AddPrimaryKeyColumn(t, "PRIMARY", keyCols[pos])
	}
	return nil
}

func introspectForeignKeys(ctx context.Context, db *sql.DB, t *core.Table) error {
	rows, err := db.QueryContext(ctx,
		"SELECT id, seq, \"table\", \"from\", \"to\" FROM pragma_foreign_key_list(?) ORDER BY id, seq", t.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		if err := rows.Scan(&id, &seq, &refTable, &from, &to); err != nil {
			return err
		}
		// SQLite doesn't name FKs, so we create a name.
		name := fmt.Sprintf("fk_%s_%d", t.Name, id)
		introspect.AddForeignKeyColumn(t, name, from, refTable, to.String)
	}
	return rows.Err()
}

// resolveImplicitReferences fills the referenced columns of foreign keys
// declared as REFERENCES parent without a column list.
func resolveImplicitReferences(d *core.Database) {
	for _, t := range d.Tables {
		for _, fk := range t.ForeignKeys() {
			if len(fk.ReferencedColumns) == len(fk.Columns) {
				continue
			}
			if ref := d.FindTable(fk.ReferencedTable); ref != nil {
				fk.ReferencedColumns = append([]string(nil), ref.PrimaryKeyColumns()...)
			}
		}
	}
}
