package core

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the structural integrity of table metadata that was not read
// from a live catalog: table and column names are unique, key constraints only
// name existing columns and every foreign key points at an existing table and
// columns of matching arity.
//
// All problems are reported together. A nil Database is an error.
func (db *Database) Validate() error {
	if db == nil {
		return errors.New("database is nil")
	}

	var errs []error
	seen := make(map[string]bool, len(db.Tables))
	for _, t := range db.Tables {
		if strings.TrimSpace(t.Name) == "" {
			errs = append(errs, errors.New("table name is required"))
			continue
		}
		lower := strings.ToLower(t.Name)
		if seen[lower] {
			errs = append(errs, fmt.Errorf("duplicate table name %q", t.Name))
			continue
		}
		seen[lower] = true
		errs = append(errs, validateTable(t)...)
	}
	for _, t := range db.Tables {
		for _, fk := range t.ForeignKeys() {
			if err := validateReference(db, t, fk); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func validateTable(t *Table) []error {
	var errs []error
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		lower := strings.ToLower(c.Name)
		if seen[lower] {
			errs = append(errs, fmt.Errorf("table %q: duplicate column name %q", t.Name, c.Name))
		}
		seen[lower] = true
	}

	pks := 0
	for _, con := range t.Constraints {
		if con.Type == ConstraintPrimaryKey {
			pks++
		}
		if len(con.Columns) == 0 {
			errs = append(errs, fmt.Errorf("table %q: %s %s has no columns", t.Name, con.Type, constraintLabel(con)))
			continue
		}
		for _, col := range con.Columns {
			if t.FindColumn(col) == nil {
				errs = append(errs, fmt.Errorf("table %q: %s %s references nonexistent column %q",
					t.Name, con.Type, constraintLabel(con), col))
			}
		}
	}
	if pks > 1 {
		errs = append(errs, fmt.Errorf("table %q: multiple primary keys defined", t.Name))
	}
	return errs
}

// validateReference checks one foreign key of t against the referenced table.
// A foreign key without referenced columns points at the primary key.
func validateReference(db *Database, t *Table, fk *Constraint) error {
	label := constraintLabel(fk)
	ref := db.FindTable(fk.ReferencedTable)
	if ref == nil {
		return fmt.Errorf("table %q: foreign key %s references nonexistent table %q",
			t.Name, label, fk.ReferencedTable)
	}

	refCols := fk.ReferencedColumns
	if len(refCols) == 0 {
		refCols = ref.PrimaryKeyColumns()
		if len(refCols) == 0 {
			return fmt.Errorf("table %q: foreign key %s references table %q which has no primary key",
				t.Name, label, ref.Name)
		}
	}
	if len(refCols) != len(fk.Columns) {
		return fmt.Errorf("table %q: foreign key %s has %d columns but references %d",
			t.Name, label, len(fk.Columns), len(refCols))
	}
	for _, col := range refCols {
		if ref.FindColumn(col) == nil {
			return fmt.Errorf("table %q: foreign key %s references nonexistent column %s.%s",
				t.Name, label, ref.Name, col)
		}
	}
	return nil
}

func constraintLabel(con *Constraint) string {
	if con.Name == "" {
		return "(unnamed)"
	}
	return fmt.Sprintf("%q", con.Name)
}
