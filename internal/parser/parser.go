// Package parser reads the files a reconciliation session is configured
// with: identity definitions and, for databases that are not introspected
// live, the DDL describing their tables.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"jdbacl/internal/core"
	"jdbacl/internal/identity"
	"jdbacl/internal/parser/ddl"
	"jdbacl/internal/parser/toml"
)

// ParseIdentities reads an identity definition file. The format is chosen by
// file extension.
func ParseIdentities(path string) (*identity.Provider, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.NewParser().ParseFile(path)
	default:
		return nil, &UnsupportedFormatError{Path: path}
	}
}

// ParseSchema reads a .sql file of CREATE TABLE statements into table metadata.
func ParseSchema(path string) (*core.Database, error) {
	if strings.ToLower(filepath.Ext(path)) != ".sql" {
		return nil, &UnsupportedFormatError{Path: path}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("parser: read schema %q: %w", path, err)
	}
	db, err := ddl.NewParser().Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parser: schema %q: %w", path, err)
	}
	if db.Name == "" {
		db.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := db.Validate(); err != nil {
		return nil, fmt.Errorf("parser: schema %q: %w", path, err)
	}
	return db, nil
}

type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return "unsupported file format: " + e.Path
}
