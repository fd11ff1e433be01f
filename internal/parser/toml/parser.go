// Package toml provides a parser for the jdbacl TOML identity format.
// It reads [[identity]] definitions from a .toml file, validates their
// queries and registers the resulting identity models into an
// identity.Provider.
package toml

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"jdbacl/internal/identity"
	"jdbacl/internal/sqlscan"
)

// Identity types understood by the parser.
const (
	TypeNkPkQuery    = "nk-pk-query"
	TypeSubNkPkQuery = "sub-nk-pk-query"
	TypeUniqueKey    = "unique-key"
	TypeNaturalPK    = "natural-pk"
	TypeNone         = "none"
)

// identityFile is the top-level TOML document.
type identityFile struct {
	Identities []tomlIdentity `toml:"identity"`
}

// tomlIdentity maps one [[identity]] entry.
type tomlIdentity struct {
	Type       string   `toml:"type"`
	Table      string   `toml:"table"`
	Parents    []string `toml:"parents"`
	Columns    []string `toml:"columns"`
	Query      string   `toml:"query"`
	Irrelevant []string `toml:"irrelevant"`
}

// Parser reads jdbacl TOML identity files.
type Parser struct{}

// NewParser creates a new TOML identity parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile opens the file at the given path and parses it as TOML identities.
func (p *Parser) ParseFile(path string) (*identity.Provider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("toml: open file %q: %w", path, err)
	}
	defer f.Close()

	return p.Parse(f)
}

// Parse reads TOML content from reader and returns a provider holding the
// identities it defines.
func (p *Parser) Parse(r io.Reader) (*identity.Provider, error) {
	var f identityFile
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("toml: decode error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("toml: unknown keys: %s", strings.Join(keys, ", "))
	}

	return newConverter(&f).convert()
}

type converter struct {
	f        *identityFile
	provider *identity.Provider
	analyzer *sqlscan.Analyzer
	seen     map[string]bool
}

func newConverter(f *identityFile) *converter {
	return &converter{
		f:        f,
		provider: identity.NewProvider(),
		analyzer: sqlscan.NewAnalyzer(),
		seen:     make(map[string]bool),
	}
}

func (c *converter) convert() (*identity.Provider, error) {
	for i := range c.f.Identities {
		ti := &c.f.Identities[i]
		if err := c.convertIdentity(ti); err != nil {
			if ti.Table == "" {
				return nil, fmt.Errorf("toml: identity #%d: %w", i+1, err)
			}
			return nil, fmt.Errorf("toml: identity %q: %w", ti.Table, err)
		}
	}
	if err := c.provider.Validate(); err != nil {
		return nil, fmt.Errorf("toml: %w", err)
	}
	return c.provider, nil
}

func (c *converter) convertIdentity(ti *tomlIdentity) error {
	table := strings.TrimSpace(ti.Table)
	if table == "" {
		return fmt.Errorf("table is required")
	}
	key := strings.ToLower(table)
	if c.seen[key] {
		return fmt.Errorf("duplicate identity for table")
	}
	c.seen[key] = true

	model, err := c.buildModel(table, ti)
	if err != nil {
		return err
	}
	if len(ti.Irrelevant) > 0 {
		if s, ok := model.(interface{ SetIrrelevant([]string) }); ok {
			s.SetIrrelevant(trimAll(ti.Irrelevant))
		}
	}
	c.provider.Register(model)
	return nil
}

func (c *converter) buildModel(table string, ti *tomlIdentity) (identity.Model, error) {
	typ := strings.ToLower(strings.TrimSpace(ti.Type))
	switch typ {
	case TypeNkPkQuery:
		if err := c.checkQuery(ti.Query, 0); err != nil {
			return nil, err
		}
		return identity.NewNkPkQuery(table, ti.Query), nil

	case TypeSubNkPkQuery:
		if err := c.checkQuery(ti.Query, 1); err != nil {
			return nil, err
		}
		sub, err := identity.NewSubNkPkQuery(table, trimAll(ti.Parents), ti.Query, c.provider)
		if err != nil {
			return nil, err
		}
		return sub, nil

	case TypeUniqueKey:
		cols := trimAll(ti.Columns)
		if len(cols) == 0 {
			return nil, fmt.Errorf("unique-key identity needs columns")
		}
		return identity.NewUniqueKey(table, cols), nil

	case TypeNaturalPK:
		return identity.NewNaturalPK(table), nil

	case TypeNone:
		return identity.NewNoIdentity(table), nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported identity type %q; supported: %s, %s, %s, %s, %s",
			ti.Type, TypeNkPkQuery, TypeSubNkPkQuery, TypeUniqueKey, TypeNaturalPK, TypeNone)
	}
}

func (c *converter) checkQuery(query string, minMarkers int) error {
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}
	return c.analyzer.CheckIdentityQuery(query, minMarkers)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
