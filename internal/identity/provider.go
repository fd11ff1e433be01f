package identity

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Provider is the identity registry of one reconciliation session. Identities
// are registered while the configuration is read and only looked up afterwards.
// Table names are matched case-insensitively.
type Provider struct {
	mu         sync.RWMutex
	identities map[string]Model
	names      map[string]string
}

// NewProvider creates an empty registry.
func NewProvider() *Provider {
	return &Provider{
		identities: make(map[string]Model),
		names:      make(map[string]string),
	}
}

// Register registers model under its own table name.
func (p *Provider) Register(model Model) {
	p.RegisterAs(model, model.Table())
}

// RegisterAs registers model under table, replacing any previous identity.
func (p *Provider) RegisterAs(model Model, table string) {
	key := strings.ToLower(table)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[key] = model
	p.names[key] = table
}

// Identity returns the identity of table. A missing identity or a NoIdentity
// placeholder is an error naming the table.
func (p *Provider) Identity(table string) (Model, error) {
	m := p.Lookup(table)
	if m == nil {
		return nil, &ObjectNotFoundError{Kind: "identity", Name: table}
	}
	if _, ok := m.(*NoIdentity); ok {
		return nil, &ObjectNotFoundError{Kind: "identity", Name: table}
	}
	return m, nil
}

// Lookup returns the identity of table, the NoIdentity placeholder if one was
// registered, or nil.
func (p *Provider) Lookup(table string) Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identities[strings.ToLower(table)]
}

// Tables returns the registered table names in sorted order.
func (p *Provider) Tables() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out
}

// Validate checks that every owned table has a registered owner and that no
// ownership chain loops back on itself.
func (p *Provider) Validate() error {
	for _, table := range p.Tables() {
		sub, ok := p.Lookup(table).(*SubNkPkQuery)
		if !ok {
			continue
		}
		seen := map[string]bool{strings.ToLower(table): true}
		chain := []string{table}
		for sub != nil {
			parent := sub.Parent()
			chain = append(chain, parent)
			if seen[strings.ToLower(parent)] {
				return &InvalidIdentityError{Table: table, Chain: chain, Reason: "ownership cycle"}
			}
			seen[strings.ToLower(parent)] = true
			next, err := p.Identity(parent)
			if err != nil {
				return &InvalidIdentityError{Table: table, Chain: chain, Reason: err.Error()}
			}
			sub, _ = next.(*SubNkPkQuery)
		}
	}
	return nil
}

func (p *Provider) String() string {
	return fmt.Sprintf("identity provider (%d tables)", len(p.Tables()))
}
