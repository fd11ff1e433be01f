package identity

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks errors caused by a broken identity setup. They are
	// never retried.
	ErrConfiguration = errors.New("identity configuration error")
	// ErrObjectNotFound is returned when no identity is registered for a table.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidIdentity marks an identity whose owner chain cannot be resolved.
	ErrInvalidIdentity = errors.New("invalid identity definition")
	// ErrUnresolvedReference marks a foreign key that points to a row with no
	// known target primary key.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrNoPrimaryKey is returned for NK/PK tuples that carry no primary key.
	ErrNoPrimaryKey = errors.New("no primary key")
	// ErrNonEquivalent marks two different rows of one table sharing a natural key.
	ErrNonEquivalent = errors.New("natural key is not unique")
)

// ConfigError describes a configuration fault, e.g. a missing source
// database registration or an identity that cannot be queried.
type ConfigError struct {
	Table  string
	DB     string
	Reason string
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("identity: ")
	if e.DB != "" {
		fmt.Fprintf(&sb, "database %q: ", e.DB)
	}
	if e.Table != "" {
		fmt.Fprintf(&sb, "table %q: ", e.Table)
	}
	sb.WriteString(e.Reason)
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

func configErrorf(db, table, format string, args ...any) error {
	return &ConfigError{DB: db, Table: table, Reason: fmt.Sprintf(format, args...)}
}

// ObjectNotFoundError is returned by Provider.Identity for unknown tables.
type ObjectNotFoundError struct {
	Kind string
	Name string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("identity: no %s defined for %q", e.Kind, e.Name)
}

func (e *ObjectNotFoundError) Unwrap() []error { return []error{ErrObjectNotFound, ErrConfiguration} }

// InvalidIdentityError is raised when the owner of a row cannot be resolved
// while building the natural key of a child table.
type InvalidIdentityError struct {
	Table  string
	Chain  []string
	Reason string
}

func (e *InvalidIdentityError) Error() string {
	return fmt.Sprintf("identity: invalid identity definition for %q (owners: %s): %s",
		e.Table, strings.Join(e.Chain, " -> "), e.Reason)
}

func (e *InvalidIdentityError) Unwrap() error { return ErrInvalidIdentity }

// UnresolvedReferenceError is raised by the transcoder when a foreign key
// value cannot be mapped to a primary key of the target database.
type UnresolvedReferenceError struct {
	DB         string
	Table      string
	Column     string
	RefTable   string
	Value      any
	NaturalKey string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.NaturalKey == "" {
		return fmt.Sprintf("identity: %s.%s.%s references %s row %v which has no natural key in the source database",
			e.DB, e.Table, e.Column, e.RefTable, e.Value)
	}
	return fmt.Sprintf("identity: %s.%s.%s references %s row %v with natural key %q which has no target primary key",
		e.DB, e.Table, e.Column, e.RefTable, e.Value, e.NaturalKey)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// NonEquivalenceError reports two rows of the same table mapped to one natural key.
type NonEquivalenceError struct {
	DB         string
	Table      string
	NaturalKey string
	First      any
	Second     any
}

func (e *NonEquivalenceError) Error() string {
	return fmt.Sprintf("identity: database %q table %q: natural key %q maps to %v and %v",
		e.DB, e.Table, e.NaturalKey, e.First, e.Second)
}

func (e *NonEquivalenceError) Unwrap() error { return ErrNonEquivalent }
