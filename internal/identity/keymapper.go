package identity

import "context"

// KeyMapper maps rows between the source databases and the target database
// of one reconciliation session. Lookups that find nothing report ok=false;
// errors are reserved for configuration faults and query failures.
type KeyMapper interface {
	// RegisterSource declares a source database. Registering a known id again is a no-op.
	RegisterSource(db *Database) error
	// SetTarget binds the target database. Rebinding to another id fails.
	SetTarget(db *Database) error
	// TargetDBID returns the id of the target database, or "" when unbound.
	TargetDBID() string

	// Store records that the row srcPK of the source database identified by
	// srcDB has natural key nk and, when targetPK is not nil, target key targetPK.
	Store(ctx context.Context, srcDB string, model Model, nk string, srcPK, targetPK any) error
	// TargetPKForSource maps a source primary key to the target primary key.
	TargetPKForSource(ctx context.Context, srcDB string, model Model, srcPK any) (any, bool, error)
	// TargetPK maps a natural key to the target primary key.
	TargetPK(ctx context.Context, model Model, nk string) (any, bool, error)
	// NaturalKey returns the natural key of row pk in the database identified
	// by dbID, which is either the target or a registered source.
	NaturalKey(ctx context.Context, dbID string, model Model, pk any) (string, bool, error)
}
