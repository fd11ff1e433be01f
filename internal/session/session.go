// Package session assembles a reconciliation session from its configuration:
// it opens the target and source databases, loads their metadata, parses the
// identity definitions and wires the key mapper, the key generator and the
// transcoders that operate on them.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"jdbacl/internal/core"
	"jdbacl/internal/dialect"
	"jdbacl/internal/identity"
	"jdbacl/internal/introspect"
	"jdbacl/internal/keygen"
	"jdbacl/internal/parser"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger handed to every component of the session.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session holds the open databases of one reconciliation run.
type Session struct {
	cfg    *Config
	logger *zap.Logger

	target  *identity.Database
	sources map[string]*identity.Database
	conns   map[string]*sql.DB

	provider *identity.Provider
	mapper   *identity.MemKeyMapper
	keygen   keygen.Generator
}

// Open connects every database of cfg and prepares the identity layer. The
// databases opened so far are closed when a later step fails.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("session: no config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:     cfg,
		logger:  zap.NewNop(),
		sources: make(map[string]*identity.Database),
		conns:   make(map[string]*sql.DB),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context) error {
	provider, err := parser.ParseIdentities(s.cfg.Identities)
	if err != nil {
		return fmt.Errorf("session: identities: %w", err)
	}
	s.provider = provider

	policy, err := identity.ParseErrorPolicy(s.cfg.ErrorPolicy, s.logger)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.mapper = identity.NewMemKeyMapper(identity.WithLogger(s.logger), identity.WithErrorPolicy(policy))

	target, err := s.openDatabase(ctx, s.cfg.Target)
	if err != nil {
		return err
	}
	s.target = target
	if err := s.mapper.SetTarget(target); err != nil {
		return err
	}

	for _, src := range s.cfg.Sources {
		db, err := s.openDatabase(ctx, src)
		if err != nil {
			return err
		}
		if err := s.mapper.RegisterSource(db); err != nil {
			return err
		}
		s.sources[src.ID] = db
	}

	gen, err := keygen.Parse(s.cfg.KeyGen, target)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.keygen = gen

	s.logger.Info("session opened",
		zap.String("target", target.ID),
		zap.Int("sources", len(s.sources)),
		zap.Int("identities", len(provider.Tables())),
		zap.String("keygen", gen.Name()),
		zap.String("error_policy", policy.Name()))
	return nil
}

func (s *Session) openDatabase(ctx context.Context, cfg DatabaseConfig) (*identity.Database, error) {
	driver, err := LookupDriver(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("session: database %q: %w", cfg.ID, err)
	}
	conn, err := connect(ctx, driver.Name, cfg.DSN, s.timeout())
	if err != nil {
		return nil, fmt.Errorf("session: database %q: %w", cfg.ID, err)
	}
	s.conns[cfg.ID] = conn

	meta, err := loadMetadata(ctx, conn, driver.Dialect, cfg.Schema)
	if err != nil {
		return nil, fmt.Errorf("session: database %q: %w", cfg.ID, err)
	}
	s.logger.Debug("loaded metadata",
		zap.String("db", cfg.ID),
		zap.String("dialect", string(driver.Dialect)),
		zap.Int("tables", len(meta.Tables)))

	return &identity.Database{
		ID:       cfg.ID,
		Conn:     conn,
		Renderer: dialect.ForDialect(driver.Dialect),
		Metadata: meta,
	}, nil
}

func (s *Session) timeout() time.Duration {
	if s.cfg.ConnectTimeout > 0 {
		return s.cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}

// connect opens a pool and pings it.
func connect(ctx context.Context, driver, dsn string, timeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %v; additionally failed to close connection: %w", pingErr, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}
	return db, nil
}

// loadMetadata reads the schema file when one is configured and introspects
// the live database otherwise.
func loadMetadata(ctx context.Context, db *sql.DB, d core.Dialect, schema string) (*core.Database, error) {
	if schema != "" {
		meta, err := parser.ParseSchema(schema)
		if err != nil {
			return nil, err
		}
		meta.Dialect = d
		return meta, nil
	}
	in, err := introspect.NewIntrospecter(d)
	if err != nil {
		return nil, err
	}
	return in.Introspect(ctx, db)
}

// Close closes every database of the session.
func (s *Session) Close() error {
	ids := make([]string, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var errs []error
	for _, id := range ids {
		if err := s.conns[id].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", id, err))
		}
	}
	s.conns = map[string]*sql.DB{}
	return errors.Join(errs...)
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() *Config { return s.cfg }

// Provider returns the identity definitions.
func (s *Session) Provider() *identity.Provider { return s.provider }

// Mapper returns the key mapper of the session.
func (s *Session) Mapper() *identity.MemKeyMapper { return s.mapper }

// KeyGen returns the target key generator.
func (s *Session) KeyGen() keygen.Generator { return s.keygen }

// Target returns the target database.
func (s *Session) Target() *identity.Database { return s.target }

// TargetConn returns the connection pool of the target database.
func (s *Session) TargetConn() *sql.DB { return s.conns[s.target.ID] }

// Source returns the source database id. An empty id selects the only
// source of a single-source session.
func (s *Session) Source(id string) (*identity.Database, error) {
	if id == "" {
		if len(s.sources) != 1 {
			return nil, fmt.Errorf("session: %d sources configured, choose one with --source", len(s.sources))
		}
		for _, db := range s.sources {
			return db, nil
		}
	}
	db, ok := s.sources[id]
	if !ok {
		return nil, fmt.Errorf("session: unknown source database %q", id)
	}
	return db, nil
}

// SourceIDs returns the ids of the source databases in sorted order.
func (s *Session) SourceIDs() []string {
	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Transcoder returns a transcoder for rows of the source database id.
func (s *Session) Transcoder(id string) (*identity.Transcoder, error) {
	src, err := s.Source(id)
	if err != nil {
		return nil, err
	}
	return identity.NewTranscoder(s.provider, s.mapper, src.Metadata, src.ID,
		identity.WithTranscoderLogger(s.logger)), nil
}
