package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "JDBACL"

	cfgKeyTargetID       = "target.id"
	cfgKeyTargetDriver   = "target.driver"
	cfgKeyTargetDSN      = "target.dsn"
	cfgKeyTargetSchema   = "target.schema"
	cfgKeySources        = "sources"
	cfgKeyIdentities     = "identities"
	cfgKeyErrorPolicy    = "error_policy"
	cfgKeyKeyGen         = "keygen"
	cfgKeyConnectTimeout = "connect_timeout"

	defaultTargetID       = "target"
	defaultErrorPolicy    = "raise"
	defaultKeyGen         = "keep"
	defaultConnectTimeout = 5 * time.Second
)

// DatabaseConfig describes one database of a session. Schema optionally
// points at a .sql file used instead of live introspection.
type DatabaseConfig struct {
	ID     string `mapstructure:"id"`
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Schema string `mapstructure:"schema"`
}

// Config is the configuration of a reconciliation session.
type Config struct {
	Target         DatabaseConfig   `mapstructure:"target"`
	Sources        []DatabaseConfig `mapstructure:"sources"`
	Identities     string           `mapstructure:"identities"`
	ErrorPolicy    string           `mapstructure:"error_policy"`
	KeyGen         string           `mapstructure:"keygen"`
	ConnectTimeout time.Duration    `mapstructure:"connect_timeout"`
}

// LoadConfig reads the session configuration from path, which may be empty to
// configure the session from the environment alone. JDBACL_* variables
// override file values, e.g. JDBACL_TARGET_DSN for target.dsn.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyTargetID, defaultTargetID)
	v.SetDefault(cfgKeyTargetDriver, "")
	v.SetDefault(cfgKeyTargetDSN, "")
	v.SetDefault(cfgKeyTargetSchema, "")
	v.SetDefault(cfgKeySources, []map[string]any{})
	v.SetDefault(cfgKeyIdentities, "")
	v.SetDefault(cfgKeyErrorPolicy, defaultErrorPolicy)
	v.SetDefault(cfgKeyKeyGen, defaultKeyGen)
	v.SetDefault(cfgKeyConnectTimeout, defaultConnectTimeout)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("session: read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("session: decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every database is reachable by a known driver and that
// database ids are unique.
func (c *Config) Validate() error {
	var errs []error
	if c.Identities == "" {
		errs = append(errs, fmt.Errorf("%s is required", cfgKeyIdentities))
	}
	seen := map[string]bool{}
	check := func(kind string, db DatabaseConfig) {
		if db.ID == "" {
			errs = append(errs, fmt.Errorf("%s database has no id", kind))
			return
		}
		if seen[db.ID] {
			errs = append(errs, fmt.Errorf("database id %q is used twice", db.ID))
		}
		seen[db.ID] = true
		if db.DSN == "" {
			errs = append(errs, fmt.Errorf("%s database %q has no dsn", kind, db.ID))
		}
		if _, err := LookupDriver(db.Driver); err != nil {
			errs = append(errs, fmt.Errorf("%s database %q: %w", kind, db.ID, err))
		}
	}
	check("target", c.Target)
	for _, src := range c.Sources {
		check("source", src)
	}
	if len(errs) > 0 {
		return fmt.Errorf("session: invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Source returns the configuration of source id.
func (c *Config) Source(id string) (DatabaseConfig, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return DatabaseConfig{}, false
}
