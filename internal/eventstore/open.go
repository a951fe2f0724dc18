package eventstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rmacdonaldsmith/hookwatch/pkg/eventstore"
)

// Backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is one of BackendMemory, BackendSQLite or BackendPostgres.
	Backend string `yaml:"backend"`

	// MemoryCapacity bounds the in-memory backend.
	MemoryCapacity int `yaml:"memory_capacity"`

	// SQLitePath is the database file for the SQLite backend.
	SQLitePath string `yaml:"sqlite_path"`

	// PostgresDSN is the connection string for the Postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
	MinConns    int    `yaml:"min_conns"`
	MaxConns    int    `yaml:"max_conns"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.MemoryCapacity == 0 {
		c.MemoryCapacity = DefaultMemoryCapacity
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "data/hookwatch.db"
	}
}

// Validate checks the backend-specific settings.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		if c.MemoryCapacity < 0 {
			return fmt.Errorf("memory_capacity must be non-negative")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Backend)
	}
	return nil
}

// Open creates the configured store.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (eventstore.Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, logger)
	case BackendPostgres:
		return OpenPostgres(ctx, PostgresConfig{
			DSN:      cfg.PostgresDSN,
			MinConns: cfg.MinConns,
			MaxConns: cfg.MaxConns,
		}, logger)
	default:
		return NewInMemoryStore(cfg.MemoryCapacity), nil
	}
}
