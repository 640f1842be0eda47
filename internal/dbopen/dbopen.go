// Package dbopen opens the configured storage backend.
//
// It lives outside package storage because both backends import storage for
// its interfaces.
//
// Usage:
//
//	store, err := dbopen.Open(ctx, cfg.Database)
//	if err != nil { ... }
//	defer store.Close()
package dbopen

import (
	"context"
	"fmt"

	"github.com/mcdev/deduper/internal/storage"
	"github.com/mcdev/deduper/internal/storage/postgres"
	"github.com/mcdev/deduper/internal/storage/sqlite"
)

// Open validates cfg and returns the selected backend with its schema initialized
func Open(ctx context.Context, cfg *storage.Config) (storage.Storage, error) {
	if cfg == nil {
		cfg = storage.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	switch cfg.Driver {
	case storage.DriverSQLite:
		return sqlite.New(ctx, cfg.Path)
	case storage.DriverPostgres:
		return postgres.New(ctx, PostgresConfig(cfg.Postgres))
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}

// PostgresConfig maps storage settings onto the postgres pool config,
// keeping pool defaults for anything left unset
func PostgresConfig(pc storage.PostgresConfig) *postgres.Config {
	cfg := postgres.DefaultConfig()
	cfg.Host = pc.Host
	cfg.Port = pc.Port
	cfg.Database = pc.Database
	cfg.User = pc.User
	cfg.Password = pc.Password
	if pc.SSLMode != "" {
		cfg.SSLMode = pc.SSLMode
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	return cfg
}
