package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev/deduper/internal/types"
)

// Storage defines the interface for deduplication state backends.
// The reconciliation engine is the only writer.
type Storage interface {
	// Fingerprints
	ResolveFingerprint(ctx context.Context, lines []string) (int64, error)
	GetFingerprint(ctx context.Context, id int64) (*types.Fingerprint, error)

	// Issues
	UpsertIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id int) (*types.Issue, error)
	MarkDuplicates(ctx context.Context, records []types.DuplicateRecord) (int, error)
	SetStates(ctx context.Context, updates []types.StateUpdate) error
	FindCloseable(ctx context.Context) ([]types.CloseableIssue, error)

	// Target assignments
	SetTargets(ctx context.Context, assignments []types.TargetAssignment) (int, error)
	GetTarget(ctx context.Context, fingerprintID int64) (*types.TargetAssignment, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Transaction is the subset of Storage available inside RunInTransaction.
// All calls share one database transaction, committed when fn returns nil.
type Transaction interface {
	ResolveFingerprint(ctx context.Context, lines []string) (int64, error)
	UpsertIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id int) (*types.Issue, error)
}

// Driver names a storage backend
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Config holds database configuration
type Config struct {
	// Driver selects the backend. Default: sqlite
	Driver Driver

	// Path is the SQLite database file path
	// Default: "deduper.db"
	Path string

	// Postgres connection settings, used when Driver is postgres
	Postgres PostgresConfig
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverSQLite,
		Path:   "deduper.db",
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "deduper",
			User:            "deduper",
			SSLMode:         "prefer",
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
		},
	}
}

// Validate checks the configuration for the selected driver
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DriverPostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			return fmt.Errorf("postgres port must be between 1 and 65535 (got %d)", c.Postgres.Port)
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Driver)
	}
	return nil
}
