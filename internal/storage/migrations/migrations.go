package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration is one versioned schema change with its inverse
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Manager applies and reverts an ordered set of migrations on a SQLite database
type Manager struct {
	migrations []Migration // ascending by Version
}

// NewManager creates a manager holding migrations in version order
func NewManager(migrations ...Migration) *Manager {
	m := &Manager{}
	for _, migration := range migrations {
		m.Register(migration)
	}
	return m
}

// Register inserts a migration at its version's position
func (m *Manager) Register(migration Migration) {
	i := sort.Search(len(m.migrations), func(i int) bool {
		return m.migrations[i].Version >= migration.Version
	})
	m.migrations = append(m.migrations, Migration{})
	copy(m.migrations[i+1:], m.migrations[i:])
	m.migrations[i] = migration
}

func (m *Manager) validate() error {
	for i := 1; i < len(m.migrations); i++ {
		if m.migrations[i].Version == m.migrations[i-1].Version {
			return fmt.Errorf("duplicate migration version %d", m.migrations[i].Version)
		}
	}
	return nil
}

// Pending returns the migrations newer than the database's schema version
func (m *Manager) Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if err := createVersionTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create version table: %w", err)
	}
	current, err := Version(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}

	i := sort.Search(len(m.migrations), func(i int) bool {
		return m.migrations[i].Version > current
	})
	return m.migrations[i:], nil
}

// Apply runs every pending migration, each in its own transaction, and
// returns how many were applied
func (m *Manager) Apply(ctx context.Context, db *sql.DB) (int, error) {
	if err := m.validate(); err != nil {
		return 0, err
	}
	pending, err := m.Pending(ctx, db)
	if err != nil {
		return 0, err
	}

	for n, migration := range pending {
		err := step(ctx, db, migration.Up,
			"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
			migration.Version, migration.Description, time.Now().UTC())
		if err != nil {
			return n, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}
	return len(pending), nil
}

// Rollback reverts the most recently applied migration
func (m *Manager) Rollback(ctx context.Context, db *sql.DB) error {
	current, err := Version(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	i := sort.Search(len(m.migrations), func(i int) bool {
		return m.migrations[i].Version >= current
	})
	if i == len(m.migrations) || m.migrations[i].Version != current {
		return fmt.Errorf("migration %d not found", current)
	}

	migration := m.migrations[i]
	err = step(ctx, db, migration.Down, "DELETE FROM schema_version WHERE version = ?", migration.Version)
	if err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}
	return nil
}

// Version returns the highest applied migration version, 0 when none
func Version(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// step runs schema SQL and its schema_version bookkeeping in one transaction
func step(ctx context.Context, db *sql.DB, schema, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("failed to update schema_version: %w", err)
	}
	return tx.Commit()
}
