package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mcdev/deduper/internal/storage"
	"github.com/mcdev/deduper/internal/storage/migrations"
	"github.com/mcdev/deduper/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// New creates a new SQLite storage backend and brings its schema up to date
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	if path != MemoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL for concurrent readers; busy_timeout lets competing writers wait on BEGIN IMMEDIATE
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := Migrations().Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string {
	return s.path
}

// SchemaVersion returns the applied schema migration version
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	return migrations.Version(ctx, s.db)
}

// RollbackSchema reverts the most recently applied migration
func (s *SQLiteStorage) RollbackSchema(ctx context.Context) error {
	return Migrations().Rollback(ctx, s.db)
}

// Ping checks that the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// withImmediate runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection. The write lock is taken up front so concurrent writers, including
// other processes, are serialized instead of failing on lock upgrade.
func (s *SQLiteStorage) withImmediate(ctx context.Context, fn func(q queryer) error) error {
	// database/sql's BeginTx always uses DEFERRED mode with this driver, so the
	// transaction is driven with raw statements on a single connection.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if err := beginImmediate(ctx, conn); err != nil {
		return fmt.Errorf("failed to begin immediate transaction: %w", err)
	}

	// Use context.Background() for ROLLBACK so cleanup happens even if ctx is canceled
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// beginRetries bounds BEGIN IMMEDIATE attempts after busy_timeout has elapsed
const beginRetries = 3

func beginImmediate(ctx context.Context, conn *sql.Conn) error {
	var err error
	for i := 0; i < beginRetries; i++ {
		if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err == nil || !isBusy(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(100*(i+1)) * time.Millisecond):
		}
	}
	return err
}

// isBusy reports whether err is an SQLITE_BUSY condition
func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunInTransaction executes fn within a single write transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return s.withImmediate(ctx, func(q queryer) error {
		return fn(&sqliteTx{q: q})
	})
}

// sqliteTx exposes transaction-scoped operations
type sqliteTx struct {
	q queryer
}

func (t *sqliteTx) ResolveFingerprint(ctx context.Context, lines []string) (int64, error) {
	return resolveFingerprint(ctx, t.q, lines)
}

func (t *sqliteTx) UpsertIssue(ctx context.Context, issue *types.Issue) error {
	return upsertIssue(ctx, t.q, issue)
}

func (t *sqliteTx) GetIssue(ctx context.Context, id int) (*types.Issue, error) {
	return getIssue(ctx, t.q, id)
}
