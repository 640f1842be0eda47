package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mcdev/deduper/internal/types"
)

// ResolveFingerprint returns the id for lines, creating the row on first sighting
func (s *SQLiteStorage) ResolveFingerprint(ctx context.Context, lines []string) (int64, error) {
	var id int64
	err := s.withImmediate(ctx, func(q queryer) error {
		var err error
		id, err = resolveFingerprint(ctx, q, lines)
		return err
	})
	return id, err
}

// GetFingerprint retrieves a fingerprint by ID
func (s *SQLiteStorage) GetFingerprint(ctx context.Context, id int64) (*types.Fingerprint, error) {
	var encoded string
	err := s.db.QueryRowContext(ctx, `SELECT lines FROM fingerprints WHERE id = ?`, id).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint %d: %w", id, err)
	}

	fp := &types.Fingerprint{ID: id}
	if err := json.Unmarshal([]byte(encoded), &fp.Lines); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint %d: %w", id, err)
	}
	return fp, nil
}

// resolveFingerprint must run inside an immediate transaction, which rules out
// a concurrent insert of the same lines between the lookup and the insert.
func resolveFingerprint(ctx context.Context, q queryer, lines []string) (int64, error) {
	if len(lines) == 0 {
		return 0, fmt.Errorf("fingerprint must have at least one line")
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		return 0, fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx, `SELECT id FROM fingerprints WHERE lines = ?`, string(encoded)).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		INSERT INTO fingerprints (lines) VALUES (?)
		ON CONFLICT(lines) DO UPDATE SET lines = excluded.lines
		RETURNING id
	`, string(encoded)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert fingerprint: %w", err)
	}
	return id, nil
}
