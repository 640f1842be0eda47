package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev/deduper/internal/types"
)

// resolveAttempts bounds the select/insert/reselect loop. A second round is
// only needed when a concurrent insert wins the race and is then rolled back.
const resolveAttempts = 3

// ResolveFingerprint returns the id for lines, creating the row on first sighting
func (s *PostgresStorage) ResolveFingerprint(ctx context.Context, lines []string) (int64, error) {
	return resolveFingerprint(ctx, s.pool, lines)
}

// GetFingerprint retrieves a fingerprint by ID
func (s *PostgresStorage) GetFingerprint(ctx context.Context, id int64) (*types.Fingerprint, error) {
	fp := &types.Fingerprint{ID: id}
	err := s.pool.QueryRow(ctx, `SELECT lines FROM fingerprints WHERE id = $1`, id).Scan(&fp.Lines)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint %d: %w", id, err)
	}
	return fp, nil
}

func digest(lines []string) ([]byte, error) {
	encoded, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(encoded)
	return sum[:], nil
}

func resolveFingerprint(ctx context.Context, q querier, lines []string) (int64, error) {
	if len(lines) == 0 {
		return 0, fmt.Errorf("fingerprint must have at least one line")
	}
	key, err := digest(lines)
	if err != nil {
		return 0, fmt.Errorf("failed to encode fingerprint: %w", err)
	}

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		var id int64
		err := q.QueryRow(ctx, `SELECT id FROM fingerprints WHERE digest = $1`, key).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("failed to look up fingerprint: %w", err)
		}

		err = q.QueryRow(ctx, `
			INSERT INTO fingerprints (digest, lines) VALUES ($1, $2)
			ON CONFLICT (digest) DO NOTHING
			RETURNING id
		`, key, lines).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("failed to insert fingerprint: %w", err)
		}
		// Lost the race to a concurrent insert; reselect.
	}
	return 0, fmt.Errorf("failed to resolve fingerprint after %d attempts", resolveAttempts)
}
