package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev/deduper/internal/types"
)

// SetTargets applies target assignments in event-time order within one
// transaction. Each assignment replaces the stored one, so the latest-timed
// entry of the batch wins. Assignments for untracked issues are skipped.
func (s *PostgresStorage) SetTargets(ctx context.Context, assignments []types.TargetAssignment) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	sorted := make([]types.TargetAssignment, len(assignments))
	copy(sorted, assignments)
	types.SortAssignments(sorted)

	b := &pgx.Batch{}
	for _, a := range sorted {
		b.Queue(`
			INSERT INTO target_assignments (fingerprint_id, issue_id, event_time)
			SELECT $1::bigint, $2::integer, $3::timestamptz
			WHERE EXISTS (SELECT 1 FROM issues WHERE id = $2::integer)
			ON CONFLICT (fingerprint_id) DO UPDATE SET
				issue_id = EXCLUDED.issue_id,
				event_time = EXCLUDED.event_time
		`, a.FingerprintID, a.IssueID, a.EventTime)
	}

	var applied int
	err := s.inTx(ctx, func(q querier) error {
		n, err := execBatch(ctx, q, b)
		if err != nil {
			return fmt.Errorf("failed to set targets: %w", err)
		}
		applied = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// GetTarget returns the canonical assignment for a fingerprint, nil when unset
func (s *PostgresStorage) GetTarget(ctx context.Context, fingerprintID int64) (*types.TargetAssignment, error) {
	a := types.TargetAssignment{FingerprintID: fingerprintID}
	var eventTime *time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT issue_id, event_time FROM target_assignments WHERE fingerprint_id = $1
	`, fingerprintID).Scan(&a.IssueID, &eventTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target of fingerprint %d: %w", fingerprintID, err)
	}

	if eventTime != nil {
		t := eventTime.UTC()
		a.EventTime = &t
	}
	return &a, nil
}
