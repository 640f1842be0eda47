package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcdev/deduper/internal/types"
)

// SetTargets applies target assignments in event-time order within one
// transaction. Each assignment replaces the stored one, so the latest-timed
// entry of the batch wins. Assignments for untracked issues are skipped.
// Returns the number of rows written.
func (s *SQLiteStorage) SetTargets(ctx context.Context, assignments []types.TargetAssignment) (int, error) {
	if len(assignments) == 0 {
		return 0, nil
	}

	sorted := make([]types.TargetAssignment, len(assignments))
	copy(sorted, assignments)
	types.SortAssignments(sorted)

	applied := 0
	err := s.withImmediate(ctx, func(q queryer) error {
		for _, a := range sorted {
			var eventTime sql.NullInt64
			if a.EventTime != nil {
				eventTime = sql.NullInt64{Int64: a.EventTime.UnixMilli(), Valid: true}
			}

			// WHERE on the SELECT also resolves the upsert parsing ambiguity
			res, err := q.ExecContext(ctx, `
				INSERT INTO target_assignments (fingerprint_id, issue_id, event_time)
				SELECT ?, ?, ?
				WHERE EXISTS (SELECT 1 FROM issues WHERE id = ?)
				ON CONFLICT(fingerprint_id) DO UPDATE SET
					issue_id = excluded.issue_id,
					event_time = excluded.event_time
			`, a.FingerprintID, a.IssueID, eventTime, a.IssueID)
			if err != nil {
				return fmt.Errorf("failed to set target of fingerprint %d: %w", a.FingerprintID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read rows affected: %w", err)
			}
			applied += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// GetTarget returns the canonical assignment for a fingerprint, nil when unset
func (s *SQLiteStorage) GetTarget(ctx context.Context, fingerprintID int64) (*types.TargetAssignment, error) {
	a := types.TargetAssignment{FingerprintID: fingerprintID}
	var eventTime sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT issue_id, event_time FROM target_assignments WHERE fingerprint_id = ?
	`, fingerprintID).Scan(&a.IssueID, &eventTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get target of fingerprint %d: %w", fingerprintID, err)
	}

	if eventTime.Valid {
		t := time.UnixMilli(eventTime.Int64).UTC()
		a.EventTime = &t
	}
	return &a, nil
}
