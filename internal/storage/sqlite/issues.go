package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mcdev/deduper/internal/types"
)

// UpsertIssue inserts an issue or replaces its title, fingerprint and state.
// An existing duplicate_of link is kept.
func (s *SQLiteStorage) UpsertIssue(ctx context.Context, issue *types.Issue) error {
	return s.withImmediate(ctx, func(q queryer) error {
		return upsertIssue(ctx, q, issue)
	})
}

// GetIssue retrieves an issue by ID, returning nil when it is not tracked
func (s *SQLiteStorage) GetIssue(ctx context.Context, id int) (*types.Issue, error) {
	return getIssue(ctx, s.db, id)
}

// MarkDuplicates records duplicate links. Records pointing at an untracked
// issue or at the issue itself are skipped. Returns the number applied.
func (s *SQLiteStorage) MarkDuplicates(ctx context.Context, records []types.DuplicateRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	applied := 0
	err := s.withImmediate(ctx, func(q queryer) error {
		for _, rec := range records {
			if rec.IssueID == rec.DuplicateOfID {
				continue
			}
			res, err := q.ExecContext(ctx, `
				UPDATE issues SET duplicate_of = ?
				WHERE id = ? AND EXISTS (SELECT 1 FROM issues WHERE id = ?)
			`, rec.DuplicateOfID, rec.IssueID, rec.DuplicateOfID)
			if err != nil {
				return fmt.Errorf("failed to mark #%d duplicate of #%d: %w", rec.IssueID, rec.DuplicateOfID, err)
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

// SetStates updates issue states in one transaction
func (s *SQLiteStorage) SetStates(ctx context.Context, updates []types.StateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	for _, u := range updates {
		if !u.State.IsValid() {
			return fmt.Errorf("invalid state for issue #%d: %s", u.IssueID, u.State)
		}
	}

	return s.withImmediate(ctx, func(q queryer) error {
		for _, u := range updates {
			if _, err := q.ExecContext(ctx, `UPDATE issues SET state = ? WHERE id = ?`, u.State, u.IssueID); err != nil {
				return fmt.Errorf("failed to set state of #%d: %w", u.IssueID, err)
			}
		}
		return nil
	})
}

// FindCloseable returns open issues whose fingerprint targets a different issue
func (s *SQLiteStorage) FindCloseable(ctx context.Context) ([]types.CloseableIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.fingerprint_id
		FROM issues i
		JOIN target_assignments t ON t.fingerprint_id = i.fingerprint_id
		WHERE i.state = ? AND t.issue_id <> i.id
		ORDER BY i.id
	`, types.StateOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to find closeable issues: %w", err)
	}
	defer rows.Close()

	var result []types.CloseableIssue
	for rows.Next() {
		var c types.CloseableIssue
		if err := rows.Scan(&c.IssueID, &c.FingerprintID); err != nil {
			return nil, fmt.Errorf("failed to scan closeable issue: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func upsertIssue(ctx context.Context, q queryer, issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	var duplicateOf sql.NullInt64
	if issue.DuplicateOf != nil {
		duplicateOf = sql.NullInt64{Int64: int64(*issue.DuplicateOf), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO issues (id, title, fingerprint_id, state, duplicate_of)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			fingerprint_id = excluded.fingerprint_id,
			state = excluded.state,
			duplicate_of = COALESCE(excluded.duplicate_of, issues.duplicate_of)
	`, issue.ID, issue.Title, issue.FingerprintID, issue.State, duplicateOf)
	if err != nil {
		return fmt.Errorf("failed to upsert issue #%d: %w", issue.ID, err)
	}
	return nil
}

func getIssue(ctx context.Context, q queryer, id int) (*types.Issue, error) {
	var issue types.Issue
	var duplicateOf sql.NullInt64

	err := q.QueryRowContext(ctx, `
		SELECT id, title, fingerprint_id, state, duplicate_of
		FROM issues
		WHERE id = ?
	`, id).Scan(&issue.ID, &issue.Title, &issue.FingerprintID, &issue.State, &duplicateOf)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", id, err)
	}

	if duplicateOf.Valid {
		dup := int(duplicateOf.Int64)
		issue.DuplicateOf = &dup
	}
	return &issue, nil
}
