package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mcdev/deduper/internal/types"
)

// UpsertIssue inserts an issue or replaces its title, fingerprint and state.
// An existing duplicate_of link is kept.
func (s *PostgresStorage) UpsertIssue(ctx context.Context, issue *types.Issue) error {
	return upsertIssue(ctx, s.pool, issue)
}

// GetIssue retrieves an issue by ID, returning nil when it is not tracked
func (s *PostgresStorage) GetIssue(ctx context.Context, id int) (*types.Issue, error) {
	return getIssue(ctx, s.pool, id)
}

// MarkDuplicates records duplicate links in one transaction. Records pointing
// at an untracked issue or at the issue itself are skipped.
func (s *PostgresStorage) MarkDuplicates(ctx context.Context, records []types.DuplicateRecord) (int, error) {
	b := &pgx.Batch{}
	for _, rec := range records {
		if rec.IssueID == rec.DuplicateOfID {
			continue
		}
		b.Queue(`
			UPDATE issues SET duplicate_of = $1
			WHERE id = $2 AND EXISTS (SELECT 1 FROM issues WHERE id = $1)
		`, rec.DuplicateOfID, rec.IssueID)
	}
	if b.Len() == 0 {
		return 0, nil
	}

	var applied int
	err := s.inTx(ctx, func(q querier) error {
		n, err := execBatch(ctx, q, b)
		if err != nil {
			return fmt.Errorf("failed to mark duplicates: %w", err)
		}
		applied = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// SetStates updates issue states in one transaction
func (s *PostgresStorage) SetStates(ctx context.Context, updates []types.StateUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, u := range updates {
		if !u.State.IsValid() {
			return fmt.Errorf("invalid state for issue #%d: %s", u.IssueID, u.State)
		}
		b.Queue(`UPDATE issues SET state = $1 WHERE id = $2`, string(u.State), u.IssueID)
	}

	return s.inTx(ctx, func(q querier) error {
		if _, err := execBatch(ctx, q, b); err != nil {
			return fmt.Errorf("failed to set states: %w", err)
		}
		return nil
	})
}

// FindCloseable returns open issues whose fingerprint targets a different issue
func (s *PostgresStorage) FindCloseable(ctx context.Context) ([]types.CloseableIssue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.fingerprint_id
		FROM issues i
		JOIN target_assignments t ON t.fingerprint_id = i.fingerprint_id
		WHERE i.state = 'open' AND t.issue_id <> i.id
		ORDER BY i.id
	`)
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

func upsertIssue(ctx context.Context, q querier, issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	_, err := q.Exec(ctx, `
		INSERT INTO issues (id, title, fingerprint_id, state, duplicate_of)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			fingerprint_id = EXCLUDED.fingerprint_id,
			state = EXCLUDED.state,
			duplicate_of = COALESCE(EXCLUDED.duplicate_of, issues.duplicate_of)
	`, issue.ID, issue.Title, issue.FingerprintID, string(issue.State), issue.DuplicateOf)
	if err != nil {
		return fmt.Errorf("failed to upsert issue #%d: %w", issue.ID, err)
	}
	return nil
}

func getIssue(ctx context.Context, q querier, id int) (*types.Issue, error) {
	var issue types.Issue
	var state string

	err := q.QueryRow(ctx, `
		SELECT id, title, fingerprint_id, state, duplicate_of
		FROM issues
		WHERE id = $1
	`, id).Scan(&issue.ID, &issue.Title, &issue.FingerprintID, &state, &issue.DuplicateOf)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", id, err)
	}

	issue.State = types.IssueState(state)
	return &issue, nil
}
