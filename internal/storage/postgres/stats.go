package postgres

import (
	"context"
	"fmt"

	"github.com/mcdev/deduper/internal/types"
)

// GetStatistics returns row counts across the deduplication tables
func (s *PostgresStorage) GetStatistics(ctx context.Context) (*types.Statistics, error) {
	var stats types.Statistics
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM fingerprints),
			(SELECT COUNT(*) FROM issues WHERE state = 'open'),
			(SELECT COUNT(*) FROM issues WHERE state = 'closed'),
			(SELECT COUNT(*) FROM issues WHERE duplicate_of IS NOT NULL),
			(SELECT COUNT(*) FROM target_assignments),
			(SELECT COUNT(*) FROM issues i
				JOIN target_assignments t ON t.fingerprint_id = i.fingerprint_id
				WHERE i.state = 'open' AND t.issue_id <> i.id)
	`).Scan(
		&stats.Fingerprints, &stats.OpenIssues, &stats.ClosedIssues,
		&stats.DuplicateIssues, &stats.TargetAssignments, &stats.CloseableIssues,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &stats, nil
}
