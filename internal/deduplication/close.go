package deduplication

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev/deduper/internal/types"
)

// CloseDuplicates closes every open issue whose fingerprint is owned by a
// different issue.
//
// Each candidate is re-fetched from the tracker first. Tracker errors on a
// single candidate are logged and counted; the candidate stays open in the
// store and is retried by the next pass.
func (e *Engine) CloseDuplicates(ctx context.Context) (report *CloseReport, err error) {
	start := e.now()
	defer func() {
		passesTotal.WithLabelValues("close", resultLabel(err)).Inc()
		passDuration.WithLabelValues("close").Observe(time.Since(start).Seconds())
	}()

	candidates, err := e.store.FindCloseable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find closeable issues: %w", err)
	}

	report = &CloseReport{Candidates: len(candidates)}
	var closed []types.StateUpdate
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remote, err := e.tracker.GetIssue(ctx, c.IssueID)
		if err != nil {
			report.Failed++
			remoteErrors.WithLabelValues("get_issue").Inc()
			e.logger.Warn("failed to fetch close candidate", "issue", c.IssueID, "error", err)
			continue
		}

		if remote.State == string(types.StateClosed) {
			report.AlreadyClosed++
			closed = append(closed, types.StateUpdate{IssueID: c.IssueID, State: types.StateClosed})
			continue
		}

		ok, err := e.CloseIfDuplicate(ctx, c.IssueID, c.FingerprintID)
		switch {
		case err != nil:
			report.Failed++
			e.logger.Warn("failed to close duplicate", "issue", c.IssueID, "error", err)
		case ok:
			report.Closed++
			issuesClosed.WithLabelValues("sweep").Inc()
			closed = append(closed, types.StateUpdate{IssueID: c.IssueID, State: types.StateClosed})
		default:
			report.Skipped++
		}
	}

	if err := e.store.SetStates(ctx, closed); err != nil {
		return nil, fmt.Errorf("failed to record closed issues: %w", err)
	}

	report.Duration = time.Since(start)
	return report, nil
}
