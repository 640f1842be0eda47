package deduplication

import (
	"context"
	"fmt"

	"github.com/mcdev/deduper/internal/stacktrace"
	"github.com/mcdev/deduper/internal/tracker"
	"github.com/mcdev/deduper/internal/types"
)

// HandleEvent applies a single webhook event to the store. Events and actions
// the engine does not react to are ignored.
func (e *Engine) HandleEvent(ctx context.Context, event *tracker.Event) error {
	if event == nil || event.Issue == nil {
		return nil
	}

	switch event.Type {
	case tracker.EventIssues:
		switch event.Action {
		case "opened":
			return e.handleOpened(ctx, event.Issue)
		case "closed":
			return e.setState(ctx, event.Issue.Number, types.StateClosed)
		case "reopened":
			return e.setState(ctx, event.Issue.Number, types.StateOpen)
		}
	case tracker.EventIssueComment:
		switch event.Action {
		case "created", "edited":
			if event.Comment == nil {
				return nil
			}
			return e.handleComment(ctx, event.Issue, event.Comment)
		}
	}
	return nil
}

// handleOpened tracks a new crash report and closes it at once if its
// fingerprint already belongs to another issue
func (e *Engine) handleOpened(ctx context.Context, issue *tracker.Issue) error {
	if !e.isReporter(issue) {
		return nil
	}
	lines, ok := e.extract.Lines(issue.Body)
	if !ok {
		e.logger.Debug("ignoring opened issue without trace", "issue", issue.Number)
		return nil
	}

	title, _ := e.syncTitle(ctx, issue)
	fp, err := e.trackIssue(ctx, issue.Number, title, lines, types.StateOpen)
	if err != nil {
		return err
	}

	closed, err := e.CloseIfDuplicate(ctx, issue.Number, fp)
	if err != nil {
		return fmt.Errorf("failed to close new issue #%d: %w", issue.Number, err)
	}
	if !closed {
		return nil
	}
	issuesClosed.WithLabelValues("webhook").Inc()
	return e.setState(ctx, issue.Number, types.StateClosed)
}

// handleComment records a duplicate marker left by an authorized user
func (e *Engine) handleComment(ctx context.Context, issue *tracker.Issue, comment *tracker.Comment) error {
	canonical, ok := stacktrace.ParseDuplicateOf(comment.Body)
	if !ok {
		return nil
	}

	perm, err := e.tracker.GetCommenterPermission(ctx, comment.Author)
	if err != nil {
		remoteErrors.WithLabelValues("permission").Inc()
		return fmt.Errorf("failed to check permission of %s: %w", comment.Author, err)
	}
	if !perm.CanMarkDuplicate() {
		e.logger.Debug("ignoring duplicate marker from unauthorized user",
			"issue", issue.Number, "user", comment.Author, "permission", string(perm))
		return nil
	}

	if _, err := e.store.MarkDuplicates(ctx, []types.DuplicateRecord{
		{IssueID: issue.Number, DuplicateOfID: canonical},
	}); err != nil {
		return fmt.Errorf("failed to mark #%d as duplicate of #%d: %w", issue.Number, canonical, err)
	}

	tracked, err := e.store.GetIssue(ctx, issue.Number)
	if err != nil {
		return fmt.Errorf("failed to get issue #%d: %w", issue.Number, err)
	}
	if tracked == nil {
		return nil
	}

	createdAt := comment.CreatedAt
	if _, err := e.store.SetTargets(ctx, []types.TargetAssignment{{
		FingerprintID: tracked.FingerprintID,
		IssueID:       canonical,
		EventTime:     &createdAt,
	}}); err != nil {
		return fmt.Errorf("failed to set target for fingerprint %d: %w", tracked.FingerprintID, err)
	}

	e.logger.Info("recorded duplicate marker", "issue", issue.Number, "duplicate_of", canonical, "user", comment.Author)
	return nil
}

func (e *Engine) setState(ctx context.Context, number int, state types.IssueState) error {
	if err := e.store.SetStates(ctx, []types.StateUpdate{{IssueID: number, State: state}}); err != nil {
		return fmt.Errorf("failed to set issue #%d %s: %w", number, state, err)
	}
	return nil
}
