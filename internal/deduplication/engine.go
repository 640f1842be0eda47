package deduplication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcdev/deduper/internal/stacktrace"
	"github.com/mcdev/deduper/internal/storage"
	"github.com/mcdev/deduper/internal/tracker"
	"github.com/mcdev/deduper/internal/types"
)

// Engine reconciles tracker issues into the store and closes duplicates.
//
// The engine is the only writer of the store. Full sweeps and webhook events
// both go through it; a sweep re-derives everything from the tracker, so a
// missed or dropped webhook event is repaired on the next pass.
type Engine struct {
	store   storage.Storage
	tracker tracker.Client
	extract *stacktrace.Extractor
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a reconciliation engine
func New(store storage.Storage, client tracker.Client, cfg Config, logger *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("tracker client cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		store:   store,
		tracker: client,
		extract: stacktrace.NewExtractor(cfg.FramePrefix, cfg.PlaceholderTitle),
		cfg:     cfg,
		logger:  logger.With("component", "engine"),
		now:     time.Now,
	}, nil
}

// RunOnce runs a full sweep followed by a close pass. The close pass runs even
// if the sweep fails, since it only acts on state already in the store.
func (e *Engine) RunOnce(ctx context.Context) error {
	if e.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.PassTimeout)
		defer cancel()
	}

	var errs []error
	sweep, err := e.Sweep(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep failed: %w", err))
	} else {
		e.logger.Info("sweep complete", "report", sweep.String())
	}

	closed, err := e.CloseDuplicates(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("close pass failed: %w", err))
	} else {
		e.logger.Info("close pass complete", "report", closed.String())
	}

	return errors.Join(errs...)
}

// CloseIfDuplicate closes an open issue on the tracker when its fingerprint is
// owned by a different issue. It reports whether the issue was closed. The
// target is re-read here so a stale candidate list never closes the canonical
// issue.
func (e *Engine) CloseIfDuplicate(ctx context.Context, issueID int, fingerprintID int64) (bool, error) {
	target, err := e.store.GetTarget(ctx, fingerprintID)
	if err != nil {
		return false, fmt.Errorf("failed to get target for fingerprint %d: %w", fingerprintID, err)
	}
	if target == nil || target.IssueID == issueID {
		return false, nil
	}

	if err := e.tracker.CommentOnIssue(ctx, issueID, stacktrace.DuplicateNotice(target.IssueID)); err != nil {
		remoteErrors.WithLabelValues("comment").Inc()
		return false, err
	}
	if err := e.tracker.CloseIssue(ctx, issueID); err != nil {
		remoteErrors.WithLabelValues("close").Inc()
		return false, err
	}

	e.logger.Info("closed duplicate issue", "issue", issueID, "duplicate_of", target.IssueID)
	return true, nil
}

// trackIssue resolves the fingerprint and upserts the issue in one transaction
func (e *Engine) trackIssue(ctx context.Context, number int, title string, lines []string, state types.IssueState) (int64, error) {
	var fp int64
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		fp, err = tx.ResolveFingerprint(ctx, lines)
		if err != nil {
			return fmt.Errorf("failed to resolve fingerprint: %w", err)
		}
		return tx.UpsertIssue(ctx, &types.Issue{
			ID:            number,
			Title:         title,
			FingerprintID: fp,
			State:         state,
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to track issue #%d: %w", number, err)
	}
	return fp, nil
}

// syncTitle derives the display title and pushes it to the tracker when it
// differs. Failures are logged; the derived title is stored either way.
func (e *Engine) syncTitle(ctx context.Context, issue *tracker.Issue) (string, bool) {
	title := e.extract.Title(issue.Title, issue.Body)
	if title == issue.Title || !e.cfg.UpdateTitles {
		return title, false
	}
	if err := e.tracker.UpdateTitle(ctx, issue.Number, title); err != nil {
		remoteErrors.WithLabelValues("update_title").Inc()
		e.logger.Warn("failed to update title", "issue", issue.Number, "error", err)
		return title, false
	}
	return title, true
}

func (e *Engine) isReporter(issue *tracker.Issue) bool {
	return !issue.PullRequest && issue.Author == e.cfg.ReporterLogin
}
