package deduplication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mcdev/deduper/internal/stacktrace"
	"github.com/mcdev/deduper/internal/tracker"
	"github.com/mcdev/deduper/internal/types"
)

// trackedIssue is an issue upserted during the current sweep
type trackedIssue struct {
	number      int
	fingerprint int64
	state       types.IssueState
}

// scanResult is one fan-out branch's output. Branches never fail the group;
// errors stay in their own slot.
type scanResult struct {
	duplicate *types.DuplicateRecord
	targets   []types.TargetAssignment
	err       error
}

// Sweep rebuilds the store from every issue on the tracker.
//
// Issues not filed by the reporter account, or without an extractable trace,
// are skipped. A persistence error aborts the sweep; tracker errors on single
// issues are logged and counted.
func (e *Engine) Sweep(ctx context.Context) (report *SweepReport, err error) {
	start := e.now()
	defer func() {
		passesTotal.WithLabelValues("sweep", resultLabel(err)).Inc()
		passDuration.WithLabelValues("sweep").Observe(time.Since(start).Seconds())
	}()

	issues, err := e.tracker.ListIssues(ctx, tracker.StateAll)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	report = &SweepReport{Listed: len(issues)}
	tracked := make([]trackedIssue, 0, len(issues))
	for i := range issues {
		issue := &issues[i]
		if !e.isReporter(issue) {
			report.Ignored++
			continue
		}

		lines, ok := e.extract.Lines(issue.Body)
		if !ok {
			report.Untraceable++
			e.logger.Debug("skipping issue without trace", "issue", issue.Number)
			continue
		}

		state, err := types.ParseIssueState(issue.State)
		if err != nil {
			return nil, fmt.Errorf("issue #%d: %w", issue.Number, err)
		}

		title, updated := e.syncTitle(ctx, issue)
		if updated {
			report.TitlesUpdated++
		}

		fp, err := e.trackIssue(ctx, issue.Number, title, lines, state)
		if err != nil {
			return nil, err
		}
		tracked = append(tracked, trackedIssue{number: issue.Number, fingerprint: fp, state: state})
	}
	report.Tracked = len(tracked)
	trackedIssues.Set(float64(len(tracked)))

	results := e.scanComments(ctx, tracked)

	states := make([]types.StateUpdate, 0, len(tracked))
	var duplicates []types.DuplicateRecord
	var targets []types.TargetAssignment
	for i, t := range tracked {
		states = append(states, types.StateUpdate{IssueID: t.number, State: t.state})

		r := results[i]
		if r.err != nil {
			report.ScanErrors++
			e.logger.Warn("failed to scan comments", "issue", t.number, "error", r.err)
			continue
		}
		if r.duplicate != nil {
			duplicates = append(duplicates, *r.duplicate)
		}
		targets = append(targets, r.targets...)
	}

	if err := e.store.SetStates(ctx, states); err != nil {
		return nil, fmt.Errorf("failed to set states: %w", err)
	}
	if report.DuplicatesMarked, err = e.store.MarkDuplicates(ctx, duplicates); err != nil {
		return nil, fmt.Errorf("failed to mark duplicates: %w", err)
	}
	if report.TargetsApplied, err = e.store.SetTargets(ctx, targets); err != nil {
		return nil, fmt.Errorf("failed to set targets: %w", err)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// scanComments lists each tracked issue's comments in parallel and collects
// the duplicate markers left by authorized users
func (e *Engine) scanComments(ctx context.Context, tracked []trackedIssue) []scanResult {
	results := make([]scanResult, len(tracked))
	perms := newPermissionCache(e.tracker)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, t := range tracked {
		g.Go(func() error {
			results[i] = e.scanIssue(gctx, t, perms)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) scanIssue(ctx context.Context, t trackedIssue, perms *permissionCache) scanResult {
	comments, err := e.tracker.ListComments(ctx, t.number)
	if err != nil {
		remoteErrors.WithLabelValues("list_comments").Inc()
		return scanResult{err: err}
	}

	var result scanResult
	for _, c := range comments {
		canonical, ok := stacktrace.ParseDuplicateOf(c.Body)
		if !ok {
			continue
		}

		perm, err := perms.get(ctx, c.Author)
		if err != nil {
			remoteErrors.WithLabelValues("permission").Inc()
			e.logger.Warn("failed to check commenter permission",
				"issue", t.number, "user", c.Author, "error", err)
			continue
		}
		if !perm.CanMarkDuplicate() {
			e.logger.Debug("ignoring duplicate marker from unauthorized user",
				"issue", t.number, "user", c.Author, "permission", string(perm))
			continue
		}

		result.duplicate = &types.DuplicateRecord{IssueID: t.number, DuplicateOfID: canonical}
		createdAt := c.CreatedAt
		result.targets = append(result.targets, types.TargetAssignment{
			FingerprintID: t.fingerprint,
			IssueID:       canonical,
			EventTime:     &createdAt,
		})
	}
	return result
}

// permissionCache memoizes permission lookups for one sweep. Concurrent
// lookups of the same user share a single tracker call.
type permissionCache struct {
	client tracker.Client
	group  singleflight.Group

	mu    sync.Mutex
	perms map[string]tracker.Permission
}

func newPermissionCache(client tracker.Client) *permissionCache {
	return &permissionCache{client: client, perms: make(map[string]tracker.Permission)}
}

func (c *permissionCache) get(ctx context.Context, user string) (tracker.Permission, error) {
	c.mu.Lock()
	perm, ok := c.perms[user]
	c.mu.Unlock()
	if ok {
		return perm, nil
	}

	v, err, _ := c.group.Do(user, func() (any, error) {
		c.mu.Lock()
		perm, ok := c.perms[user]
		c.mu.Unlock()
		if ok {
			return perm, nil
		}

		perm, err := c.client.GetCommenterPermission(ctx, user)
		if err != nil {
			return tracker.PermissionNone, err
		}
		c.mu.Lock()
		c.perms[user] = perm
		c.mu.Unlock()
		return perm, nil
	})
	if err != nil {
		return tracker.PermissionNone, err
	}
	return v.(tracker.Permission), nil
}
