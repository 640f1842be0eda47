package deduplication

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcdev/deduper/internal/storage/sqlite"
	"github.com/mcdev/deduper/internal/tracker"
)

const reporter = DefaultReporterLogin

// fakeTracker is an in-memory tracker.Client
type fakeTracker struct {
	mu sync.Mutex

	issues   map[int]*tracker.Issue
	comments map[int][]tracker.Comment
	perms    map[string]tracker.Permission

	listErr     error
	getErr      map[int]error
	commentsErr map[int]error
	closeErr    map[int]error

	posted    map[int][]string
	permCalls map[string]int
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:      make(map[int]*tracker.Issue),
		comments:    make(map[int][]tracker.Comment),
		perms:       make(map[string]tracker.Permission),
		getErr:      make(map[int]error),
		commentsErr: make(map[int]error),
		closeErr:    make(map[int]error),
		posted:      make(map[int][]string),
		permCalls:   make(map[string]int),
	}
}

var _ tracker.Client = (*fakeTracker)(nil)

func (f *fakeTracker) addIssue(issue tracker.Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.State == "" {
		issue.State = "open"
	}
	f.issues[issue.Number] = &issue
}

func (f *fakeTracker) addComment(number int, author, body string, createdAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[number] = append(f.comments[number], tracker.Comment{
		ID:        int64(len(f.comments[number]) + 1),
		Body:      body,
		Author:    author,
		CreatedAt: createdAt,
	})
}

func (f *fakeTracker) issue(number int) tracker.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.issues[number]
}

func (f *fakeTracker) ListIssues(ctx context.Context, state tracker.State) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []tracker.Issue
	for _, issue := range f.issues {
		if state == tracker.StateAll || issue.State == string(state) {
			out = append(out, *issue)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (f *fakeTracker) GetIssue(ctx context.Context, number int) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[number]; err != nil {
		return nil, &tracker.RemoteError{Op: "get issue", Number: number, Err: err}
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, &tracker.RemoteError{Op: "get issue", Number: number, Err: fmt.Errorf("not found")}
	}
	cp := *issue
	return &cp, nil
}

func (f *fakeTracker) ListComments(ctx context.Context, number int) ([]tracker.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.commentsErr[number]; err != nil {
		return nil, &tracker.RemoteError{Op: "list comments", Number: number, Err: err}
	}
	return append([]tracker.Comment(nil), f.comments[number]...), nil
}

func (f *fakeTracker) CommentOnIssue(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted[number] = append(f.posted[number], body)
	return nil
}

func (f *fakeTracker) CloseIssue(ctx context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.closeErr[number]; err != nil {
		return &tracker.RemoteError{Op: "close issue", Number: number, Err: err}
	}
	if issue, ok := f.issues[number]; ok {
		issue.State = "closed"
	}
	return nil
}

func (f *fakeTracker) UpdateTitle(ctx context.Context, number int, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue, ok := f.issues[number]; ok {
		issue.Title = title
	}
	return nil
}

func (f *fakeTracker) GetCommenterPermission(ctx context.Context, user string) (tracker.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permCalls[user]++
	if perm, ok := f.perms[user]; ok {
		return perm, nil
	}
	return tracker.PermissionNone, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "deduper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine(t *testing.T) (*Engine, *sqlite.SQLiteStorage, *fakeTracker) {
	t.Helper()
	store := newTestStore(t)
	fake := newFakeTracker()
	engine, err := New(store, fake, DefaultConfig(), discardLogger())
	require.NoError(t, err)
	return engine, store, fake
}

// crashBody builds a reporter issue body whose trace has the given frames
func crashBody(message string, frames ...string) string {
	body := "An error occurred\n```\n" + message + "\n"
	for _, f := range frames {
		body += "\tat com.demonwav.mcdev." + f + "\n"
	}
	return body + "```\n"
}
