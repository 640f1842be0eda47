// Package tracker is the remote issue tracker client used by the
// deduplication engine. GitHubClient talks to the GitHub REST API; AppClient
// mints the installation tokens that authorize it.
package tracker

import (
	"context"
	"fmt"
	"time"
)

// State filters issue listings
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
	StateAll    State = "all"
)

// Issue is the subset of a remote issue the engine reads
type Issue struct {
	Number      int
	Title       string
	Body        string
	Author      string
	State       string
	PullRequest bool
}

// Comment is an issue comment
type Comment struct {
	ID        int64
	Body      string
	Author    string
	CreatedAt time.Time
	URL       string
}

// Permission is a user's access level on the repository
type Permission string

const (
	PermissionAdmin    Permission = "admin"
	PermissionMaintain Permission = "maintain"
	PermissionWrite    Permission = "write"
	PermissionTriage   Permission = "triage"
	PermissionRead     Permission = "read"
	PermissionNone     Permission = "none"
)

// CanMarkDuplicate reports whether the level may mark issues as duplicates
func (p Permission) CanMarkDuplicate() bool {
	switch p {
	case PermissionAdmin, PermissionMaintain, PermissionWrite:
		return true
	}
	return false
}

// Client is the remote tracker as seen by the engine
type Client interface {
	ListIssues(ctx context.Context, state State) ([]Issue, error)
	GetIssue(ctx context.Context, number int) (*Issue, error)
	ListComments(ctx context.Context, number int) ([]Comment, error)
	CommentOnIssue(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
	UpdateTitle(ctx context.Context, number int, title string) error
	GetCommenterPermission(ctx context.Context, user string) (Permission, error)
}

// RemoteError is a failed tracker call. Number is 0 for calls not about a
// single issue.
type RemoteError struct {
	Op     string
	Number int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Number > 0 {
		return fmt.Sprintf("tracker %s #%d: %v", e.Op, e.Number, e.Err)
	}
	return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
