package types

import (
	"fmt"
	"sort"
	"time"
)

// Fingerprint is the content-derived identity of a normalized failure trace.
// Rows are created on first sighting of a trace and never mutated.
type Fingerprint struct {
	ID    int64    `json:"id"`
	Lines []string `json:"lines"`
}

// Issue is a tracked issue mirrored from the remote tracker.
// ID is the tracker's issue number.
type Issue struct {
	ID            int        `json:"id"`
	Title         string     `json:"title"`
	FingerprintID int64      `json:"fingerprint_id"`
	State         IssueState `json:"state"`
	DuplicateOf   *int       `json:"duplicate_of,omitempty"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if i.ID <= 0 {
		return fmt.Errorf("issue id must be positive (got %d)", i.ID)
	}
	if i.FingerprintID <= 0 {
		return fmt.Errorf("fingerprint_id must be positive (got %d)", i.FingerprintID)
	}
	if !i.State.IsValid() {
		return fmt.Errorf("invalid state: %s", i.State)
	}
	if i.DuplicateOf != nil && *i.DuplicateOf == i.ID {
		return fmt.Errorf("issue #%d cannot be a duplicate of itself", i.ID)
	}
	return nil
}

// IssueState represents the lifecycle state of a tracked issue
type IssueState string

const (
	StateOpen   IssueState = "open"
	StateClosed IssueState = "closed"
)

// IsValid checks if the state value is valid
func (s IssueState) IsValid() bool {
	switch s {
	case StateOpen, StateClosed:
		return true
	}
	return false
}

// ParseIssueState converts a tracker state string into an IssueState.
func ParseIssueState(s string) (IssueState, error) {
	state := IssueState(s)
	if !state.IsValid() {
		return "", fmt.Errorf("unexpected issue state: %q", s)
	}
	return state, nil
}

// TargetAssignment points a fingerprint at its canonical issue.
// EventTime is the time of the comment that produced the assignment; it is nil
// when the assignment has no known event time.
type TargetAssignment struct {
	FingerprintID int64      `json:"fingerprint_id"`
	IssueID       int        `json:"issue_id"`
	EventTime     *time.Time `json:"event_time,omitempty"`
}

// SortAssignments orders assignments for application: those without an event
// time first, then ascending event time. Equal keys keep their input order so
// the later-applied assignment wins a tie.
func SortAssignments(assignments []TargetAssignment) {
	sort.SliceStable(assignments, func(i, j int) bool {
		a, b := assignments[i].EventTime, assignments[j].EventTime
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
}

// DuplicateRecord marks IssueID as a duplicate of DuplicateOfID
type DuplicateRecord struct {
	IssueID       int `json:"issue_id"`
	DuplicateOfID int `json:"duplicate_of_id"`
}

// StateUpdate sets the lifecycle state of one issue
type StateUpdate struct {
	IssueID int        `json:"issue_id"`
	State   IssueState `json:"state"`
}

// CloseableIssue is an open issue whose fingerprint is owned by another issue
type CloseableIssue struct {
	IssueID       int   `json:"issue_id"`
	FingerprintID int64 `json:"fingerprint_id"`
}

// Statistics holds row counts for operator tooling
type Statistics struct {
	Fingerprints      int `json:"fingerprints"`
	OpenIssues        int `json:"open_issues"`
	ClosedIssues      int `json:"closed_issues"`
	DuplicateIssues   int `json:"duplicate_issues"`
	TargetAssignments int `json:"target_assignments"`
	CloseableIssues   int `json:"closeable_issues"`
}
