package types

import (
	"strings"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestIssueValidate(t *testing.T) {
	tests := []struct {
		name     string
		issue    Issue
		errorMsg string
	}{
		{
			name:  "valid open issue",
			issue: Issue{ID: 10, Title: "OOM", FingerprintID: 1, State: StateOpen},
		},
		{
			name:  "valid duplicate",
			issue: Issue{ID: 11, Title: "OOM", FingerprintID: 1, State: StateClosed, DuplicateOf: intPtr(10)},
		},
		{
			name:     "zero id",
			issue:    Issue{ID: 0, FingerprintID: 1, State: StateOpen},
			errorMsg: "issue id must be positive",
		},
		{
			name:     "missing fingerprint",
			issue:    Issue{ID: 3, State: StateOpen},
			errorMsg: "fingerprint_id must be positive",
		},
		{
			name:     "bad state",
			issue:    Issue{ID: 3, FingerprintID: 1, State: "all"},
			errorMsg: "invalid state",
		},
		{
			name:     "self duplicate",
			issue:    Issue{ID: 3, FingerprintID: 1, State: StateOpen, DuplicateOf: intPtr(3)},
			errorMsg: "cannot be a duplicate of itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issue.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestParseIssueState(t *testing.T) {
	for _, s := range []string{"open", "closed"} {
		state, err := ParseIssueState(s)
		if err != nil {
			t.Fatalf("ParseIssueState(%q) failed: %v", s, err)
		}
		if string(state) != s {
			t.Errorf("expected %q, got %q", s, state)
		}
	}
	if _, err := ParseIssueState("all"); err == nil {
		t.Error("expected error for state \"all\"")
	}
}

func TestSortAssignments(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	tests := []struct {
		name  string
		input []TargetAssignment
		want  []int
	}{
		{
			name: "already ordered",
			input: []TargetAssignment{
				{FingerprintID: 1, IssueID: 10, EventTime: &t1},
				{FingerprintID: 1, IssueID: 20, EventTime: &t2},
			},
			want: []int{10, 20},
		},
		{
			name: "reversed",
			input: []TargetAssignment{
				{FingerprintID: 1, IssueID: 20, EventTime: &t2},
				{FingerprintID: 1, IssueID: 10, EventTime: &t1},
			},
			want: []int{10, 20},
		},
		{
			name: "nil times first",
			input: []TargetAssignment{
				{FingerprintID: 1, IssueID: 20, EventTime: &t2},
				{FingerprintID: 1, IssueID: 5},
				{FingerprintID: 1, IssueID: 10, EventTime: &t1},
				{FingerprintID: 1, IssueID: 6},
			},
			want: []int{5, 6, 10, 20},
		},
		{
			name: "ties keep input order",
			input: []TargetAssignment{
				{FingerprintID: 1, IssueID: 7, EventTime: &t1},
				{FingerprintID: 1, IssueID: 3, EventTime: &t1},
			},
			want: []int{7, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SortAssignments(tt.input)
			for i, a := range tt.input {
				if a.IssueID != tt.want[i] {
					t.Fatalf("position %d: expected issue %d, got %d", i, tt.want[i], a.IssueID)
				}
			}
		})
	}
}
