package tracker

import (
	"fmt"

	"github.com/google/go-github/v66/github"
)

// Webhook event types the engine reacts to
const (
	EventIssues       = "issues"
	EventIssueComment = "issue_comment"
)

// Event is a decoded webhook delivery. Issue and Comment are nil for event
// types the engine does not handle.
type Event struct {
	Type    string
	Action  string
	Issue   *Issue
	Comment *Comment
}

// ParseEvent decodes a webhook payload for the given X-GitHub-Event type.
// Unhandled types are returned with only Type set.
func ParseEvent(eventType string, payload []byte) (*Event, error) {
	switch eventType {
	case EventIssues, EventIssueComment:
	default:
		return &Event{Type: eventType}, nil
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s payload: %w", eventType, err)
	}

	switch e := parsed.(type) {
	case *github.IssuesEvent:
		if e.Issue == nil {
			return nil, fmt.Errorf("issues payload has no issue")
		}
		issue := convertIssue(e.Issue)
		return &Event{Type: eventType, Action: e.GetAction(), Issue: &issue}, nil
	case *github.IssueCommentEvent:
		if e.Issue == nil || e.Comment == nil {
			return nil, fmt.Errorf("issue_comment payload has no issue or comment")
		}
		issue := convertIssue(e.Issue)
		comment := convertComment(e.Comment)
		return &Event{Type: eventType, Action: e.GetAction(), Issue: &issue, Comment: &comment}, nil
	default:
		return nil, fmt.Errorf("unexpected payload type %T for %s", parsed, eventType)
	}
}
