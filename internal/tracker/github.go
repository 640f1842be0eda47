package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/time/rate"
)

const pageSize = 100

// GitHubConfig identifies the repository and API endpoint
type GitHubConfig struct {
	Owner string
	Repo  string

	// BaseURL overrides the REST endpoint, e.g. for GitHub Enterprise
	BaseURL string

	// RequestsPerSecond throttles outbound calls. 0 disables throttling.
	RequestsPerSecond float64
}

// GitHubClient implements Client against the GitHub REST API
type GitHubClient struct {
	gh      *github.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ Client = (*GitHubClient)(nil)

// NewGitHubClient creates a client. httpClient carries authorization,
// normally through auth.Transport.
func NewGitHubClient(httpClient *http.Client, cfg GitHubConfig, logger *slog.Logger) (*GitHubClient, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	gh := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := parseBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		gh.BaseURL = base
	}

	return &GitHubClient{
		gh:      gh,
		owner:   cfg.Owner,
		repo:    cfg.Repo,
		limiter: newLimiter(cfg.RequestsPerSecond),
		logger:  logger,
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker base URL %q: %w", raw, err)
	}
	return u, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *GitHubClient) wait(ctx context.Context, op string, number int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &RemoteError{Op: op, Number: number, Err: err}
	}
	return nil
}

// ListIssues returns every issue in the given state, excluding pull requests
func (c *GitHubClient) ListIssues(ctx context.Context, state State) ([]Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       string(state),
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var result []Issue
	for {
		if err := c.wait(ctx, "list issues", 0); err != nil {
			return nil, err
		}
		page, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, &RemoteError{Op: "list issues", Err: err}
		}
		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			result = append(result, convertIssue(issue))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.logger.Debug("listed issues", "state", state, "count", len(result))
	return result, nil
}

// GetIssue fetches a single issue
func (c *GitHubClient) GetIssue(ctx context.Context, number int) (*Issue, error) {
	if err := c.wait(ctx, "get issue", number); err != nil {
		return nil, err
	}
	issue, _, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if err != nil {
		return nil, &RemoteError{Op: "get issue", Number: number, Err: err}
	}
	converted := convertIssue(issue)
	return &converted, nil
}

// ListComments returns all comments on an issue in creation order
func (c *GitHubClient) ListComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: pageSize},
	}

	var result []Comment
	for {
		if err := c.wait(ctx, "list comments", number); err != nil {
			return nil, err
		}
		page, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if err != nil {
			return nil, &RemoteError{Op: "list comments", Number: number, Err: err}
		}
		for _, comment := range page {
			result = append(result, convertComment(comment))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return result, nil
}

// CommentOnIssue posts a comment
func (c *GitHubClient) CommentOnIssue(ctx context.Context, number int, body string) error {
	if err := c.wait(ctx, "comment", number); err != nil {
		return err
	}
	_, _, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{Body: github.String(body)})
	if err != nil {
		return &RemoteError{Op: "comment", Number: number, Err: err}
	}
	return nil
}

// CloseIssue sets the issue state to closed
func (c *GitHubClient) CloseIssue(ctx context.Context, number int) error {
	if err := c.wait(ctx, "close", number); err != nil {
		return err
	}
	_, _, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, &github.IssueRequest{State: github.String("closed")})
	if err != nil {
		return &RemoteError{Op: "close", Number: number, Err: err}
	}
	return nil
}

// UpdateTitle renames an issue
func (c *GitHubClient) UpdateTitle(ctx context.Context, number int, title string) error {
	if err := c.wait(ctx, "update title", number); err != nil {
		return err
	}
	_, _, err := c.gh.Issues.Edit(ctx, c.owner, c.repo, number, &github.IssueRequest{Title: github.String(title)})
	if err != nil {
		return &RemoteError{Op: "update title", Number: number, Err: err}
	}
	return nil
}

// GetCommenterPermission returns user's permission level on the repository
func (c *GitHubClient) GetCommenterPermission(ctx context.Context, user string) (Permission, error) {
	if err := c.wait(ctx, "get permission", 0); err != nil {
		return PermissionNone, err
	}
	level, _, err := c.gh.Repositories.GetPermissionLevel(ctx, c.owner, c.repo, user)
	if err != nil {
		return PermissionNone, &RemoteError{Op: "get permission for " + user, Err: err}
	}
	return Permission(level.GetPermission()), nil
}

func convertIssue(issue *github.Issue) Issue {
	return Issue{
		Number:      issue.GetNumber(),
		Title:       issue.GetTitle(),
		Body:        issue.GetBody(),
		Author:      issue.GetUser().GetLogin(),
		State:       issue.GetState(),
		PullRequest: issue.IsPullRequest(),
	}
}

func convertComment(comment *github.IssueComment) Comment {
	return Comment{
		ID:        comment.GetID(),
		Body:      comment.GetBody(),
		Author:    comment.GetUser().GetLogin(),
		CreatedAt: comment.GetCreatedAt().Time,
		URL:       comment.GetHTMLURL(),
	}
}
