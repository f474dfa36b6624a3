package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/go-github/v68/github"
)

// ErrAuth marks authentication/authorization failures. These are never
// swallowed: there is nothing the coordinator can do without credentials.
var ErrAuth = errors.New("tracker: authentication failed")

// API is the tracker surface the coordinator consumes. *Client implements
// it; tests substitute fakes.
type API interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error)
	GetIssue(ctx context.Context, number int) (Issue, error)
	ListIssues(ctx context.Context, state string, includePRs bool, since *time.Time) ([]Issue, error)
	AddLabels(ctx context.Context, number int, names ...string) (Issue, error)
	RemoveLabels(ctx context.Context, number int, names ...string) (Issue, error)
	SetLabels(ctx context.Context, number int, names ...string) (Issue, error)
	AddComment(ctx context.Context, number int, body string) (Comment, error)
	GetComments(ctx context.Context, number int) ([]Comment, error)
	EditComment(ctx context.Context, commentID int64, body string) error
	DeleteComment(ctx context.Context, commentID int64) error
	GetEvents(ctx context.Context, number int, filterKind string) ([]Event, error)
	LinkedBranches(ctx context.Context, number int) (map[string]bool, error)
	PullRequests(ctx context.Context, state string) ([]PullRequest, error)
}

// Client is a GitHub-backed API implementation bound to one repository
// for the process lifetime.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
	token string
}

// NewClient builds a Client for owner/repo authenticated with token.
// An empty token is fatal at a higher layer; here it simply produces an
// unauthenticated client that will fail loudly on first use.
func NewClient(owner, repo, token string) *Client {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, owner: owner, repo: repo, token: token}
}

// handle classifies an API error. Auth errors re-raise wrapped in ErrAuth;
// not-found collapses to the empty datum (nil error); everything else is
// surfaced for the caller to log, with rate limits called out.
func (c *Client) handle(op string, resp *github.Response, err error) error {
	if err == nil {
		return nil
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		slog.Warn("tracker rate limited", "op", op, "reset", rateErr.Rate.Reset.Time)
		return fmt.Errorf("tracker: %s: rate limited: %w", op, err)
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: %v", ErrAuth, op, err)
		case http.StatusNotFound:
			slog.Debug("tracker not found", "op", op)
			return nil
		}
	}
	return fmt.Errorf("tracker: %s: %w", op, err)
}

func fromGithubIssue(gi *github.Issue) Issue {
	if gi == nil {
		return Issue{}
	}
	out := Issue{
		Number: gi.GetNumber(),
		State:  gi.GetState(),
		Title:  gi.GetTitle(),
		Body:   gi.GetBody(),
		Author: gi.GetUser().GetLogin(),
		URL:    gi.GetHTMLURL(),
		Locked: gi.GetLocked(),
	}
	out.CreatedAt = gi.GetCreatedAt().Time
	out.UpdatedAt = gi.GetUpdatedAt().Time
	for _, l := range gi.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	for _, a := range gi.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	return out
}

// CreateIssue opens a new issue with the given labels.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (Issue, error) {
	req := &github.IssueRequest{Title: &title, Body: &body}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	gi, resp, err := c.gh.Issues.Create(ctx, c.owner, c.repo, req)
	if herr := c.handle("create issue", resp, err); herr != nil {
		return Issue{}, herr
	}
	return fromGithubIssue(gi), nil
}

// GetIssue fetches one issue. A missing issue comes back as the empty
// datum with a nil error.
func (c *Client) GetIssue(ctx context.Context, number int) (Issue, error) {
	gi, resp, err := c.gh.Issues.Get(ctx, c.owner, c.repo, number)
	if herr := c.handle(fmt.Sprintf("get issue #%d", number), resp, err); herr != nil {
		return Issue{}, herr
	}
	if err != nil {
		return Issue{}, nil // handled not-found
	}
	return fromGithubIssue(gi), nil
}

// ListIssues lists issues with transparent pagination. since, when
// non-nil, is passed through to the tracker bit-exactly.
func (c *Client) ListIssues(ctx context.Context, state string, includePRs bool, since *time.Time) ([]Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       state,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if since != nil {
		opts.Since = since.UTC()
	}
	var out []Issue
	for {
		page, resp, err := c.gh.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if herr := c.handle("list issues", resp, err); herr != nil {
			return nil, herr
		}
		if err != nil {
			return out, nil
		}
		for _, gi := range page {
			if !includePRs && gi.IsPullRequest() {
				continue
			}
			out = append(out, fromGithubIssue(gi))
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// AddLabels adds labels and returns a fresh Issue reflecting the
// committed state.
func (c *Client) AddLabels(ctx context.Context, number int, names ...string) (Issue, error) {
	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, number, names)
	if herr := c.handle(fmt.Sprintf("add labels #%d", number), resp, err); herr != nil {
		return Issue{}, herr
	}
	return c.GetIssue(ctx, number)
}

// RemoveLabels removes each named label, then returns a fresh Issue.
// Removing an already-absent label is not an error.
func (c *Client) RemoveLabels(ctx context.Context, number int, names ...string) (Issue, error) {
	for _, name := range names {
		resp, err := c.gh.Issues.RemoveLabelForIssue(ctx, c.owner, c.repo, number, name)
		if herr := c.handle(fmt.Sprintf("remove label %q #%d", name, number), resp, err); herr != nil {
			return Issue{}, herr
		}
	}
	return c.GetIssue(ctx, number)
}

// SetLabels replaces the issue's label set in a single call and returns a
// fresh Issue.
func (c *Client) SetLabels(ctx context.Context, number int, names ...string) (Issue, error) {
	_, resp, err := c.gh.Issues.ReplaceLabelsForIssue(ctx, c.owner, c.repo, number, names)
	if herr := c.handle(fmt.Sprintf("set labels #%d", number), resp, err); herr != nil {
		return Issue{}, herr
	}
	return c.GetIssue(ctx, number)
}

// AddComment posts a comment on the issue.
func (c *Client) AddComment(ctx context.Context, number int, body string) (Comment, error) {
	gc, resp, err := c.gh.Issues.CreateComment(ctx, c.owner, c.repo, number, &github.IssueComment{Body: &body})
	if herr := c.handle(fmt.Sprintf("add comment #%d", number), resp, err); herr != nil {
		return Comment{}, herr
	}
	if gc == nil {
		return Comment{}, nil
	}
	return Comment{ID: gc.GetID(), Body: gc.GetBody(), Author: gc.GetUser().GetLogin(), CreatedAt: gc.GetCreatedAt().Time}, nil
}

// GetComments lists all comments on the issue, paginated.
func (c *Client) GetComments(ctx context.Context, number int) ([]Comment, error) {
	opts := &github.IssueListCommentsOptions{ListOptions: github.ListOptions{PerPage: 100}}
	var out []Comment
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, c.owner, c.repo, number, opts)
		if herr := c.handle(fmt.Sprintf("get comments #%d", number), resp, err); herr != nil {
			return nil, herr
		}
		if err != nil {
			return out, nil
		}
		for _, gc := range page {
			out = append(out, Comment{ID: gc.GetID(), Body: gc.GetBody(), Author: gc.GetUser().GetLogin(), CreatedAt: gc.GetCreatedAt().Time})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// EditComment replaces a comment's body.
func (c *Client) EditComment(ctx context.Context, commentID int64, body string) error {
	_, resp, err := c.gh.Issues.EditComment(ctx, c.owner, c.repo, commentID, &github.IssueComment{Body: &body})
	return c.handle(fmt.Sprintf("edit comment %d", commentID), resp, err)
}

// DeleteComment deletes a comment.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	resp, err := c.gh.Issues.DeleteComment(ctx, c.owner, c.repo, commentID)
	return c.handle(fmt.Sprintf("delete comment %d", commentID), resp, err)
}

// GetEvents returns the issue's timeline events in ascending creation
// order. filterKind, when non-empty, keeps only events of that kind.
func (c *Client) GetEvents(ctx context.Context, number int, filterKind string) ([]Event, error) {
	opts := &github.ListOptions{PerPage: 100}
	var out []Event
	for {
		page, resp, err := c.gh.Issues.ListIssueTimeline(ctx, c.owner, c.repo, number, opts)
		if herr := c.handle(fmt.Sprintf("get events #%d", number), resp, err); herr != nil {
			return nil, herr
		}
		if err != nil {
			return out, nil
		}
		for _, te := range page {
			ev := Event{
				Kind:      te.GetEvent(),
				CreatedAt: te.GetCreatedAt().Time,
				Actor:     te.GetActor().GetLogin(),
			}
			if te.Label != nil {
				ev.LabelName = te.Label.GetName()
			}
			if filterKind != "" && ev.Kind != filterKind {
				continue
			}
			out = append(out, ev)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PullRequests lists pull requests in the given state with their head and
// base branch names.
func (c *Client) PullRequests(ctx context.Context, state string) ([]PullRequest, error) {
	opts := &github.PullRequestListOptions{State: state, ListOptions: github.ListOptions{PerPage: 100}}
	var out []PullRequest
	for {
		page, resp, err := c.gh.PullRequests.List(ctx, c.owner, c.repo, opts)
		if herr := c.handle("list pull requests", resp, err); herr != nil {
			return nil, herr
		}
		if err != nil {
			return out, nil
		}
		for _, pr := range page {
			out = append(out, PullRequest{
				Number:     pr.GetNumber(),
				State:      pr.GetState(),
				HeadBranch: pr.GetHead().GetRef(),
				BaseBranch: pr.GetBase().GetRef(),
			})
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// CreatePullRequest opens a pull request from head into base.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head, base string) (PullRequest, error) {
	pr, resp, err := c.gh.PullRequests.Create(ctx, c.owner, c.repo, &github.NewPullRequest{
		Title: &title,
		Body:  &body,
		Head:  &head,
		Base:  &base,
	})
	if herr := c.handle("create pull request", resp, err); herr != nil {
		return PullRequest{}, herr
	}
	if pr == nil {
		return PullRequest{}, nil
	}
	return PullRequest{
		Number:     pr.GetNumber(),
		State:      pr.GetState(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
	}, nil
}

// EnsureLabel creates or updates a repository label definition so it
// matches the given name, color, and description.
func (c *Client) EnsureLabel(ctx context.Context, name, color, description string) error {
	existing, resp, err := c.gh.Issues.GetLabel(ctx, c.owner, c.repo, name)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		_, resp, err = c.gh.Issues.CreateLabel(ctx, c.owner, c.repo, &github.Label{
			Name:        &name,
			Color:       &color,
			Description: &description,
		})
		return c.handle(fmt.Sprintf("create label %q", name), resp, err)
	}
	if herr := c.handle(fmt.Sprintf("get label %q", name), resp, err); herr != nil {
		return herr
	}
	if existing == nil {
		return nil
	}
	if existing.GetColor() == color && existing.GetDescription() == description {
		return nil
	}
	existing.Color = &color
	existing.Description = &description
	_, resp, err = c.gh.Issues.EditLabel(ctx, c.owner, c.repo, name, existing)
	return c.handle(fmt.Sprintf("update label %q", name), resp, err)
}
