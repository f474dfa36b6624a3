// Package workflows composes git, tracker, and LLM primitives into the
// three issue-driven orchestrations: create-plan, implement, create-pr.
package workflows

import (
	"context"
	"errors"
	"log/slog"

	"github.com/papapumpkin/pulsar/internal/claude"
	"github.com/papapumpkin/pulsar/internal/compactdiff"
	"github.com/papapumpkin/pulsar/internal/gitx"
	"github.com/papapumpkin/pulsar/internal/tracker"
	"github.com/papapumpkin/pulsar/internal/transition"
)

// ErrPrecondition marks a failed prerequisite check. CLI wrappers map
// it to exit code 1.
var ErrPrecondition = errors.New("precondition failed")

// LLM is the invoker surface the orchestrators need.
type LLM interface {
	Invoke(ctx context.Context, prompt, resumeSession string) (*claude.InvocationResult, error)
}

// Tracker is the tracker surface the orchestrators need.
type Tracker interface {
	GetIssue(ctx context.Context, number int) (tracker.Issue, error)
	PullRequests(ctx context.Context, state string) ([]tracker.PullRequest, error)
	CreatePullRequest(ctx context.Context, title, body, head, base string) (tracker.PullRequest, error)
}

// Orchestrator bundles the shared dependencies. One Orchestrator serves
// one repository working copy.
type Orchestrator struct {
	Repo    gitx.Repo
	Tracker Tracker
	LLM     LLM

	// Mover advances workflow labels; label failures never fail a
	// workflow. Nil disables transitions (tests).
	Mover *transition.Mover

	// Renderer compacts branch diffs for PR summaries.
	Renderer *compactdiff.Renderer

	// DiffExcludes are pathspecs stripped from branch diffs.
	DiffExcludes []string

	// SessionDir is the responses directory used for session resume.
	SessionDir string

	// MaxIterations bounds the implement loop.
	MaxIterations int

	log *slog.Logger
}

// NewOrchestrator builds an Orchestrator with defaults applied.
func NewOrchestrator(repo gitx.Repo, trk Tracker, llm LLM) *Orchestrator {
	return &Orchestrator{
		Repo:          repo,
		Tracker:       trk,
		LLM:           llm,
		Renderer:      compactdiff.NewRenderer(),
		MaxIterations: 10,
		log:           slog.Default(),
	}
}

// Params names the issue an orchestration serves and the label to apply
// when it succeeds.
type Params struct {
	IssueNumber int
	Branch      string

	// BusyID is the internal id of the in-progress label the dispatcher
	// applied before launch; DoneID is the id to advance to on success.
	// Empty DoneID skips the final transition.
	BusyID string
	DoneID string
}

// advance moves the workflow label after a successful run. The issue
// number is re-derived from the working branch so the transition's
// branch-linkage gate applies: a branch that ceased to be linked to its
// issue must not advance that issue. Failures are logged and swallowed:
// workflow success is never affected by a label update failure.
func (o *Orchestrator) advance(ctx context.Context, p Params) {
	branch := p.Branch
	if current, _ := o.Repo.CurrentBranch(ctx); current != "" {
		branch = current
	}
	o.move(ctx, transition.Request{
		FromID: p.BusyID,
		ToID:   p.DoneID,
		Branch: branch,
	}, p.IssueNumber)
}

// advancePreverified moves the workflow label using the issue number
// directly, skipping the linkage gate. Only create-pr uses this: the
// tracker momentarily clears branch linkage when a PR opens.
func (o *Orchestrator) advancePreverified(ctx context.Context, p Params) {
	o.move(ctx, transition.Request{
		FromID:      p.BusyID,
		ToID:        p.DoneID,
		IssueNumber: p.IssueNumber,
	}, p.IssueNumber)
}

func (o *Orchestrator) move(ctx context.Context, req transition.Request, issue int) {
	if o.Mover == nil || req.ToID == "" {
		return
	}
	if err := o.Mover.Move(ctx, req); err != nil {
		o.log.Warn("label advance failed", "issue", issue, "error", err)
	}
}

// DetectBaseBranch resolves the branch a PR should target. Priority
// order, first hit wins:
//
//  1. the issue body's "### Base Branch" section
//  2. the base of the open pull request whose head is the current branch
//  3. the merge-base heuristic over local branches
//  4. the repository default branch
func (o *Orchestrator) DetectBaseBranch(ctx context.Context, issue tracker.Issue) (string, error) {
	base, err := tracker.ParseBaseBranch(issue.Body)
	if err != nil {
		o.log.Warn("malformed base branch section", "issue", issue.Number, "error", err)
	} else if base != "" {
		return base, nil
	}

	current, _ := o.Repo.CurrentBranch(ctx)
	if current != "" {
		prs, err := o.Tracker.PullRequests(ctx, "open")
		if err != nil {
			o.log.Warn("pull request lookup failed", "issue", issue.Number, "error", err)
		} else {
			for _, pr := range prs {
				if pr.HeadBranch == current {
					return pr.BaseBranch, nil
				}
			}
		}
		if parent := o.Repo.ParentBranch(ctx, current); parent != "" {
			return parent, nil
		}
	}

	if def := o.Repo.DefaultBranch(ctx); def != "" {
		return def, nil
	}
	return "", errors.New("base branch unresolvable")
}

// resume returns the latest recorded session id, or "" when none exists
// or the directory is unreadable.
func (o *Orchestrator) resume() string {
	if o.SessionDir == "" {
		return ""
	}
	id, err := claude.FindLatestSession(o.SessionDir)
	if err != nil {
		o.log.Warn("session discovery failed", "error", err)
		return ""
	}
	return id
}
