package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/papapumpkin/pulsar/internal/tracker"
)

// CreatePR opens a pull request for a finished issue branch: prerequisite
// checks, an LLM-generated title and body from the compact branch diff,
// push, PR creation, and pr_info cleanup.
func (o *Orchestrator) CreatePR(ctx context.Context, p Params) error {
	issue, err := o.Tracker.GetIssue(ctx, p.IssueNumber)
	if err != nil {
		return fmt.Errorf("fetch issue #%d: %w", p.IssueNumber, err)
	}
	if !issue.Exists() {
		return fmt.Errorf("issue #%d not found", p.IssueNumber)
	}

	branch, base, err := o.checkPrerequisites(ctx, issue)
	if err != nil {
		return err
	}

	title, body, err := o.generatePRText(ctx, base)
	if err != nil {
		return err
	}

	if push := o.Repo.Push(ctx, branch, false); !push.OK {
		return fmt.Errorf("push branch %q: %w", branch, push.Err)
	}

	pr, err := o.Tracker.CreatePullRequest(ctx, title, body, branch, base)
	if err != nil {
		return fmt.Errorf("open pull request for #%d: %w", p.IssueNumber, err)
	}
	o.log.Info("pull request opened", "issue", p.IssueNumber, "pr", pr.Number, "base", base)

	o.cleanup(ctx, branch)

	// Opening a PR momentarily clears branch linkage on the tracker
	// side, so the final transition runs with a preverified number.
	o.advancePreverified(ctx, Params{IssueNumber: p.IssueNumber, BusyID: p.BusyID, DoneID: p.DoneID})
	return nil
}

// checkPrerequisites validates the working copy before any mutation:
// clean tree, no open tasks, a real branch distinct from its parent,
// and a resolvable base branch.
func (o *Orchestrator) checkPrerequisites(ctx context.Context, issue tracker.Issue) (branch, base string, err error) {
	if !o.Repo.IsClean(ctx) {
		return "", "", fmt.Errorf("%w: working tree is dirty", ErrPrecondition)
	}

	open, err := ReadIncompleteTasks(o.Repo.Dir)
	if err != nil {
		return "", "", err
	}
	if open > 0 {
		return "", "", fmt.Errorf("%w: %d planned tasks still open", ErrPrecondition, open)
	}

	branch, err = o.Repo.CurrentBranch(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: resolve current branch: %v", ErrPrecondition, err)
	}
	if branch == "" {
		return "", "", fmt.Errorf("%w: detached HEAD", ErrPrecondition)
	}

	base, err = o.DetectBaseBranch(ctx, issue)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if base == branch {
		return "", "", fmt.Errorf("%w: current branch %q is the base branch", ErrPrecondition, branch)
	}
	return branch, base, nil
}

// generatePRText feeds the compacted branch diff to the LLM and parses
// the reply into a title and body.
func (o *Orchestrator) generatePRText(ctx context.Context, base string) (title, body string, err error) {
	plain, err := o.Repo.BranchDiff(ctx, base, o.DiffExcludes, false)
	if err != nil {
		return "", "", fmt.Errorf("branch diff against %q: %w", base, err)
	}
	ansi, err := o.Repo.BranchDiff(ctx, base, o.DiffExcludes, true)
	if err != nil {
		return "", "", fmt.Errorf("colored branch diff against %q: %w", base, err)
	}
	compacted := o.Renderer.Compact(plain, ansi)

	res, err := o.LLM.Invoke(ctx, prSummaryPrompt(compacted), "")
	if err != nil {
		return "", "", fmt.Errorf("generate pull request text: %w", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", "", fmt.Errorf("generate pull request text: empty response")
	}
	title, body = ParsePRText(res.Text)
	return title, body, nil
}

// cleanup removes the plan scaffolding and commits the result. Failures
// here downgrade to warnings; the PR is already open.
func (o *Orchestrator) cleanup(ctx context.Context, branch string) {
	if err := RemoveStepsDir(o.Repo.Dir); err != nil {
		o.log.Warn("cleanup: steps dir", "error", err)
	}
	if err := TruncateTaskTracker(o.Repo.Dir); err != nil {
		o.log.Warn("cleanup: task tracker", "error", err)
	}

	commit := o.Repo.CommitAll(ctx, "Clean up plan scaffolding")
	if !commit.OK {
		o.log.Warn("cleanup: commit", "error", commit.Err)
		return
	}
	if commit.ShortSHA == "" {
		return // nothing to clean up
	}
	if push := o.Repo.Push(ctx, branch, false); !push.OK {
		o.log.Warn("cleanup: push", "error", push.Err)
	}
}
