package workflows

import (
	"context"
	"fmt"
)

// CreatePlan runs the planning workflow: one LLM turn against the
// default branch, then a commit of whatever plan files it produced.
func (o *Orchestrator) CreatePlan(ctx context.Context, p Params) error {
	issue, err := o.Tracker.GetIssue(ctx, p.IssueNumber)
	if err != nil {
		return fmt.Errorf("fetch issue #%d: %w", p.IssueNumber, err)
	}
	if !issue.Exists() {
		return fmt.Errorf("issue #%d not found", p.IssueNumber)
	}

	res, err := o.LLM.Invoke(ctx, planPrompt(issue), "")
	if err != nil {
		return fmt.Errorf("plan issue #%d: %w", p.IssueNumber, err)
	}
	o.log.Info("plan produced", "issue", p.IssueNumber, "session", res.SessionID, "cost_usd", res.CostUSD)

	commit := o.Repo.CommitAll(ctx, fmt.Sprintf("Add implementation plan for #%d", p.IssueNumber))
	if !commit.OK {
		return fmt.Errorf("commit plan for #%d: %w", p.IssueNumber, commit.Err)
	}
	if commit.ShortSHA != "" {
		o.log.Info("plan committed", "issue", p.IssueNumber, "sha", commit.ShortSHA)
		branch, _ := o.Repo.CurrentBranch(ctx)
		if branch != "" {
			if push := o.Repo.Push(ctx, branch, false); !push.OK {
				return fmt.Errorf("push plan for #%d: %w", p.IssueNumber, push.Err)
			}
		}
	}

	o.advance(ctx, p)
	return nil
}
