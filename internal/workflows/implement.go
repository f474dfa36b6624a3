package workflows

import (
	"context"
	"fmt"
)

// Implement runs the implementation loop on a from_issue branch: each
// iteration asks the LLM for one task, commits any changes, and stops
// when the task tracker shows nothing left. The label advances only
// after a clean exit.
func (o *Orchestrator) Implement(ctx context.Context, p Params) error {
	issue, err := o.Tracker.GetIssue(ctx, p.IssueNumber)
	if err != nil {
		return fmt.Errorf("fetch issue #%d: %w", p.IssueNumber, err)
	}
	if !issue.Exists() {
		return fmt.Errorf("issue #%d not found", p.IssueNumber)
	}

	remaining, err := ReadIncompleteTasks(o.Repo.Dir)
	if err != nil {
		return err
	}
	if remaining == 0 {
		o.log.Info("no open tasks", "issue", p.IssueNumber)
		o.advance(ctx, p)
		return nil
	}

	for i := 0; i < o.MaxIterations; i++ {
		res, err := o.LLM.Invoke(ctx, implementPrompt(issue), o.resume())
		if err != nil {
			return fmt.Errorf("implement issue #%d (iteration %d): %w", p.IssueNumber, i+1, err)
		}
		o.log.Info("implementation turn complete",
			"issue", p.IssueNumber, "iteration", i+1, "session", res.SessionID, "cost_usd", res.CostUSD)

		commit := o.Repo.CommitAll(ctx, fmt.Sprintf("Implement task for #%d", p.IssueNumber))
		if !commit.OK {
			return fmt.Errorf("commit iteration %d for #%d: %w", i+1, p.IssueNumber, commit.Err)
		}

		remaining, err = ReadIncompleteTasks(o.Repo.Dir)
		if err != nil {
			return err
		}
		if remaining == 0 {
			break
		}
	}
	if remaining > 0 {
		return fmt.Errorf("issue #%d: %d tasks still open after %d iterations", p.IssueNumber, remaining, o.MaxIterations)
	}

	if push := o.Repo.Push(ctx, p.Branch, false); !push.OK {
		return fmt.Errorf("push branch %q for #%d: %w", p.Branch, p.IssueNumber, push.Err)
	}

	o.advance(ctx, p)
	return nil
}
