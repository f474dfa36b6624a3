// Package transition advances an issue's workflow label from one status
// to the next. Transitions are advisory: a failure is logged, never
// fatal to the caller's run.
package transition

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/papapumpkin/pulsar/internal/gitx"
	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/retry"
	"github.com/papapumpkin/pulsar/internal/tracker"
)

// Mover swaps workflow labels on tracker issues.
type Mover struct {
	Tracker tracker.API
	Lookups *labelcfg.Lookups
	log     *slog.Logger
}

// NewMover builds a Mover over the given tracker and label lookups.
func NewMover(api tracker.API, lk *labelcfg.Lookups) *Mover {
	return &Mover{Tracker: api, Lookups: lk, log: slog.Default()}
}

// Request names one label transition. Branch is consulted only when
// IssueNumber is zero: the issue number is then extracted from the
// branch name prefix and the branch must be linked to that issue.
type Request struct {
	FromID      string
	ToID        string
	Branch      string
	IssueNumber int
}

// Move resolves the issue for req and replaces its current workflow
// label with the target status. The returned error describes why the
// transition was skipped or failed; callers log it and continue.
func (m *Mover) Move(ctx context.Context, req Request) error {
	fromName, ok := m.Lookups.IDToName[req.FromID]
	if !ok {
		return fmt.Errorf("unknown source label id %q", req.FromID)
	}
	toName, ok := m.Lookups.IDToName[req.ToID]
	if !ok {
		return fmt.Errorf("unknown target label id %q", req.ToID)
	}

	number := req.IssueNumber
	preverified := number > 0
	if !preverified {
		number = gitx.ExtractIssueNumber(req.Branch)
		if number == 0 {
			return fmt.Errorf("branch %q carries no issue number prefix", req.Branch)
		}
		linked, err := m.Tracker.LinkedBranches(ctx, number)
		if err != nil {
			return fmt.Errorf("check linked branches for #%d: %w", number, err)
		}
		if !linked[req.Branch] {
			return fmt.Errorf("branch %q is not linked to issue #%d", req.Branch, number)
		}
	}

	issue, err := m.Tracker.GetIssue(ctx, number)
	if err != nil {
		return fmt.Errorf("fetch issue #%d: %w", number, err)
	}
	if !issue.Exists() {
		return fmt.Errorf("issue #%d not found", number)
	}

	// Already in the target state with the source gone: nothing to do.
	if issue.HasLabel(toName) && !issue.HasLabel(fromName) {
		m.log.Debug("issue already transitioned", "issue", number, "label", toName)
		return nil
	}

	// Keep every non-workflow label, drop any workflow label, and set
	// the target. One SetLabels call so the tracker sees an atomic swap.
	var next []string
	for _, name := range issue.Labels {
		if m.Lookups.WorkflowNames[name] {
			continue
		}
		next = append(next, name)
	}
	next = append(next, toName)

	// The swap produces the same label set every time, so retrying a
	// flaky tracker call is safe.
	err = retry.Do(ctx, 3, time.Second, func() error {
		_, serr := m.Tracker.SetLabels(ctx, number, next...)
		return serr
	})
	if err != nil {
		return fmt.Errorf("set labels on #%d: %w", number, err)
	}
	m.log.Info("workflow label advanced", "issue", number, "from", fromName, "to", toName)
	return nil
}
