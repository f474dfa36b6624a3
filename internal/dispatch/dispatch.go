// Package dispatch drives the tick loop: classify cached issues by
// their workflow label and launch the matching orchestrator.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papapumpkin/pulsar/internal/cache"
	"github.com/papapumpkin/pulsar/internal/gitx"
	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/tracker"
	"github.com/papapumpkin/pulsar/internal/transition"
	"github.com/papapumpkin/pulsar/internal/workflows"
)

// Launcher runs one workflow orchestration. Split out so ticks can be
// tested without git or an LLM.
type Launcher func(ctx context.Context, kind labelcfg.WorkflowKind, p workflows.Params) error

// Dispatcher holds one repository's tick dependencies.
type Dispatcher struct {
	Repo         gitx.Repo
	RepoFullName string
	Tracker      tracker.API
	Cache        *cache.Store
	Lookups      *labelcfg.Lookups
	Workflows    labelcfg.WorkflowMap
	Mover        *transition.Mover

	// CreatedID is the internal id applied to uninitialized issues.
	CreatedID string

	// DryRun logs every decision without mutating tracker, cache, or
	// working copy.
	DryRun bool

	// Launch runs the selected orchestrator. Defaults via
	// NewDispatcher to the workflows package.
	Launch Launcher

	log *slog.Logger
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.log == nil {
		return slog.Default()
	}
	return d.log
}

// NewDispatcher wires a Dispatcher around an Orchestrator.
func NewDispatcher(repo gitx.Repo, repoFullName string, api tracker.API, store *cache.Store,
	lk *labelcfg.Lookups, wm labelcfg.WorkflowMap, orch *workflows.Orchestrator) *Dispatcher {
	d := &Dispatcher{
		Repo:         repo,
		RepoFullName: repoFullName,
		Tracker:      api,
		Cache:        store,
		Lookups:      lk,
		Workflows:    wm,
		Mover:        transition.NewMover(api, lk),
		log:          slog.Default(),
	}
	d.Launch = func(ctx context.Context, kind labelcfg.WorkflowKind, p workflows.Params) error {
		switch kind {
		case labelcfg.KindCreatePlan:
			return orch.CreatePlan(ctx, p)
		case labelcfg.KindImplement:
			return orch.Implement(ctx, p)
		case labelcfg.KindCreatePR:
			return orch.CreatePR(ctx, p)
		default:
			return fmt.Errorf("unknown workflow kind %q", kind)
		}
	}
	return d
}

// TickReport summarizes one tick.
type TickReport struct {
	Seen        int
	Initialized []int
	Dispatched  []int
	Skipped     []int
	Violations  []int
}

// Tick runs one full pass: refresh the cache, then classify and act on
// every open issue.
func (d *Dispatcher) Tick(ctx context.Context, opts cache.Options) (*TickReport, error) {
	issues, err := d.Cache.GetAllCachedIssues(ctx, d.RepoFullName, d.Tracker, opts)
	if err != nil {
		return nil, fmt.Errorf("refresh issue cache: %w", err)
	}

	report := &TickReport{}
	for _, issue := range issues {
		if issue.State != "open" || d.ignored(issue) {
			continue
		}
		report.Seen++

		workflow := d.workflowLabels(issue)
		switch len(workflow) {
		case 0:
			d.initialize(ctx, issue, report)
		case 1:
			d.dispatch(ctx, issue, workflow[0], report)
		default:
			d.logger().Error("issue carries multiple workflow labels",
				"repo", d.RepoFullName, "issue", issue.Number, "labels", workflow)
			report.Violations = append(report.Violations, issue.Number)
		}
	}
	return report, nil
}

func (d *Dispatcher) ignored(issue tracker.Issue) bool {
	for _, name := range issue.Labels {
		if d.Lookups.IgnoreNames[name] {
			return true
		}
	}
	return false
}

func (d *Dispatcher) workflowLabels(issue tracker.Issue) []string {
	var names []string
	for _, name := range issue.Labels {
		if d.Lookups.WorkflowNames[name] {
			names = append(names, name)
		}
	}
	return names
}

func (d *Dispatcher) initialize(ctx context.Context, issue tracker.Issue, report *TickReport) {
	createdName, ok := d.Lookups.IDToName[d.CreatedID]
	if !ok {
		return
	}
	if d.DryRun {
		d.logger().Info("would initialize issue", "repo", d.RepoFullName, "issue", issue.Number, "label", createdName)
		return
	}
	if _, err := d.Tracker.AddLabels(ctx, issue.Number, createdName); err != nil {
		d.logger().Warn("failed to initialize issue", "repo", d.RepoFullName, "issue", issue.Number, "error", err)
		return
	}
	d.Cache.UpdateIssueLabels(d.RepoFullName, issue.Number, "", createdName)
	d.logger().Info("initialized issue", "repo", d.RepoFullName, "issue", issue.Number, "label", createdName)
	report.Initialized = append(report.Initialized, issue.Number)
}

// dispatch runs steps in order: acquire a branch, mark the issue busy on
// the tracker and in the cache, launch the orchestrator. The in-progress
// transition always precedes the worker.
func (d *Dispatcher) dispatch(ctx context.Context, issue tracker.Issue, statusName string, report *TickReport) {
	entry, ok := d.Workflows[statusName]
	if !ok {
		// human_action or bot_busy status, nothing to do this tick.
		return
	}
	if d.Lookups.NameToCategory[statusName] != labelcfg.CategoryBotPickup {
		return
	}

	branch, ok := d.acquireBranch(ctx, issue.Number, entry.BranchStrategy)
	if !ok {
		report.Skipped = append(report.Skipped, issue.Number)
		return
	}

	busyName := entry.NextStatusLabel
	fromID := d.Lookups.NameToID[statusName]
	busyID := d.Lookups.NameToID[busyName]

	if d.DryRun {
		d.logger().Info("would dispatch",
			"repo", d.RepoFullName, "issue", issue.Number,
			"workflow", entry.Workflow, "branch", branch, "busy_label", busyName)
		return
	}

	// The number comes straight from the tracker listing this tick
	// fetched, and main-strategy branches carry no issue prefix to
	// derive it from, so this move skips branch verification.
	err := d.Mover.Move(ctx, transition.Request{FromID: fromID, ToID: busyID, IssueNumber: issue.Number})
	if err != nil {
		d.logger().Warn("in-progress transition failed, not dispatching",
			"repo", d.RepoFullName, "issue", issue.Number, "error", err)
		report.Skipped = append(report.Skipped, issue.Number)
		return
	}
	d.Cache.UpdateIssueLabels(d.RepoFullName, issue.Number, statusName, busyName)

	p := workflows.Params{
		IssueNumber: issue.Number,
		Branch:      branch,
		BusyID:      busyID,
		DoneID:      d.doneID(busyName),
	}
	if err := d.Launch(ctx, entry.Workflow, p); err != nil {
		d.logger().Info("workflow finished with error",
			"repo", d.RepoFullName, "issue", issue.Number, "workflow", entry.Workflow, "error", err)
	} else {
		d.logger().Info("workflow finished",
			"repo", d.RepoFullName, "issue", issue.Number, "workflow", entry.Workflow)
	}
	report.Dispatched = append(report.Dispatched, issue.Number)
}

// doneID resolves the label the orchestrator should advance to after a
// successful run: the workflow map entry keyed by the busy label, when
// one exists.
func (d *Dispatcher) doneID(busyName string) string {
	entry, ok := d.Workflows[busyName]
	if !ok {
		return ""
	}
	return d.Lookups.NameToID[entry.NextStatusLabel]
}

// acquireBranch checks out the branch the strategy calls for and returns
// its name. from_issue with no matching local branch skips with a warning.
func (d *Dispatcher) acquireBranch(ctx context.Context, issueNumber int, strategy labelcfg.BranchStrategy) (string, bool) {
	var branch string
	switch strategy {
	case labelcfg.BranchMain:
		branch = d.Repo.DefaultBranch(ctx)
		if branch == "" {
			d.logger().Warn("default branch unresolved", "repo", d.RepoFullName, "issue", issueNumber)
			return "", false
		}
	case labelcfg.BranchFromIssue:
		branch = d.issueBranch(ctx, issueNumber)
		if branch == "" {
			d.logger().Warn("no branch for issue", "repo", d.RepoFullName, "issue", issueNumber)
			return "", false
		}
	default:
		d.logger().Error("unknown branch strategy", "strategy", strategy)
		return "", false
	}

	if d.DryRun {
		return branch, true
	}
	if !d.Repo.CheckoutBranch(ctx, branch) {
		d.logger().Warn("checkout failed", "repo", d.RepoFullName, "issue", issueNumber, "branch", branch)
		return "", false
	}
	return branch, true
}

// issueBranch finds the local branch named "<issueNumber>-...".
func (d *Dispatcher) issueBranch(ctx context.Context, issueNumber int) string {
	branches, err := d.Repo.LocalBranches(ctx)
	if err != nil {
		d.logger().Warn("list branches failed", "repo", d.RepoFullName, "error", err)
		return ""
	}
	prefix := fmt.Sprintf("%d-", issueNumber)
	for _, b := range branches {
		if strings.HasPrefix(b, prefix) {
			return b
		}
	}
	return ""
}
