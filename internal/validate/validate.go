// Package validate audits open tracker issues for inconsistent or
// stale workflow states.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/tracker"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one audit result for one issue.
type Finding struct {
	Issue          int
	Severity       Severity
	Reason         string
	ElapsedMinutes int
}

// Report aggregates one audit pass.
type Report struct {
	Findings    []Finding
	Initialized []int // issues that received the created label this pass
}

func (r *Report) add(issue int, sev Severity, reason string, elapsed int) {
	r.Findings = append(r.Findings, Finding{Issue: issue, Severity: sev, Reason: reason, ElapsedMinutes: elapsed})
}

// HasErrors reports whether any finding is an error.
func (r *Report) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any finding is a warning.
func (r *Report) HasWarnings() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityWarning {
			return true
		}
	}
	return false
}

// ExitCode maps the report to process exit semantics: 0 clean, 1 when
// errors exist, 2 when only warnings exist.
func (r *Report) ExitCode() int {
	switch {
	case r.HasErrors():
		return 1
	case r.HasWarnings():
		return 2
	default:
		return 0
	}
}

// Validator walks open issues and classifies their workflow labels.
type Validator struct {
	Tracker tracker.API
	Lookups *labelcfg.Lookups

	// CreatedID names the label applied to uninitialized issues.
	CreatedID string

	// DryRun performs every read but no writes, and skips per-issue
	// event fetches.
	DryRun bool

	log *slog.Logger
	now func() time.Time
}

// New builds a Validator. createdID is the internal id of the label
// uninitialized issues should receive.
func New(api tracker.API, lk *labelcfg.Lookups, createdID string) *Validator {
	return &Validator{
		Tracker:   api,
		Lookups:   lk,
		CreatedID: createdID,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run lists open issues and audits each one.
func (v *Validator) Run(ctx context.Context) (*Report, error) {
	issues, err := v.Tracker.ListIssues(ctx, "open", false, nil)
	if err != nil {
		return nil, fmt.Errorf("list open issues: %w", err)
	}
	return v.Audit(ctx, issues)
}

// Audit classifies the given issues without listing. Issues carrying
// any ignore label are skipped entirely.
func (v *Validator) Audit(ctx context.Context, issues []tracker.Issue) (*Report, error) {
	report := &Report{}
	for _, issue := range issues {
		if v.ignored(issue) {
			continue
		}
		workflow := v.workflowLabels(issue)
		switch len(workflow) {
		case 0:
			if err := v.initialize(ctx, issue, report); err != nil {
				return report, err
			}
		case 1:
			if err := v.checkBusy(ctx, issue, workflow[0], report); err != nil {
				return report, err
			}
		default:
			v.log.Error("issue carries multiple workflow labels", "issue", issue.Number, "labels", workflow)
			report.add(issue.Number, SeverityError, fmt.Sprintf("multiple workflow labels: %v", workflow), 0)
		}
	}
	return report, nil
}

func (v *Validator) ignored(issue tracker.Issue) bool {
	for _, name := range issue.Labels {
		if v.Lookups.IgnoreNames[name] {
			return true
		}
	}
	return false
}

func (v *Validator) workflowLabels(issue tracker.Issue) []string {
	var names []string
	for _, name := range issue.Labels {
		if v.Lookups.WorkflowNames[name] {
			names = append(names, name)
		}
	}
	return names
}

func (v *Validator) initialize(ctx context.Context, issue tracker.Issue, report *Report) error {
	createdName, ok := v.Lookups.IDToName[v.CreatedID]
	if !ok {
		v.log.Debug("no created label configured, leaving issue unlabeled", "issue", issue.Number)
		return nil
	}
	if v.DryRun {
		v.log.Info("would initialize issue", "issue", issue.Number, "label", createdName)
		return nil
	}
	if _, err := v.Tracker.AddLabels(ctx, issue.Number, createdName); err != nil {
		// Initialization is best-effort; the next pass retries.
		v.log.Warn("failed to initialize issue", "issue", issue.Number, "error", err)
		return nil
	}
	v.log.Info("initialized issue", "issue", issue.Number, "label", createdName)
	report.Initialized = append(report.Initialized, issue.Number)
	return nil
}

// checkBusy warns when a bot_busy label has been in place longer than
// its configured stale timeout. Timestamps are compared in UTC.
func (v *Validator) checkBusy(ctx context.Context, issue tracker.Issue, name string, report *Report) error {
	if v.Lookups.NameToCategory[name] != labelcfg.CategoryBotBusy {
		return nil
	}
	label := v.Lookups.ByName[name]
	if label.StaleTimeoutMinutes <= 0 {
		return nil
	}
	if v.DryRun {
		v.log.Info("dry run: skipping staleness check", "issue", issue.Number, "label", name)
		return nil
	}

	events, err := v.Tracker.GetEvents(ctx, issue.Number, "labeled")
	if err != nil {
		return fmt.Errorf("fetch events for #%d: %w", issue.Number, err)
	}

	// Events arrive in ascending creation time; the last match is the
	// most recent application of this label.
	var applied time.Time
	for _, ev := range events {
		if ev.LabelName == name {
			applied = ev.CreatedAt
		}
	}
	if applied.IsZero() {
		return nil
	}

	elapsed := int(v.now().Sub(applied.UTC()).Minutes())
	if elapsed > label.StaleTimeoutMinutes {
		v.log.Warn("stale busy label",
			"issue", issue.Number, "label", name,
			"elapsed_minutes", elapsed, "timeout_minutes", label.StaleTimeoutMinutes)
		report.add(issue.Number, SeverityWarning,
			fmt.Sprintf("label %q stale for %d minutes (timeout %d)", name, elapsed, label.StaleTimeoutMinutes),
			elapsed)
	}
	return nil
}
