package validate

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/tracker"
)

type fakeTracker struct {
	tracker.API

	issues     []tracker.Issue
	events     map[int][]tracker.Event
	eventCalls int
	added      map[int][]string
}

func (f *fakeTracker) ListIssues(_ context.Context, _ string, _ bool, _ *time.Time) ([]tracker.Issue, error) {
	return f.issues, nil
}

func (f *fakeTracker) GetEvents(_ context.Context, number int, _ string) ([]tracker.Event, error) {
	f.eventCalls++
	return f.events[number], nil
}

func (f *fakeTracker) AddLabels(_ context.Context, number int, names ...string) (tracker.Issue, error) {
	if f.added == nil {
		f.added = make(map[int][]string)
	}
	f.added[number] = append(f.added[number], names...)
	return tracker.Issue{Number: number, Labels: names}, nil
}

func testLookups() *labelcfg.Lookups {
	cfg := &labelcfg.Config{
		WorkflowLabels: []labelcfg.Label{
			{InternalID: "status-01", Name: "status-01:created", Category: labelcfg.CategoryHumanAction, Color: "aabbcc"},
			{InternalID: "status-02", Name: "status-02:ready", Category: labelcfg.CategoryBotPickup, Color: "aabbcc"},
			{InternalID: "status-03", Name: "status-03:planning", Category: labelcfg.CategoryBotBusy, Color: "aabbcc", StaleTimeoutMinutes: 15},
		},
		IgnoreLabels: []string{"wontfix"},
	}
	return cfg.BuildLookups()
}

func newValidator(ft *fakeTracker) *Validator {
	v := New(ft, testLookups(), "status-01")
	v.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return v
}

func TestMultipleWorkflowLabelsIsError(t *testing.T) {
	ft := &fakeTracker{issues: []tracker.Issue{
		{Number: 99, State: "open", Labels: []string{"status-01:created", "status-03:planning"}},
	}}
	report, err := newValidator(ft).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.HasErrors() {
		t.Fatal("expected an error finding")
	}
	if got := report.ExitCode(); got != 1 {
		t.Errorf("ExitCode = %d, want 1", got)
	}
	if len(ft.added) != 0 {
		t.Error("validator must not mutate labels on a conflicted issue")
	}
}

func TestStaleBusyLabelWarns(t *testing.T) {
	applied := time.Date(2026, 6, 1, 11, 40, 0, 0, time.UTC) // 20 minutes before now
	ft := &fakeTracker{
		issues: []tracker.Issue{{Number: 12, State: "open", Labels: []string{"status-03:planning"}}},
		events: map[int][]tracker.Event{
			12: {
				{Kind: "labeled", LabelName: "status-02:ready", CreatedAt: applied.Add(-time.Hour)},
				{Kind: "labeled", LabelName: "status-03:planning", CreatedAt: applied},
			},
		},
	}
	report, err := newValidator(ft).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.HasErrors() || !report.HasWarnings() {
		t.Fatalf("findings = %+v, want one warning", report.Findings)
	}
	if got := report.Findings[0].ElapsedMinutes; got != 20 {
		t.Errorf("elapsed = %d, want 20", got)
	}
	if got := report.ExitCode(); got != 2 {
		t.Errorf("ExitCode = %d, want 2", got)
	}
}

func TestFreshBusyLabelIsClean(t *testing.T) {
	ft := &fakeTracker{
		issues: []tracker.Issue{{Number: 12, State: "open", Labels: []string{"status-03:planning"}}},
		events: map[int][]tracker.Event{
			12: {{Kind: "labeled", LabelName: "status-03:planning", CreatedAt: time.Date(2026, 6, 1, 11, 55, 0, 0, time.UTC)}},
		},
	}
	report, err := newValidator(ft).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := report.ExitCode(); got != 0 {
		t.Errorf("ExitCode = %d, want 0; findings = %+v", got, report.Findings)
	}
}

func TestBusyWithNoMatchingEventIsClean(t *testing.T) {
	ft := &fakeTracker{
		issues: []tracker.Issue{{Number: 12, State: "open", Labels: []string{"status-03:planning"}}},
		events: map[int][]tracker.Event{12: {}},
	}
	report, err := newValidator(ft).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("findings = %+v, want none", report.Findings)
	}
}

func TestUninitializedIssueGetsCreatedLabel(t *testing.T) {
	ft := &fakeTracker{issues: []tracker.Issue{
		{Number: 7, State: "open", Labels: []string{"bug"}},
	}}
	report, err := newValidator(ft).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := strings.Join(ft.added[7], ",")
	if got != "status-01:created" {
		t.Errorf("added = %q", got)
	}
	if len(report.Initialized) != 1 || report.Initialized[0] != 7 {
		t.Errorf("Initialized = %v", report.Initialized)
	}
}

func TestDryRunSkipsWritesAndEventFetches(t *testing.T) {
	ft := &fakeTracker{issues: []tracker.Issue{
		{Number: 7, State: "open", Labels: []string{"bug"}},
		{Number: 12, State: "open", Labels: []string{"status-03:planning"}},
	}}
	v := newValidator(ft)
	v.DryRun = true
	report, err := v.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ft.added) != 0 {
		t.Error("dry run must not write labels")
	}
	if ft.eventCalls != 0 {
		t.Errorf("dry run fetched events %d times", ft.eventCalls)
	}
	if got := report.ExitCode(); got != 0 {
		t.Errorf("ExitCode = %d, want 0", got)
	}
}

func TestIgnoreLabelSkipsIssue(t *testing.T) {
	ft := &fakeTracker{issues: []tracker.Issue{
		{Number: 3, State: "open", Labels: []string{"wontfix", "status-01:created", "status-03:planning"}},
	}}
	report, err := newValidator(ft).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("ignored issue produced findings: %+v", report.Findings)
	}
}
