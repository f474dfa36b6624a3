package transition

import (
	"context"
	"strings"
	"testing"

	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/tracker"
)

type fakeTracker struct {
	tracker.API

	issues   map[int]tracker.Issue
	linked   map[int]map[string]bool
	setCalls []struct {
		number int
		labels []string
	}
	failSet bool
}

func (f *fakeTracker) GetIssue(_ context.Context, number int) (tracker.Issue, error) {
	return f.issues[number], nil
}

func (f *fakeTracker) LinkedBranches(_ context.Context, number int) (map[string]bool, error) {
	return f.linked[number], nil
}

func (f *fakeTracker) SetLabels(_ context.Context, number int, names ...string) (tracker.Issue, error) {
	f.setCalls = append(f.setCalls, struct {
		number int
		labels []string
	}{number, names})
	if f.failSet {
		return tracker.Issue{}, context.DeadlineExceeded
	}
	issue := f.issues[number]
	issue.Labels = names
	f.issues[number] = issue
	return issue, nil
}

func testLookups(t *testing.T) *labelcfg.Lookups {
	t.Helper()
	cfg := &labelcfg.Config{
		WorkflowLabels: []labelcfg.Label{
			{InternalID: "status-01", Name: "workflow:created", Category: labelcfg.CategoryHumanAction, Color: "aabbcc"},
			{InternalID: "status-02", Name: "workflow:ready", Category: labelcfg.CategoryBotPickup, Color: "aabbcc"},
			{InternalID: "status-03", Name: "workflow:planning", Category: labelcfg.CategoryBotBusy, Color: "aabbcc", StaleTimeoutMinutes: 60},
		},
		IgnoreLabels: []string{"wontfix"},
	}
	return cfg.BuildLookups()
}

func TestMoveByIssueNumber(t *testing.T) {
	ft := &fakeTracker{
		issues: map[int]tracker.Issue{
			7: {Number: 7, State: "open", Labels: []string{"bug", "workflow:ready"}},
		},
	}
	m := NewMover(ft, testLookups(t))

	err := m.Move(context.Background(), Request{FromID: "status-02", ToID: "status-03", IssueNumber: 7})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(ft.setCalls) != 1 {
		t.Fatalf("got %d SetLabels calls, want 1", len(ft.setCalls))
	}
	got := strings.Join(ft.setCalls[0].labels, ",")
	if got != "bug,workflow:planning" {
		t.Errorf("labels = %q", got)
	}
}

func TestMoveResolvesBranchAndChecksLink(t *testing.T) {
	ft := &fakeTracker{
		issues: map[int]tracker.Issue{
			12: {Number: 12, State: "open", Labels: []string{"workflow:planning"}},
		},
		linked: map[int]map[string]bool{
			12: {"12-add-cache": true},
		},
	}
	m := NewMover(ft, testLookups(t))

	err := m.Move(context.Background(), Request{FromID: "status-03", ToID: "status-01", Branch: "12-add-cache"})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(ft.setCalls) != 1 {
		t.Fatalf("got %d SetLabels calls, want 1", len(ft.setCalls))
	}
}

func TestMoveRejectsUnlinkedBranch(t *testing.T) {
	ft := &fakeTracker{
		issues: map[int]tracker.Issue{12: {Number: 12, State: "open"}},
		linked: map[int]map[string]bool{12: {"12-other-branch": true}},
	}
	m := NewMover(ft, testLookups(t))

	err := m.Move(context.Background(), Request{FromID: "status-02", ToID: "status-03", Branch: "12-add-cache"})
	if err == nil || !strings.Contains(err.Error(), "not linked") {
		t.Fatalf("got %v, want not-linked error", err)
	}
	if len(ft.setCalls) != 0 {
		t.Error("SetLabels should not have been called")
	}
}

func TestMovePreverifiedSkipsLinkCheck(t *testing.T) {
	// No linked map at all: a preverified issue number must never
	// consult linked branches.
	ft := &fakeTracker{
		issues: map[int]tracker.Issue{9: {Number: 9, State: "open", Labels: []string{"workflow:ready"}}},
	}
	m := NewMover(ft, testLookups(t))

	err := m.Move(context.Background(), Request{FromID: "status-02", ToID: "status-03", Branch: "9-whatever", IssueNumber: 9})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
}

func TestMoveShortCircuitsWhenAlreadyDone(t *testing.T) {
	ft := &fakeTracker{
		issues: map[int]tracker.Issue{
			5: {Number: 5, State: "open", Labels: []string{"workflow:planning"}},
		},
	}
	m := NewMover(ft, testLookups(t))

	err := m.Move(context.Background(), Request{FromID: "status-02", ToID: "status-03", IssueNumber: 5})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if len(ft.setCalls) != 0 {
		t.Error("no-op transition should not call SetLabels")
	}
}

func TestMoveUnknownLabelIDs(t *testing.T) {
	m := NewMover(&fakeTracker{}, testLookups(t))

	if err := m.Move(context.Background(), Request{FromID: "status-99", ToID: "status-01", IssueNumber: 1}); err == nil {
		t.Error("expected error for unknown source id")
	}
	if err := m.Move(context.Background(), Request{FromID: "status-01", ToID: "status-99", IssueNumber: 1}); err == nil {
		t.Error("expected error for unknown target id")
	}
}

func TestMoveBranchWithoutNumber(t *testing.T) {
	m := NewMover(&fakeTracker{}, testLookups(t))
	err := m.Move(context.Background(), Request{FromID: "status-01", ToID: "status-02", Branch: "feature/no-number"})
	if err == nil || !strings.Contains(err.Error(), "no issue number") {
		t.Fatalf("got %v, want missing-number error", err)
	}
}
