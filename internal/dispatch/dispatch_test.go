package dispatch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/papapumpkin/pulsar/internal/cache"
	"github.com/papapumpkin/pulsar/internal/gitx"
	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/tracker"
	"github.com/papapumpkin/pulsar/internal/transition"
	"github.com/papapumpkin/pulsar/internal/workflows"
)

type fakeTracker struct {
	tracker.API

	issues map[int]tracker.Issue
	added  map[int][]string
	set    map[int][]string
	order  []string // records tracker mutations and launches for ordering checks
}

func (f *fakeTracker) ListIssues(_ context.Context, _ string, _ bool, _ *time.Time) ([]tracker.Issue, error) {
	var out []tracker.Issue
	for _, iss := range f.issues {
		out = append(out, iss)
	}
	return out, nil
}

func (f *fakeTracker) GetIssue(_ context.Context, number int) (tracker.Issue, error) {
	return f.issues[number], nil
}

func (f *fakeTracker) AddLabels(_ context.Context, number int, names ...string) (tracker.Issue, error) {
	if f.added == nil {
		f.added = make(map[int][]string)
	}
	f.added[number] = append(f.added[number], names...)
	f.order = append(f.order, "add_labels")
	iss := f.issues[number]
	iss.Labels = append(iss.Labels, names...)
	f.issues[number] = iss
	return iss, nil
}

func (f *fakeTracker) SetLabels(_ context.Context, number int, names ...string) (tracker.Issue, error) {
	if f.set == nil {
		f.set = make(map[int][]string)
	}
	f.set[number] = names
	f.order = append(f.order, "set_labels")
	iss := f.issues[number]
	iss.Labels = names
	f.issues[number] = iss
	return iss, nil
}

func testLookups() (*labelcfg.Lookups, labelcfg.WorkflowMap) {
	cfg := &labelcfg.Config{
		WorkflowLabels: []labelcfg.Label{
			{InternalID: "status-01", Name: "status-01:created", Category: labelcfg.CategoryHumanAction, Color: "aabbcc"},
			{InternalID: "status-05", Name: "status-05:plan-ready", Category: labelcfg.CategoryBotPickup, Color: "aabbcc"},
			{InternalID: "status-06", Name: "status-06:implementing", Category: labelcfg.CategoryBotBusy, Color: "aabbcc", StaleTimeoutMinutes: 60},
			{InternalID: "status-07", Name: "status-07:implemented", Category: labelcfg.CategoryHumanAction, Color: "aabbcc"},
		},
		IgnoreLabels: []string{"wontfix"},
	}
	lk := cfg.BuildLookups()
	wm := labelcfg.WorkflowMap{
		"status-05:plan-ready": {
			Workflow:        labelcfg.KindImplement,
			BranchStrategy:  labelcfg.BranchFromIssue,
			NextStatusLabel: "status-06:implementing",
		},
		"status-06:implementing": {
			Workflow:        labelcfg.KindImplement,
			BranchStrategy:  labelcfg.BranchFromIssue,
			NextStatusLabel: "status-07:implemented",
		},
	}
	return lk, wm
}

func newDispatcher(t *testing.T, ft *fakeTracker, repo gitx.Repo) *Dispatcher {
	t.Helper()
	lk, wm := testLookups()
	d := &Dispatcher{
		Repo:         repo,
		RepoFullName: "acme/widgets",
		Tracker:      ft,
		Cache:        cache.NewStore(t.TempDir()),
		Lookups:      lk,
		Workflows:    wm,
		Mover:        transition.NewMover(ft, lk),
		CreatedID:    "status-01",
	}
	d.Launch = func(_ context.Context, _ labelcfg.WorkflowKind, _ workflows.Params) error {
		ft.order = append(ft.order, "launch")
		return nil
	}
	return d
}

func initRepoWithBranch(t *testing.T, branch string) gitx.Repo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-m", "initial")
	if branch != "" {
		run("branch", branch)
	}
	return gitx.New(dir)
}

func TestTickInitializesUnlabeledIssue(t *testing.T) {
	ft := &fakeTracker{issues: map[int]tracker.Issue{
		42: {Number: 42, State: "open", Labels: []string{"bug"}},
	}}
	d := newDispatcher(t, ft, gitx.Repo{})

	report, err := d.Tick(context.Background(), cache.Options{})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := ft.added[42]; len(got) != 1 || got[0] != "status-01:created" {
		t.Errorf("added = %v", got)
	}
	if len(report.Initialized) != 1 || report.Initialized[0] != 42 {
		t.Errorf("Initialized = %v", report.Initialized)
	}

	cached := d.Cache.Load("acme/widgets").Issues["42"]
	if !cached.HasLabel("status-01:created") {
		t.Errorf("cache not patched: %v", cached.Labels)
	}
}

func TestTickDispatchesPickupIssue(t *testing.T) {
	repo := initRepoWithBranch(t, "7-add-login")
	ft := &fakeTracker{issues: map[int]tracker.Issue{
		7: {Number: 7, State: "open", Labels: []string{"status-05:plan-ready"}},
	}}
	d := newDispatcher(t, ft, repo)

	var launched []workflows.Params
	d.Launch = func(_ context.Context, kind labelcfg.WorkflowKind, p workflows.Params) error {
		ft.order = append(ft.order, "launch")
		if kind != labelcfg.KindImplement {
			t.Errorf("kind = %q", kind)
		}
		launched = append(launched, p)
		return nil
	}

	report, err := d.Tick(context.Background(), cache.Options{})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Dispatched) != 1 || report.Dispatched[0] != 7 {
		t.Fatalf("Dispatched = %v", report.Dispatched)
	}
	if got := ft.set[7]; len(got) != 1 || got[0] != "status-06:implementing" {
		t.Errorf("set labels = %v", got)
	}
	if len(ft.order) != 2 || ft.order[0] != "set_labels" || ft.order[1] != "launch" {
		t.Errorf("order = %v, want transition before launch", ft.order)
	}
	if len(launched) != 1 {
		t.Fatal("orchestrator not launched")
	}
	p := launched[0]
	if p.Branch != "7-add-login" || p.BusyID != "status-06" || p.DoneID != "status-07" {
		t.Errorf("params = %+v", p)
	}
}

func TestTickSkipsIssueWithoutBranch(t *testing.T) {
	repo := initRepoWithBranch(t, "")
	ft := &fakeTracker{issues: map[int]tracker.Issue{
		7: {Number: 7, State: "open", Labels: []string{"status-05:plan-ready"}},
	}}
	d := newDispatcher(t, ft, repo)

	report, err := d.Tick(context.Background(), cache.Options{})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0] != 7 {
		t.Errorf("Skipped = %v", report.Skipped)
	}
	if len(ft.set) != 0 {
		t.Error("no transition should have happened")
	}
}

func TestTickReportsMultipleLabels(t *testing.T) {
	ft := &fakeTracker{issues: map[int]tracker.Issue{
		99: {Number: 99, State: "open", Labels: []string{"status-01:created", "status-05:plan-ready"}},
	}}
	d := newDispatcher(t, ft, gitx.Repo{})

	report, err := d.Tick(context.Background(), cache.Options{})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(report.Violations) != 1 || report.Violations[0] != 99 {
		t.Errorf("Violations = %v", report.Violations)
	}
	if len(ft.set) != 0 || len(ft.added) != 0 {
		t.Error("conflicted issue must not be mutated")
	}
}

func TestTickDryRunWritesNothing(t *testing.T) {
	repo := initRepoWithBranch(t, "7-add-login")
	ft := &fakeTracker{issues: map[int]tracker.Issue{
		7:  {Number: 7, State: "open", Labels: []string{"status-05:plan-ready"}},
		42: {Number: 42, State: "open", Labels: []string{"bug"}},
	}}
	d := newDispatcher(t, ft, repo)
	d.DryRun = true

	if _, err := d.Tick(context.Background(), cache.Options{}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(ft.set) != 0 || len(ft.added) != 0 {
		t.Error("dry run mutated the tracker")
	}
	for _, op := range ft.order {
		if op == "launch" {
			t.Error("dry run launched a workflow")
		}
	}
}

func TestTickIgnoresLabeledOut(t *testing.T) {
	ft := &fakeTracker{issues: map[int]tracker.Issue{
		3: {Number: 3, State: "open", Labels: []string{"wontfix"}},
	}}
	d := newDispatcher(t, ft, gitx.Repo{})

	report, err := d.Tick(context.Background(), cache.Options{})
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if report.Seen != 0 {
		t.Errorf("Seen = %d, want 0", report.Seen)
	}
	if len(ft.added) != 0 {
		t.Error("ignored issue was initialized")
	}
}
