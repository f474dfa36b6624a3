package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmitterWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	events := []Event{
		{Kind: KindTickStart, Repo: "acme/widgets"},
		{Kind: KindIssueDispatched, Repo: "acme/widgets", Issue: 7, Workflow: "implement"},
		{Kind: KindTickDone, Repo: "acme/widgets", Data: map[string]int{"dispatched": 1}},
	}
	for _, evt := range events {
		if err := em.Emit(evt); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("line %d: %v", len(got)+1, err)
		}
		got = append(got, evt)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[1].Issue != 7 || got[1].Workflow != "implement" {
		t.Errorf("event 1 = %+v", got[1])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}
}

func TestNilEmitterIsNoOp(t *testing.T) {
	var em *Emitter
	if err := em.Emit(Event{Kind: KindTickStart}); err != nil {
		t.Errorf("Emit on nil: %v", err)
	}
	if err := em.Close(); err != nil {
		t.Errorf("Close on nil: %v", err)
	}
}

func TestRunStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := OpenRunStore(ctx, filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenRunStore: %v", err)
	}
	defer store.Close()

	started := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	runs := []Run{
		{Repo: "acme/widgets", Issue: 7, Workflow: "create-plan", Outcome: "success", CostUSD: 0.42, DurationMs: 9000, StartedAt: started},
		{Repo: "acme/widgets", Issue: 7, Workflow: "implement", Outcome: "failure", CostUSD: 1.10, DurationMs: 31000, StartedAt: started.Add(time.Hour)},
		{Repo: "acme/gizmos", Issue: 3, Workflow: "create-pr", Outcome: "success", CostUSD: 0.08, DurationMs: 4000, StartedAt: started},
	}
	for _, r := range runs {
		if err := store.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := store.RunsForIssue(ctx, "acme/widgets", 7)
	if err != nil {
		t.Fatalf("RunsForIssue: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d runs, want 2", len(got))
	}
	if got[0].Workflow != "create-plan" || got[1].Outcome != "failure" {
		t.Errorf("runs = %+v", got)
	}

	total, err := store.TotalCost(ctx, "acme/widgets")
	if err != nil {
		t.Fatalf("TotalCost: %v", err)
	}
	if total < 1.51 || total > 1.53 {
		t.Errorf("total = %f, want ~1.52", total)
	}
}

func TestRunStoreSchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	for i := 0; i < 2; i++ {
		store, err := OpenRunStore(ctx, path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		store.Close()
	}
}

func TestSaveMetricsRotatesHistory(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		m := Metrics{
			Repo:        "acme/widgets",
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			CompletedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			IssuesSeen:  10 + i,
			Dispatched:  i,
		}
		if err := SaveMetrics(dir, m); err != nil {
			t.Fatalf("SaveMetrics %d: %v", i, err)
		}
	}

	current, historyLen, err := LoadMetrics(dir)
	if err != nil {
		t.Fatalf("LoadMetrics: %v", err)
	}
	if current.IssuesSeen != 12 || current.Dispatched != 2 {
		t.Errorf("current = %+v", current)
	}
	if historyLen != 2 {
		t.Errorf("history length = %d, want 2", historyLen)
	}
}

func TestLoadMetricsMissingFile(t *testing.T) {
	current, historyLen, err := LoadMetrics(t.TempDir())
	if err != nil {
		t.Fatalf("LoadMetrics: %v", err)
	}
	if current.Repo != "" || historyLen != 0 {
		t.Errorf("got %+v / %d, want zero values", current, historyLen)
	}
}
