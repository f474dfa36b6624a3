package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/cache"
	"github.com/papapumpkin/pulsar/internal/claude"
	"github.com/papapumpkin/pulsar/internal/compactdiff"
	"github.com/papapumpkin/pulsar/internal/dispatch"
	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/telemetry"
	"github.com/papapumpkin/pulsar/internal/workflows"
)

var coordinatorCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Run the dispatch tick (or loop) against the tracker",
	RunE:  runCoordinator,
}

func init() {
	coordinatorCmd.Flags().Bool("force-refresh", false, "bypass the duplicate-protection window and refresh fully")
	coordinatorCmd.Flags().Bool("dry-run", false, "log every decision without mutating tracker, cache, or working copy")
	coordinatorCmd.Flags().Bool("loop", false, "keep ticking until interrupted; reloads label config on change")
	coordinatorCmd.Flags().Int("interval", 300, "seconds between ticks in --loop mode")
	coordinatorCmd.Flags().IntSlice("issue", nil, "issue numbers to fetch regardless of cache freshness")
	rootCmd.AddCommand(coordinatorCmd)
}

func runCoordinator(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	env, err := buildEnvironment(ctx, cmd)
	if err != nil {
		return err
	}

	forceRefresh, _ := cmd.Flags().GetBool("force-refresh")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	loop, _ := cmd.Flags().GetBool("loop")
	interval, _ := cmd.Flags().GetInt("interval")
	additional, _ := cmd.Flags().GetIntSlice("issue")

	dir := projectDir(cmd)
	dataDir := appDataDir(dir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	emitter, store := openTelemetry(ctx, env.Config.MLflow.Enabled, dataDir)
	defer emitter.Close()
	if store != nil {
		defer store.Close()
	}

	cacheDir, err := cache.DefaultDir()
	if err != nil {
		return err
	}

	d, err := buildDispatcher(ctx, env, dir, dataDir, cacheDir)
	if err != nil {
		return err
	}
	d.DryRun = dryRun
	instrumentLaunch(d, emitter, store)

	opts := cache.Options{ForceRefresh: forceRefresh, AdditionalIssueNumbers: additional}

	if !loop {
		return tick(ctx, d, opts, emitter, store, dataDir)
	}

	// Reload label config when labels.json changes between ticks.
	reload := make(chan struct{}, 1)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		labelsPath := filepath.Join(dir, labelsConfigRelPath)
		err := dispatch.WatchConfig(watchCtx, labelsPath, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("config watcher stopped", "error", err)
		}
	}()

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for {
		if err := tick(ctx, d, opts, emitter, store, dataDir); err != nil {
			slog.Error("tick failed", "repo", env.FullName, "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reload:
			fresh, err := buildEnvironment(ctx, cmd)
			if err != nil {
				slog.Error("config reload failed, keeping previous config", "error", err)
				continue
			}
			env = fresh
			if d, err = buildDispatcher(ctx, env, dir, dataDir, cacheDir); err != nil {
				return err
			}
			d.DryRun = dryRun
			instrumentLaunch(d, emitter, store)
			slog.Info("label config reloaded", "repo", env.FullName)
		case <-ticker.C:
		}
	}
}

func buildDispatcher(ctx context.Context, env *environment, dir, dataDir, cacheDir string) (*dispatch.Dispatcher, error) {
	wm, err := env.workflowMap(dir)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(env.Config.Claude.TimeoutMinutes) * time.Minute
	invoker := claude.NewInvoker(env.Config.Claude.Path, timeout)
	invoker.WorkDir = dir
	invoker.SessionDir = filepath.Join(dataDir, responsesDirName)
	if err := invoker.Validate(ctx); err != nil {
		slog.Warn("provider binary preflight failed", "error", err)
	}

	orch := workflows.NewOrchestrator(env.Repo, env.Tracker, invoker)
	orch.Renderer = compactdiff.NewRenderer()
	orch.SessionDir = invoker.SessionDir

	d := dispatch.NewDispatcher(env.Repo, env.FullName, env.Tracker,
		cache.NewStore(cacheDir), env.Lookups, wm, orch)
	d.CreatedID = env.createdLabelID()
	orch.Mover = d.Mover
	return d, nil
}

func tick(ctx context.Context, d *dispatch.Dispatcher, opts cache.Options,
	emitter *telemetry.Emitter, store *telemetry.RunStore, dataDir string) error {
	started := time.Now().UTC()
	emitter.Emit(telemetry.Event{Kind: telemetry.KindTickStart, Repo: d.RepoFullName})

	report, err := d.Tick(ctx, opts)
	if err != nil {
		return err
	}

	emitIssueEvents(emitter, d.RepoFullName, report)
	emitter.Emit(telemetry.Event{
		Kind: telemetry.KindTickDone,
		Repo: d.RepoFullName,
		Data: report,
	})
	m := telemetry.Metrics{
		Repo:        d.RepoFullName,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		IssuesSeen:  report.Seen,
		Initialized: len(report.Initialized),
		Dispatched:  len(report.Dispatched),
		Skipped:     len(report.Skipped),
		Violations:  len(report.Violations),
	}
	if err := telemetry.SaveMetrics(dataDir, m); err != nil {
		slog.Warn("metrics save failed", "error", err)
	}

	slog.Info("tick complete", "repo", d.RepoFullName,
		"seen", report.Seen, "dispatched", len(report.Dispatched),
		"initialized", len(report.Initialized), "violations", len(report.Violations))
	return nil
}

// emitIssueEvents fans a tick report out into per-issue events on the
// JSONL stream.
func emitIssueEvents(emitter *telemetry.Emitter, repo string, report *dispatch.TickReport) {
	for _, number := range report.Initialized {
		emitter.Emit(telemetry.Event{Kind: telemetry.KindIssueInitialized, Repo: repo, Issue: number})
	}
	for _, number := range report.Dispatched {
		emitter.Emit(telemetry.Event{Kind: telemetry.KindIssueDispatched, Repo: repo, Issue: number})
	}
}

// instrumentLaunch wraps the dispatcher's launcher so every workflow
// run shows up on the event stream and, when open, as a row in the
// run store.
func instrumentLaunch(d *dispatch.Dispatcher, emitter *telemetry.Emitter, store *telemetry.RunStore) {
	inner := d.Launch
	d.Launch = func(ctx context.Context, kind labelcfg.WorkflowKind, p workflows.Params) error {
		runStart := time.Now().UTC()
		emitter.Emit(telemetry.Event{
			Kind:     telemetry.KindWorkflowStart,
			Repo:     d.RepoFullName,
			Issue:    p.IssueNumber,
			Workflow: string(kind),
		})
		err := inner(ctx, kind, p)
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		emitter.Emit(telemetry.Event{
			Kind:     telemetry.KindWorkflowDone,
			Repo:     d.RepoFullName,
			Issue:    p.IssueNumber,
			Workflow: string(kind),
			Data:     map[string]any{"outcome": outcome, "duration_ms": time.Since(runStart).Milliseconds()},
		})
		if store == nil {
			return err
		}
		rec := telemetry.Run{
			Repo:       d.RepoFullName,
			Issue:      p.IssueNumber,
			Workflow:   string(kind),
			Outcome:    outcome,
			DurationMs: time.Since(runStart).Milliseconds(),
			StartedAt:  runStart,
		}
		if rerr := store.Record(ctx, rec); rerr != nil {
			slog.Warn("run record failed", "error", rerr)
		}
		return err
	}
}

// openTelemetry builds the JSONL emitter and, when enabled, the run
// store. Both degrade to nil on failure; telemetry never blocks work.
func openTelemetry(ctx context.Context, enabled bool, dataDir string) (*telemetry.Emitter, *telemetry.RunStore) {
	emitter, err := telemetry.NewEmitter(filepath.Join(dataDir, telemetryEventsName))
	if err != nil {
		slog.Warn("telemetry emitter unavailable", "error", err)
		emitter = nil
	}
	if !enabled {
		return emitter, nil
	}
	store, err := telemetry.OpenRunStore(ctx, filepath.Join(dataDir, telemetryDatabaseName))
	if err != nil {
		slog.Warn("run store unavailable", "error", err)
		return emitter, nil
	}
	return emitter, store
}
