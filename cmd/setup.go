package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/pulsar/internal/config"
	"github.com/papapumpkin/pulsar/internal/gitx"
	"github.com/papapumpkin/pulsar/internal/labelcfg"
	"github.com/papapumpkin/pulsar/internal/tracker"
)

const (
	labelsConfigRelPath   = "workflows/config/labels.json"
	workflowMapRelPath    = "workflows/config/workflow_map.json"
	responsesDirName      = "responses"
	telemetryEventsName   = "events.jsonl"
	telemetryDatabaseName = "telemetry.db"
)

// environment bundles everything a tracker-backed command needs.
type environment struct {
	Config   *config.Config
	Repo     gitx.Repo
	FullName string // owner/name
	Tracker  *tracker.Client
	Labels   *labelcfg.Config
	Lookups  *labelcfg.Lookups
}

// buildEnvironment resolves the working copy, credentials, tracker
// client, and label configuration for cmd.
func buildEnvironment(ctx context.Context, cmd *cobra.Command) (*environment, error) {
	dir := projectDir(cmd)
	repo := gitx.New(dir)
	if !repo.IsRepository(ctx) {
		return nil, fmt.Errorf("%s is not a git repository", dir)
	}

	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireToken(); err != nil {
		return nil, err
	}

	remote, err := repo.RemoteURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve origin remote: %w", err)
	}
	owner, name, err := gitx.ExtractOwnerRepo(remote)
	if err != nil {
		return nil, err
	}

	labels, err := labelcfg.Load(filepath.Join(dir, labelsConfigRelPath))
	if err != nil {
		return nil, err
	}

	return &environment{
		Config:   cfg,
		Repo:     repo,
		FullName: owner + "/" + name,
		Tracker:  tracker.NewClient(owner, name, cfg.GitHub.Token),
		Labels:   labels,
		Lookups:  labels.BuildLookups(),
	}, nil
}

// workflowMap loads and validates the workflow map for the environment.
func (e *environment) workflowMap(dir string) (labelcfg.WorkflowMap, error) {
	return labelcfg.LoadWorkflowMap(filepath.Join(dir, workflowMapRelPath), e.Lookups)
}

// createdLabelID finds the first human_action label, used to initialize
// unlabeled issues.
func (e *environment) createdLabelID() string {
	for _, l := range e.Labels.WorkflowLabels {
		if l.Category == labelcfg.CategoryHumanAction {
			return l.InternalID
		}
	}
	return ""
}

// appDataDir is <project>/.pulsar, holding responses and telemetry.
func appDataDir(projectRoot string) string {
	return filepath.Join(projectRoot, config.AppDirName)
}
