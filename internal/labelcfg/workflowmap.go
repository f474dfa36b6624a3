package labelcfg

import (
	"encoding/json"
	"fmt"
	"os"
)

// WorkflowKind names one of the automated steps the coordinator can run.
type WorkflowKind string

const (
	KindCreatePlan WorkflowKind = "create-plan"
	KindImplement  WorkflowKind = "implement"
	KindCreatePR   WorkflowKind = "create-pr"
)

// BranchStrategy selects the working-copy branch for a dispatch.
type BranchStrategy string

const (
	// BranchMain runs the worker on the repository default branch.
	BranchMain BranchStrategy = "main"
	// BranchFromIssue runs the worker on a branch named <issue number>-<slug>.
	BranchFromIssue BranchStrategy = "from_issue"
)

// WorkflowEntry describes the automated action implied by a status label
// and the label the issue advances to while the worker holds it.
type WorkflowEntry struct {
	Workflow        WorkflowKind   `json:"workflow"`
	BranchStrategy  BranchStrategy `json:"branch_strategy"`
	NextStatusLabel string         `json:"next_status_label"`
}

// WorkflowMap maps a status label name to its entry. The mapping is
// closed: a status label not present here is not dispatchable.
type WorkflowMap map[string]WorkflowEntry

// LoadWorkflowMap reads the workflow map JSON and validates it against the
// label lookups: every key and every next label must be a configured
// workflow label name.
func LoadWorkflowMap(path string, lk *Lookups) (WorkflowMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("labelcfg: read %s: %w", path, err)
	}
	var wm WorkflowMap
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("labelcfg: parse %s: %w", path, err)
	}
	for from, entry := range wm {
		if !lk.WorkflowNames[from] {
			return nil, fmt.Errorf("labelcfg: workflow map key %q is not a configured label", from)
		}
		if !lk.WorkflowNames[entry.NextStatusLabel] {
			return nil, fmt.Errorf("labelcfg: workflow map %q: next label %q is not a configured label", from, entry.NextStatusLabel)
		}
		switch entry.Workflow {
		case KindCreatePlan, KindImplement, KindCreatePR:
		default:
			return nil, fmt.Errorf("labelcfg: workflow map %q: unknown workflow %q", from, entry.Workflow)
		}
		switch entry.BranchStrategy {
		case BranchMain, BranchFromIssue:
		default:
			return nil, fmt.Errorf("labelcfg: workflow map %q: unknown branch strategy %q", from, entry.BranchStrategy)
		}
	}
	return wm, nil
}
