// Package tracker is a typed wrapper over the GitHub issue API. Operations
// that return a datum return an empty-but-valid datum on handled errors
// (number 0, state ""); callers consult the discriminator to distinguish
// "not found" from "found". Authentication failures are re-raised so the
// process can exit loudly.
package tracker

import (
	"fmt"
	"strings"
	"time"
)

// Issue is the normalized issue shape the coordinator works with.
type Issue struct {
	Number    int       `json:"number"`
	State     string    `json:"state"` // "open" or "closed"
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Labels    []string  `json:"labels"`
	Assignees []string  `json:"assignees"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	URL       string    `json:"url"`
	Locked    bool      `json:"locked"`
}

// Exists reports whether the issue was actually found at the tracker.
func (i Issue) Exists() bool { return i.Number > 0 }

// HasLabel reports whether the issue carries the named label.
func (i Issue) HasLabel(name string) bool {
	for _, l := range i.Labels {
		if l == name {
			return true
		}
	}
	return false
}

// Event is a single issue timeline entry, ordered by CreatedAt ascending.
type Event struct {
	Kind      string    `json:"kind"` // labeled, unlabeled, closed, reopened, assigned, ...
	LabelName string    `json:"label_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Actor     string    `json:"actor,omitempty"`
}

// Comment is a normalized issue comment.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// PullRequest carries the head/base pair the base-branch detector needs.
type PullRequest struct {
	Number     int    `json:"number"`
	State      string `json:"state"`
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
}

const baseBranchHeading = "### Base Branch"

// ParseBaseBranch extracts the branch named in an issue body's
// "### Base Branch" section. A missing section returns "" with no error; a
// present but unparseable section returns an error, which callers report
// and treat as absent.
func ParseBaseBranch(body string) (string, error) {
	idx := strings.Index(body, baseBranchHeading)
	if idx < 0 {
		return "", nil
	}
	rest := body[idx+len(baseBranchHeading):]
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			// Next section began before any content.
			return "", fmt.Errorf("base branch section is empty")
		}
		if strings.ContainsAny(line, " \t") {
			return "", fmt.Errorf("base branch %q contains whitespace", line)
		}
		return line, nil
	}
	return "", fmt.Errorf("base branch section is empty")
}
