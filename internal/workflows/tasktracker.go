package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	prInfoDir       = "pr_info"
	stepsDirName    = "steps"
	taskTrackerFile = "TASK_TRACKER.md"
	tasksHeading    = "## Tasks"
)

// TaskTrackerPath returns the tracker file path under the project root.
func TaskTrackerPath(root string) string {
	return filepath.Join(root, prInfoDir, taskTrackerFile)
}

// StepsDirPath returns the steps directory path under the project root.
func StepsDirPath(root string) string {
	return filepath.Join(root, prInfoDir, stepsDirName)
}

// IncompleteTasks counts unchecked checkboxes under the Tasks heading.
func IncompleteTasks(content string) int {
	n := 0
	inTasks := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "## ") {
			inTasks = trimmed == tasksHeading
			continue
		}
		if inTasks && strings.HasPrefix(trimmed, "- [ ]") {
			n++
		}
	}
	return n
}

// ReadIncompleteTasks reads the tracker file and counts open tasks.
// A missing file means no tasks.
func ReadIncompleteTasks(root string) (int, error) {
	data, err := os.ReadFile(TaskTrackerPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read task tracker: %w", err)
	}
	return IncompleteTasks(string(data)), nil
}

// TruncateTaskTracker rewrites the tracker file keeping everything up to
// and including the Tasks heading, discarding the task list beneath it.
// A missing file or heading is a no-op.
func TruncateTaskTracker(root string) error {
	path := TaskTrackerPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read task tracker: %w", err)
	}
	truncated, found := truncateAtTasks(string(data))
	if !found {
		return nil
	}
	if err := os.WriteFile(path, []byte(truncated), 0o644); err != nil {
		return fmt.Errorf("write task tracker: %w", err)
	}
	return nil
}

func truncateAtTasks(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == tasksHeading {
			return strings.Join(lines[:i+1], "\n") + "\n", true
		}
	}
	return content, false
}

// RemoveStepsDir deletes pr_info/steps/ if present.
func RemoveStepsDir(root string) error {
	dir := StepsDirPath(root)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove steps dir: %w", err)
	}
	return nil
}
