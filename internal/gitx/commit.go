package gitx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// CommitResult reports the outcome of a commit attempt.
type CommitResult struct {
	OK       bool
	ShortSHA string
	Err      error
}

// PushResult reports the outcome of a push attempt.
type PushResult struct {
	OK  bool
	Err error
}

// StageAll stages every change in the working tree, including untracked files.
func (r Repo) StageAll(ctx context.Context) bool {
	if _, err := r.run(ctx, "add", "-A"); err != nil {
		slog.Error("stage all failed", "dir", r.Dir, "err", err)
		return false
	}
	return true
}

// Stage stages the named files.
func (r Repo) Stage(ctx context.Context, files []string) bool {
	if len(files) == 0 {
		return true
	}
	args := append([]string{"add", "--"}, files...)
	if _, err := r.run(ctx, args...); err != nil {
		slog.Error("stage failed", "dir", r.Dir, "files", files, "err", err)
		return false
	}
	return true
}

// hasStagedChanges reports whether anything is in the index.
func (r Repo) hasStagedChanges(ctx context.Context) bool {
	_, err := r.run(ctx, "diff", "--cached", "--quiet")
	return err != nil // non-zero exit means differences exist
}

// IsClean reports whether the working tree has no staged, unstaged, or
// untracked changes.
func (r Repo) IsClean(ctx context.Context) bool {
	out, err := r.run(ctx, "status", "--porcelain")
	return err == nil && out == ""
}

// Commit creates a commit from the staged content. An empty message or an
// empty index fails without invoking git commit.
func (r Repo) Commit(ctx context.Context, message string) CommitResult {
	if strings.TrimSpace(message) == "" {
		return CommitResult{Err: fmt.Errorf("commit message is empty")}
	}
	if !r.hasStagedChanges(ctx) {
		return CommitResult{Err: fmt.Errorf("nothing staged to commit")}
	}
	if _, err := r.run(ctx, "commit", "-m", message); err != nil {
		slog.Error("commit failed", "dir", r.Dir, "err", err)
		return CommitResult{Err: err}
	}
	sha, err := r.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return CommitResult{OK: true}
	}
	return CommitResult{OK: true, ShortSHA: sha}
}

// CommitAll stages everything and commits. A fully clean tree is a
// successful no-op.
func (r Repo) CommitAll(ctx context.Context, message string) CommitResult {
	if r.IsClean(ctx) {
		return CommitResult{OK: true}
	}
	if !r.StageAll(ctx) {
		return CommitResult{Err: fmt.Errorf("staging failed")}
	}
	return r.Commit(ctx, message)
}

// Push pushes the named branch to origin, setting upstream so fresh
// branches work. force uses --force-with-lease, never plain --force.
func (r Repo) Push(ctx context.Context, branch string, forceWithLease bool) PushResult {
	args := []string{"push", "--set-upstream", "origin", branch}
	if forceWithLease {
		args = append(args, "--force-with-lease")
	}
	if _, err := r.run(ctx, args...); err != nil {
		slog.Error("push failed", "dir", r.Dir, "branch", branch, "err", err)
		return PushResult{Err: err}
	}
	return PushResult{OK: true}
}

// RebaseOnto rebases HEAD onto the target ref. On conflict the rebase is
// aborted and false is returned; the working tree is left as it was.
func (r Repo) RebaseOnto(ctx context.Context, target string) bool {
	if _, err := r.run(ctx, "rebase", target); err != nil {
		_, _ = r.run(ctx, "rebase", "--abort")
		slog.Error("rebase failed, aborted", "dir", r.Dir, "target", target, "err", err)
		return false
	}
	return true
}

// NeedsRebase fetches origin and reports whether origin/<target> has
// commits not reachable from HEAD. target defaults to the repository
// default branch.
func (r Repo) NeedsRebase(ctx context.Context, target string) (bool, string) {
	if target == "" {
		target = r.DefaultBranch(ctx)
		if target == "" {
			return false, "default branch unresolved"
		}
	}
	if !r.Fetch(ctx, "origin") {
		return false, "fetch failed"
	}
	out, err := r.run(ctx, "rev-list", "--count", "HEAD..origin/"+target)
	if err != nil {
		return false, fmt.Sprintf("rev-list failed: %v", err)
	}
	if out == "0" {
		return false, "up to date with origin/" + target
	}
	return true, fmt.Sprintf("%s commits behind origin/%s", out, target)
}
