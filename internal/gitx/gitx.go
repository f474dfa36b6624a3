// Package gitx wraps the git CLI with typed, single-invocation primitives.
// Every operation spawns one git subprocess with -C <dir> and parses its
// output; no handle outlives the call. Operations never panic — failures
// come back as errors or false results.
package gitx

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo addresses a working copy by directory. The zero value is invalid;
// use New.
type Repo struct {
	Dir string
}

// New returns a Repo for the given directory. It does not verify the
// directory is a repository; callers that need that check use IsRepository.
func New(dir string) Repo {
	return Repo{Dir: dir}
}

// run executes git with the given arguments and returns trimmed stdout.
// Stderr is folded into the returned error.
func (r Repo) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", r.Dir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// runRaw is run without output trimming, for diff bodies where trailing
// whitespace is meaningful.
func (r Repo) runRaw(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-C", r.Dir}, args...)
	cmd := exec.CommandContext(ctx, "git", full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func readFile(dir, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsRepository reports whether the directory is inside a git work tree.
func (r Repo) IsRepository(ctx context.Context) bool {
	if _, err := exec.LookPath("git"); err != nil {
		return false
	}
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// CurrentBranch returns the checked-out branch name, or "" on detached HEAD.
func (r Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", nil // detached
	}
	return out, nil
}

// DefaultBranch resolves the repository's default branch. It first probes
// refs/remotes/origin/HEAD; when that ref is absent it falls back to the
// first of main, master that exists locally. Returns "" when nothing
// resolves.
func (r Repo) DefaultBranch(ctx context.Context) string {
	out, err := r.run(ctx, "symbolic-ref", "refs/remotes/origin/HEAD")
	if err == nil {
		// refs/remotes/origin/main -> main
		if i := strings.LastIndex(out, "/"); i >= 0 {
			return out[i+1:]
		}
	}
	for _, name := range []string{"main", "master"} {
		if r.BranchExists(ctx, name) {
			return name
		}
	}
	slog.Debug("default branch unresolved", "dir", r.Dir)
	return ""
}

// BranchExists reports whether a local branch with the given name exists.
func (r Repo) BranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// RemoteBranchExists reports whether origin/<name> exists locally.
func (r Repo) RemoteBranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+name)
	return err == nil
}

// invalidBranchChars are characters git refuses in ref names; we reject
// them before shelling out so the error is immediate and uniform.
const invalidBranchChars = "~^:?*["

// ValidBranchName reports whether name is acceptable as a branch name.
func ValidBranchName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	return !strings.ContainsAny(name, invalidBranchChars)
}

// CreateBranch creates a branch at base (or HEAD when base is empty).
func (r Repo) CreateBranch(ctx context.Context, name, base string) bool {
	if !ValidBranchName(name) {
		slog.Debug("invalid branch name", "name", name)
		return false
	}
	args := []string{"branch", name}
	if base != "" {
		args = append(args, base)
	}
	if _, err := r.run(ctx, args...); err != nil {
		slog.Error("create branch failed", "dir", r.Dir, "name", name, "err", err)
		return false
	}
	return true
}

// CheckoutBranch checks out the named branch. When the branch is absent
// locally but exists at origin, a tracking branch is created.
func (r Repo) CheckoutBranch(ctx context.Context, name string) bool {
	if r.BranchExists(ctx, name) {
		_, err := r.run(ctx, "checkout", name)
		if err != nil {
			slog.Error("checkout failed", "dir", r.Dir, "name", name, "err", err)
		}
		return err == nil
	}
	if r.RemoteBranchExists(ctx, name) {
		_, err := r.run(ctx, "checkout", "-b", name, "--track", "origin/"+name)
		if err != nil {
			slog.Error("tracking checkout failed", "dir", r.Dir, "name", name, "err", err)
		}
		return err == nil
	}
	slog.Debug("branch not found for checkout", "dir", r.Dir, "name", name)
	return false
}

// DeleteBranch deletes a local branch and optionally its origin counterpart.
// The currently checked-out branch is never deleted.
func (r Repo) DeleteBranch(ctx context.Context, name string, force, deleteRemote bool) bool {
	current, err := r.CurrentBranch(ctx)
	if err == nil && current == name {
		slog.Debug("refusing to delete active branch", "name", name)
		return false
	}
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := r.run(ctx, "branch", flag, name); err != nil {
		slog.Error("delete branch failed", "dir", r.Dir, "name", name, "err", err)
		return false
	}
	if deleteRemote {
		if _, err := r.run(ctx, "push", "origin", "--delete", name); err != nil {
			slog.Error("delete remote branch failed", "dir", r.Dir, "name", name, "err", err)
			return false
		}
	}
	return true
}

// Fetch fetches the named remote.
func (r Repo) Fetch(ctx context.Context, remote string) bool {
	if remote == "" {
		remote = "origin"
	}
	if _, err := r.run(ctx, "fetch", remote); err != nil {
		slog.Debug("fetch failed", "dir", r.Dir, "remote", remote, "err", err)
		return false
	}
	return true
}
