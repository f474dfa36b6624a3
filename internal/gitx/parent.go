package gitx

import (
	"context"
	"strconv"
	"strings"
)

// LocalBranches lists local branch names.
func (r Repo) LocalBranches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// ParentBranch guesses which local branch the given branch forked from.
// For every other local branch it computes the merge base with branch
// and keeps the candidate whose merge base is most recent; ties go to
// the default branch. Returns "" when no candidate shares history.
func (r Repo) ParentBranch(ctx context.Context, branch string) string {
	branches, err := r.LocalBranches(ctx)
	if err != nil {
		return ""
	}
	def := r.DefaultBranch(ctx)

	var best string
	var bestTime int64
	for _, cand := range branches {
		if cand == branch {
			continue
		}
		base, err := r.run(ctx, "merge-base", branch, cand)
		if err != nil || base == "" {
			continue
		}
		out, err := r.run(ctx, "show", "-s", "--format=%ct", base)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
		if err != nil {
			continue
		}
		if ts > bestTime || (ts == bestTime && cand == def) {
			best, bestTime = cand, ts
		}
	}
	return best
}
