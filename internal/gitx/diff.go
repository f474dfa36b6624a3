package gitx

import (
	"context"
	"fmt"
	"strings"
)

// BranchDiff returns the unified diff of base...HEAD with 5 context lines.
// excludes are pathspec patterns removed from the diff. When ansi is true
// the diff is colored with --color-moved=dimmed-zebra so moved lines carry
// the dim SGR attribute; the compact-diff renderer depends on that.
func (r Repo) BranchDiff(ctx context.Context, base string, excludes []string, ansi bool) (string, error) {
	args := []string{"diff", "-U5"}
	if ansi {
		args = append(args, "--color=always", "--color-moved=dimmed-zebra")
	}
	args = append(args, base+"...HEAD")
	if len(excludes) > 0 {
		args = append(args, "--")
		args = append(args, ".")
		for _, e := range excludes {
			args = append(args, ":(exclude)"+e)
		}
	}
	out, err := r.runRaw(ctx, args...)
	if err != nil {
		return "", err
	}
	return out, nil
}

// FullCommitDiff renders the complete pending state of the working tree as
// three labeled sections: staged changes, unstaged changes, and untracked
// files. Untracked files become synthetic new-file diffs so downstream
// consumers see one uniform format.
func (r Repo) FullCommitDiff(ctx context.Context) (string, error) {
	staged, err := r.runRaw(ctx, "diff", "--cached")
	if err != nil {
		return "", err
	}
	unstaged, err := r.runRaw(ctx, "diff")
	if err != nil {
		return "", err
	}
	untrackedList, err := r.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("=== STAGED CHANGES ===\n")
	b.WriteString(staged)
	if staged != "" && !strings.HasSuffix(staged, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("=== UNSTAGED CHANGES ===\n")
	b.WriteString(unstaged)
	if unstaged != "" && !strings.HasSuffix(unstaged, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("=== UNTRACKED FILES ===\n")
	if untrackedList != "" {
		for _, path := range strings.Split(untrackedList, "\n") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			b.WriteString(r.syntheticNewFileDiff(ctx, path))
		}
	}
	return b.String(), nil
}

// syntheticNewFileDiff renders an untracked file as a unified new-file
// diff with the placeholder blob hash git uses for absent objects.
func (r Repo) syntheticNewFileDiff(ctx context.Context, path string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "diff --git a/%s b/%s\n", path, path)
	b.WriteString("new file mode 100644\n")
	b.WriteString("index 0000000..0000000\n")
	b.WriteString("--- /dev/null\n")
	fmt.Fprintf(&b, "+++ b/%s\n", path)

	content, err := r.runRaw(ctx, "show", ":0:"+path)
	if err != nil {
		// Not in the index; read via git's hash-object pipeline is overkill,
		// the file content itself is what we want.
		content, err = readFile(r.Dir, path)
		if err != nil {
			return b.String()
		}
	}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	fmt.Fprintf(&b, "@@ -0,0 +1,%d @@\n", len(lines))
	for _, line := range lines {
		b.WriteString("+" + line + "\n")
	}
	return b.String()
}
