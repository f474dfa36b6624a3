// Package compactdiff shrinks an LLM-bound unified diff by suppressing
// moved code blocks while keeping a human-readable preview. Suppression is
// conservative: anything that might be a real change stays verbatim, and
// the output remains syntactically a unified diff.
package compactdiff

import "strings"

// FileDiff is one file's portion of a unified diff.
type FileDiff struct {
	Headers []string // "diff --git ...", index/mode lines, ---/+++ lines
	Hunks   []Hunk
}

// Hunk is a single @@-delimited region.
type Hunk struct {
	Header string // the "@@ ... @@" line
	Body   []string
}

// Parse splits a plain unified diff into an ordered list of FileDiffs.
// Input that is not diff-shaped yields an empty list.
func Parse(diff string) []FileDiff {
	if strings.TrimSpace(diff) == "" {
		return nil
	}
	var files []FileDiff
	var cur *FileDiff
	var hunk *Hunk

	flushHunk := func() {
		if hunk != nil && cur != nil {
			cur.Hunks = append(cur.Hunks, *hunk)
		}
		hunk = nil
	}
	flushFile := func() {
		flushHunk()
		if cur != nil {
			files = append(files, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			cur = &FileDiff{Headers: []string{line}}
		case strings.HasPrefix(line, "@@"):
			if cur == nil {
				continue
			}
			flushHunk()
			hunk = &Hunk{Header: line}
		case hunk != nil:
			hunk.Body = append(hunk.Body, line)
		case cur != nil:
			cur.Headers = append(cur.Headers, line)
		}
	}
	flushFile()
	return files
}

// Path returns the file's new path (or old path for deletions) parsed from
// the header lines, without the a/ b/ prefix.
func (f *FileDiff) Path() string {
	for _, h := range f.Headers {
		if strings.HasPrefix(h, "+++ b/") {
			return strings.TrimPrefix(h, "+++ b/")
		}
	}
	for _, h := range f.Headers {
		if strings.HasPrefix(h, "--- a/") {
			return strings.TrimPrefix(h, "--- a/")
		}
	}
	if len(f.Headers) > 0 {
		// "diff --git a/x b/x" fallback
		fields := strings.Fields(f.Headers[0])
		if len(fields) >= 4 {
			return strings.TrimPrefix(fields[3], "b/")
		}
	}
	return ""
}

// significantMin is the minimum content length, after the sign and
// whitespace strip, for a line to count as significant.
const significantMin = 10

// lineContent strips the diff sign and surrounding whitespace.
func lineContent(line string) string {
	if len(line) == 0 {
		return ""
	}
	return strings.TrimSpace(line[1:])
}

func isSignificant(content string) bool {
	return len(content) >= significantMin
}
