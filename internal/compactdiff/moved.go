package compactdiff

import "strings"

// MovedSet holds line contents classified as moved, plus source maps used
// to annotate suppression summaries with the counterpart filename.
type MovedSet struct {
	moved map[string]bool
	// removedBy maps removed-line content to the last file that removed it;
	// addedBy maps added-line content to the last file that added it.
	removedBy map[string]string
	addedBy   map[string]string
}

// Contains reports whether the content was classified as moved.
func (m *MovedSet) Contains(content string) bool {
	return m.moved[content]
}

// RemovedFrom returns the file an added line's content was last removed
// from, or "" when unknown.
func (m *MovedSet) RemovedFrom(content string) string { return m.removedBy[content] }

// AddedTo returns the file a removed line's content was last added to, or
// "" when unknown.
func (m *MovedSet) AddedTo(content string) string { return m.addedBy[content] }

// CollectMoved combines the two move-detection passes over the same diff:
// pass 1 scans the ANSI-colored rendition for dim (SGR 2) lines, pass 2
// intersects significant added and removed contents across the plain diff.
func CollectMoved(plain []FileDiff, ansiDiff string) *MovedSet {
	ms := &MovedSet{
		moved:     make(map[string]bool),
		removedBy: make(map[string]string),
		addedBy:   make(map[string]string),
	}

	// Pass 1: dimmed-zebra marks moved lines with the dim attribute.
	for _, raw := range strings.Split(ansiDiff, "\n") {
		stripped := stripANSI(raw)
		if !strings.HasPrefix(stripped, "+") && !strings.HasPrefix(stripped, "-") {
			continue
		}
		if strings.HasPrefix(stripped, "+++") || strings.HasPrefix(stripped, "---") {
			continue
		}
		if hasDimCode(raw) {
			ms.moved[lineContent(stripped)] = true
		}
	}

	// Pass 2: cross-file symmetry of significant line contents. The source
	// maps are built in the same walk.
	added := make(map[string]bool)
	removed := make(map[string]bool)
	for _, f := range plain {
		path := f.Path()
		for _, h := range f.Hunks {
			for _, line := range h.Body {
				if len(line) == 0 {
					continue
				}
				content := lineContent(line)
				if !isSignificant(content) {
					continue
				}
				switch line[0] {
				case '+':
					added[content] = true
					ms.addedBy[content] = path
				case '-':
					removed[content] = true
					ms.removedBy[content] = path
				}
			}
		}
	}
	for content := range added {
		if removed[content] {
			ms.moved[content] = true
		}
	}
	return ms
}
