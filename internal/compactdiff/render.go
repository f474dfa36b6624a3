package compactdiff

import (
	"fmt"
	"strings"
)

// Renderer rewrites a parsed diff with moved segments suppressed. The
// zero value is not usable; call NewRenderer for the standard tuning.
type Renderer struct {
	// SuppressThreshold is the minimum segment length, in lines, for
	// suppression to apply.
	SuppressThreshold int
	// PreviewLines is how many non-blank lines of a suppressed segment
	// are kept verbatim before the annotation.
	PreviewLines int
}

// NewRenderer returns a Renderer with the standard thresholds.
func NewRenderer() *Renderer {
	return &Renderer{SuppressThreshold: 5, PreviewLines: 3}
}

// Compact runs the whole pipeline with the standard thresholds.
func Compact(plainDiff, ansiDiff string) string {
	return NewRenderer().Compact(plainDiff, ansiDiff)
}

// Compact parses the plain diff, collects moved lines from both passes,
// and renders with moved blocks suppressed. Compact("") == "".
func (r *Renderer) Compact(plainDiff, ansiDiff string) string {
	files := Parse(plainDiff)
	if len(files) == 0 {
		return ""
	}
	ms := CollectMoved(files, ansiDiff)
	return r.Render(files, ms)
}

// Render emits each file and hunk, suppressing qualifying moved
// segments. Hunks that suppress to empty are dropped; files with no
// remaining hunks are dropped entirely.
func (r *Renderer) Render(files []FileDiff, ms *MovedSet) string {
	var b strings.Builder
	for _, f := range files {
		var rendered []string
		for _, h := range f.Hunks {
			body := r.renderHunkBody(h.Body, ms)
			if len(body) == 0 {
				continue
			}
			rendered = append(rendered, h.Header)
			rendered = append(rendered, body...)
		}
		if len(rendered) == 0 {
			continue
		}
		for _, hl := range f.Headers {
			b.WriteString(hl)
			b.WriteString("\n")
		}
		for _, line := range rendered {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// renderHunkBody walks consecutive same-sign runs, emitting context lines
// verbatim and handing +/- runs to the segment logic.
func (r *Renderer) renderHunkBody(body []string, ms *MovedSet) []string {
	var out []string
	var run []string
	var runSign byte

	flush := func() {
		if len(run) > 0 {
			out = append(out, r.renderRun(run, runSign, ms)...)
			run = nil
		}
	}

	for _, line := range body {
		var sign byte
		if len(line) > 0 && (line[0] == '+' || line[0] == '-') {
			sign = line[0]
		}
		if sign == 0 {
			flush()
			out = append(out, line)
			continue
		}
		if len(run) > 0 && sign != runSign {
			flush()
		}
		runSign = sign
		run = append(run, line)
	}
	flush()
	return out
}

// renderRun splits a same-sign run at every non-moved significant line
// (those always survive verbatim) and suppresses the segments between
// them when they qualify.
func (r *Renderer) renderRun(run []string, sign byte, ms *MovedSet) []string {
	var out []string
	var segment []string

	flushSegment := func() {
		if len(segment) > 0 {
			out = append(out, r.renderSegment(segment, sign, ms)...)
			segment = nil
		}
	}

	for _, line := range run {
		content := lineContent(line)
		if isSignificant(content) && !ms.Contains(content) {
			// A real change: never suppressed, and it bounds segments.
			flushSegment()
			out = append(out, line)
			continue
		}
		segment = append(segment, line)
	}
	flushSegment()
	return out
}

// renderSegment either emits the segment verbatim or replaces it with a
// preview plus one annotation line.
func (r *Renderer) renderSegment(segment []string, sign byte, ms *MovedSet) []string {
	if len(segment) < r.SuppressThreshold || !r.hasSignificantMoved(segment, ms) {
		return segment
	}

	var out []string
	for _, line := range segment {
		if len(out) >= r.PreviewLines {
			break
		}
		if lineContent(line) == "" {
			continue
		}
		out = append(out, line)
	}
	notShown := len(segment) - len(out)
	out = append(out, r.annotation(segment, sign, ms, notShown))
	return out
}

func (r *Renderer) hasSignificantMoved(segment []string, ms *MovedSet) bool {
	for _, line := range segment {
		content := lineContent(line)
		if isSignificant(content) && ms.Contains(content) {
			return true
		}
	}
	return false
}

// annotation builds the suppression comment. The counterpart file comes
// from the source maps; when it is unknown the filename is omitted.
func (r *Renderer) annotation(segment []string, sign byte, ms *MovedSet, notShown int) string {
	var counterpart string
	for _, line := range segment {
		content := lineContent(line)
		if !isSignificant(content) || !ms.Contains(content) {
			continue
		}
		if sign == '+' {
			counterpart = ms.RemovedFrom(content)
		} else {
			counterpart = ms.AddedTo(content)
		}
		if counterpart != "" {
			break
		}
	}

	direction := "moved from"
	if sign == '-' {
		direction = "moved to"
	}
	if counterpart == "" {
		return fmt.Sprintf("%c# [moved: %d lines not shown]", sign, notShown)
	}
	return fmt.Sprintf("%c# [%s %s: %d lines not shown]", sign, direction, counterpart, notShown)
}
