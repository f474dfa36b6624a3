package workflows

import "strings"

const fallbackPRText = "Pull Request"

// ParsePRText splits raw LLM output into a PR title and body.
//
// A single non-empty line serves as both. Multi-line output takes the
// first non-empty line as the title and the whole trimmed output as the
// body. Empty output falls back to "Pull Request" for both.
func ParsePRText(raw string) (title, body string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallbackPRText, fallbackPRText
	}

	var lines []string
	for _, line := range strings.Split(trimmed, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if len(lines) == 1 {
		return lines[0], lines[0]
	}
	return lines[0], trimmed
}
