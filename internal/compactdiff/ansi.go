package compactdiff

import (
	"regexp"
	"strings"
)

// SGR code 2 (dim) is what --color-moved=dimmed-zebra applies to moved
// lines; its presence is the move signal for pass 1.
var sgrPattern = regexp.MustCompile(`\x1b\[([0-9;]*)m`)

// stripANSI removes every SGR escape sequence from a line.
func stripANSI(line string) string {
	return sgrPattern.ReplaceAllString(line, "")
}

// hasDimCode reports whether any SGR sequence on the line carries
// parameter 2.
func hasDimCode(line string) bool {
	for _, m := range sgrPattern.FindAllStringSubmatch(line, -1) {
		for _, param := range strings.Split(m[1], ";") {
			if param == "2" {
				return true
			}
		}
	}
	return false
}
