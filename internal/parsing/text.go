package parsing

import (
	"regexp"
	"strings"
)

var (
	spaceRun      = regexp.MustCompile(`[ \t\p{Zs}]+`)
	excessBlanks  = regexp.MustCompile(`\n\n\n+`)
	lineEdgeSpace = regexp.MustCompile(`\s*\n\s*`)
)

// CleanText normalizes line endings and whitespace while keeping paragraph breaks.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = strings.ReplaceAll(content, "\u00a0", " ")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}

	result := strings.Join(lines, "\n")
	result = excessBlanks.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// collapseLines joins text split across lines into single-newline separated lines.
func collapseLines(content string) string {
	return strings.TrimSpace(lineEdgeSpace.ReplaceAllString(CleanText(content), "\n"))
}

// singleLine squashes all whitespace, including newlines, to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
