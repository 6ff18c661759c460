package domain

import (
	"regexp"
	"strings"
)

// HeaderWindow is how many kept lines may precede the report header.
const HeaderWindow = 25

var (
	// markupRe matches lines that consist of a single markup tag, e.g. the
	// <pre>...</pre> wrapper around emailed or web-published reports.
	markupRe = regexp.MustCompile(`^<[^<>]+>$`)

	// delimiterRe matches ASCII-art separators such as "=======" or "-----".
	delimiterRe = regexp.MustCompile(`^[=\-*#_~+]{3,}$`)
)

// Line is one kept report line. Index is the 0-based position in the raw
// text; Text has surrounding space trimmed and inner runs collapsed.
type Line struct {
	Index int
	Text  string
}

// Number returns the 1-based line number for diagnostics.
func (l Line) Number() int { return l.Index + 1 }

// Tokens splits the line on whitespace.
func (l Line) Tokens() []string { return strings.Fields(l.Text) }

// Tokenize splits text into normalized lines and drops boilerplate.
func Tokenize(text string) []Line {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]Line, 0, len(raw))
	for i, r := range raw {
		norm := strings.Join(strings.Fields(r), " ")
		if norm == "" || isBoilerplate(norm) {
			continue
		}
		lines = append(lines, Line{Index: i, Text: norm})
	}
	return lines
}

func isBoilerplate(line string) bool {
	return markupRe.MatchString(line) || delimiterRe.MatchString(line)
}

// findHeader returns the position of the "mtinv ... Moment Tensor Solution"
// header within the first window lines.
func findHeader(lines []Line, window int) (int, bool) {
	if window <= 0 {
		window = HeaderWindow
	}
	for i, l := range lines {
		if i >= window {
			break
		}
		lower := strings.ToLower(l.Text)
		if strings.Contains(lower, "mtinv") && strings.Contains(lower, "moment tensor solution") {
			return i, true
		}
	}
	return 0, false
}
