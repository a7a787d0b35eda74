package review

import (
	"strings"
	"unicode"
)

var lineSeparators = strings.NewReplacer(
	"\r\n", "\n",
	"\r", "\n",
	"\u2028", "\n",
	"\u2029", "\n\n",
)

// Sanitize normalizes line endings and strips control characters other than
// tab and newline so upstream text cannot break the prompt envelope.
func Sanitize(s string) string {
	s = lineSeparators.Replace(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
