// Package stringutil provides helpers for rendering strings in narrow columns.
package stringutil

import "strings"

// Ellipsis flattens s onto one line and shortens it to at most maxLength
// runes, ending in "..." when truncated. With maxLength of 3 or less the
// result is cut without an ellipsis.
func Ellipsis(s string, maxLength int) string {
	if maxLength < 0 {
		return ""
	}

	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")

	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	return string(runes[:maxLength-3]) + "..."
}
