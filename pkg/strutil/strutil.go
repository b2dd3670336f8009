// Package strutil provides shared string utilities for the xssed codebase.
package strutil

import "unicode/utf8"

// Truncate returns s cut to maxLen runes. If truncated, a "..." suffix
// is appended (included in maxLen). Returns s unchanged if
// utf8.RuneCountInString(s) <= maxLen.
// Safe for maxLen <= 0 (returns empty string).
// This function is rune-aware and never produces invalid UTF-8.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runeCount := utf8.RuneCountInString(s)
	if runeCount <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

// Snippet returns the slice of s centered on the byte range [pos, pos+n)
// with up to radius bytes of surrounding content on each side. Used for
// capturing evidence windows around reflected markers.
func Snippet(s string, pos, n, radius int) string {
	if pos < 0 || pos >= len(s) || n < 0 {
		return ""
	}
	start := pos - radius
	if start < 0 {
		start = 0
	}
	end := pos + n + radius
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}
