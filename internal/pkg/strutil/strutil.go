package strutil

import "unicode/utf8"

// Truncate cuts s to at most limit bytes without splitting a rune, so
// the result is always valid UTF-8.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
