package util

import "strings"

// SanitizeText strips characters that break chunk storage. PDF extraction
// regularly yields NUL bytes and stray control characters, and Postgres
// rejects NUL in text columns outright.
func SanitizeText(s string) string {
	if s == "" {
		return s
	}
	cleaned := strings.Map(func(ch rune) rune {
		switch ch {
		case '\n', '\r', '\t':
			return ch
		}
		if ch < 0x20 {
			return -1
		}
		return ch
	}, s)
	return strings.TrimSpace(cleaned)
}
