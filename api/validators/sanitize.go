package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input and cuts it to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && utf8.RuneCountInString(trimmed) > maxLen {
		return string([]rune(trimmed)[:maxLen])
	}
	return trimmed
}

// SanitizeToken keeps identifier-safe characters from a header value and
// returns "" when anything else is present or the value exceeds maxLen.
func SanitizeToken(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || (maxLen > 0 && len(trimmed) > maxLen) {
		return ""
	}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return ""
		}
	}
	return trimmed
}
