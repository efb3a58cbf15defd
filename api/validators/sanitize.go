package validators

import "strings"

const maxEmailLen = 254

// SanitizeString trims whitespace and caps the length in bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}
