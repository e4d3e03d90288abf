package validators

import "strings"

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeShopDomain normalizes a shop domain from a query string: trimmed,
// lowercased, trailing dot stripped, capped at the column width.
func SanitizeShopDomain(input string) string {
	domain := strings.ToLower(SanitizeString(input, 255))
	return strings.TrimSuffix(domain, ".")
}
