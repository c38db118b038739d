package metrics

import "strings"

// normalizeLabel keeps empty values from producing a blank label.
func normalizeLabel(value string) string {
	if value = strings.TrimSpace(value); value == "" {
		return "unknown"
	}
	return value
}
