// Package strings holds small string-slice helpers for request parsing.
package strings

import (
	"strings"
)

// DedupeFold trims each value, drops blanks and removes case-insensitive
// duplicates. The first spelling wins and order is preserved, so a batch of
// ids pasted twice or in mixed case resolves to one entry each.
func DedupeFold(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
