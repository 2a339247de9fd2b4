// Package strings parses list-valued configuration.
package strings

import "strings"

// SplitList splits value on sep into trimmed, non-empty items, keeping the
// first occurrence of duplicates in their original order.
//
//	SplitList("https://a.com, https://b.com,,https://a.com", ",")
//	// []string{"https://a.com", "https://b.com"}
func SplitList(value, sep string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, sep)
	seen := make(map[string]struct{}, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
