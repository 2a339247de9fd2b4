// Package cors decides which browser origins may call the API and turns that
// decision into an HTTP gate.
package cors

import (
	"fmt"
	"regexp"
	"strings"

	"repairhub/internal/validation"
)

type ruleKind int

const (
	ruleExact ruleKind = iota
	rulePattern
)

type rule struct {
	kind    ruleKind
	exact   string
	pattern *regexp.Regexp
	source  string
}

// AllowList is an immutable set of origin rules. Exact entries and patterns
// are OR-ed; order only affects how soon a match is found.
type AllowList struct {
	exact    map[string]struct{}
	patterns []rule
}

// wildcardLabel is what a '*' in a host wildcard expands to: one or more
// DNS labels.
const wildcardLabel = `[A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)*`

// ParseAllowList compiles configuration entries. An entry wrapped in slashes
// ("/\.example\.com$/") is a regular expression, an entry containing '*' is a
// host wildcard ("https://*.example.com"), anything else is an absolute URL
// that must match exactly.
func ParseAllowList(entries []string) (*AllowList, error) {
	al := &AllowList{exact: make(map[string]struct{}, len(entries))}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		r, err := parseRule(entry)
		if err != nil {
			return nil, err
		}
		if r.kind == ruleExact {
			al.exact[r.exact] = struct{}{}
			continue
		}
		al.patterns = append(al.patterns, r)
	}
	return al, nil
}

func parseRule(entry string) (rule, error) {
	if len(entry) >= 2 && strings.HasPrefix(entry, "/") && strings.HasSuffix(entry, "/") {
		expr := entry[1 : len(entry)-1]
		re, err := regexp.Compile(expr)
		if err != nil {
			return rule{}, fmt.Errorf("invalid origin pattern %q: %w", entry, err)
		}
		return rule{kind: rulePattern, pattern: re, source: entry}, nil
	}
	if strings.Contains(entry, "*") {
		parts := strings.Split(entry, "*")
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		re := regexp.MustCompile("^" + strings.Join(parts, wildcardLabel) + "$")
		return rule{kind: rulePattern, pattern: re, source: entry}, nil
	}
	exact := strings.TrimSuffix(entry, "/")
	if !validation.URL(exact) {
		return rule{}, fmt.Errorf("invalid origin %q: must be an absolute URL such as https://app.example", entry)
	}
	return rule{kind: ruleExact, exact: exact, source: entry}, nil
}

// IsAllowed reports whether origin may make credentialed cross-origin calls.
// An absent origin is never trusted.
func (al *AllowList) IsAllowed(origin string) bool {
	if al == nil || origin == "" {
		return false
	}
	if _, ok := al.exact[origin]; ok {
		return true
	}
	for _, r := range al.patterns {
		if r.pattern.MatchString(origin) {
			return true
		}
	}
	return false
}

// Len returns the number of rules.
func (al *AllowList) Len() int {
	if al == nil {
		return 0
	}
	return len(al.exact) + len(al.patterns)
}
