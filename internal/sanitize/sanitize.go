// Package sanitize neutralizes free-text input before it is stored or echoed.
package sanitize

import (
	"regexp"
	"strings"
)

// DefaultMaxLength bounds free-text fields when the caller has no tighter limit.
const DefaultMaxLength = 1000

var encoder = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Input trims s, truncates it to maxLen runes and entity-encodes the
// characters < > " '. Content is kept but rendered inert. A maxLen of zero or
// less means DefaultMaxLength.
func Input(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(truncate(s, maxLen))
	return encoder.Replace(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i]
		}
		n++
	}
	return s
}

var maliciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*/?\s*script\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)<\s*/?\s*iframe\b`),
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bexpression\s*\(`),
}

// CheckMalicious reports whether s carries a known dangerous-content
// signature. It is a heuristic; output encoding is still required.
func CheckMalicious(s string) bool {
	for _, p := range maliciousPatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
