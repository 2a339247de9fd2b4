// Package email holds helpers for working with address strings.
package email

import (
	"strings"
	"unicode"
)

// HasAddressShape reports whether s looks like local@domain.tld: exactly one
// '@', no whitespace, a non-empty local part and a domain with an inner dot.
func HasAddressShape(s string) bool {
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return false
	}
	dot := strings.LastIndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}
	return true
}
