// Package validation holds the pure input checks shared by request handlers.
package validation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"repairhub/pkg/email"
)

const maxEmailLength = 255

var phonePattern = regexp.MustCompile(`^(\+?\d{1,3}[-.]?)?\(?\d{3}\)?[-.]?\d{3}[-.]?\d{4,6}$`)

// Email reports whether s has the local@domain.tld shape and fits in 255 bytes.
func Email(s string) bool {
	if len(s) > maxEmailLength {
		return false
	}
	return email.HasAddressShape(s)
}

// Phone strips whitespace and matches an optional country code followed by
// 3-3-4..6 digit groups.
func Phone(s string) bool {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return phonePattern.MatchString(compact)
}

// URL reports whether s parses as an absolute URL.
func URL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	return u.Host != "" || u.Opaque != ""
}
