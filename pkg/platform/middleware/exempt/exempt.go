// Package exempt decides which requests bypass the security gates.
package exempt

import "net/http"

// Predicate reports whether a request skips a gate entirely.
type Predicate func(r *http.Request) bool

// Paths exempts requests whose URL path equals one of paths.
func Paths(paths ...string) Predicate {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// Default exempts the health and metrics endpoints.
func Default() Predicate {
	return Paths("/health", "/metrics")
}

// None exempts nothing.
func None() Predicate {
	return func(*http.Request) bool { return false }
}
