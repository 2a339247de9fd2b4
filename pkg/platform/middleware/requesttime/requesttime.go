// Package requesttime pins one "now" per HTTP request, so the rate limiter
// and the audit trail agree on when a request happened.
package requesttime

import (
	"net/http"
	"time"

	"repairhub/pkg/requestcontext"
)

// Middleware stamps requests with the wall clock.
var Middleware = New(time.Now)

// New stamps each request with now() taken once, before the next handler runs.
func New(now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), now())))
		})
	}
}
