package testutil

import (
	"net/http"
	"time"

	"repairhub/pkg/requestcontext"
)

// WithActor attaches an authenticated operator to the request context.
// This simulates what the auth middleware does for a verified bearer token.
func WithActor(req *http.Request, userID, role string) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), userID, role))
}

// WithClient attaches client metadata the way the metadata middleware would.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithOrigin sets the Origin header a browser would send.
func WithOrigin(req *http.Request, origin string) *http.Request {
	req.Header.Set("Origin", origin)
	return req
}

// WithBearer sets an operator bearer token.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
