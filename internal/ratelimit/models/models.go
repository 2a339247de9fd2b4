package models

import (
	"math"
	"time"

	dErrors "repairhub/pkg/domain-errors"
)

const (
	DefaultWindow      = 15 * time.Minute
	DefaultMaxRequests = 100

	AuthMaxRequests = 5
)

// Policy is a fixed-window limit: at most MaxRequests per key within each
// window of length Window, measured from the key's first request.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
}

// DefaultPolicy applies to the general API.
func DefaultPolicy() Policy {
	return Policy{Name: "api", Window: DefaultWindow, MaxRequests: DefaultMaxRequests}
}

// AuthPolicy is the stricter limit for login and credential endpoints.
func AuthPolicy() Policy {
	return Policy{Name: "auth", Window: DefaultWindow, MaxRequests: AuthMaxRequests}
}

// Validate enforces policy invariants.
func (p Policy) Validate() error {
	if p.Name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "policy name cannot be empty")
	}
	if p.Window <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "policy window must be positive")
	}
	if p.MaxRequests <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "policy max requests must be positive")
	}
	return nil
}

// Window is the counter state of one key after a request was counted.
type Window struct {
	Start time.Time
	Count int
}

// End is the first instant outside the window.
func (w Window) End(length time.Duration) time.Time {
	return w.Start.Add(length)
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
	// FirstDenial is true for exactly one denied request per key and window.
	FirstDenial bool `json:"-"`
}

// Decide evaluates a counted window against the policy.
func Decide(p Policy, w Window, now time.Time) *RateLimitResult {
	resetAt := w.End(p.Window)
	result := &RateLimitResult{
		Allowed:   w.Count <= p.MaxRequests,
		Limit:     p.MaxRequests,
		Remaining: max(p.MaxRequests-w.Count, 0),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = max(int(math.Ceil(resetAt.Sub(now).Seconds())), 1)
		result.FirstDenial = w.Count == p.MaxRequests+1
	}
	return result
}
