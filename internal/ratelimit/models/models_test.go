package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	p := Policy{Name: "test", Window: time.Second, MaxRequests: 3}
	start := time.UnixMilli(0)

	tests := []struct {
		name        string
		count       int
		now         time.Time
		allowed     bool
		remaining   int
		firstDenial bool
		retryAfter  int
	}{
		{"first request", 1, start, true, 2, false, 0},
		{"at limit", 3, start, true, 0, false, 0},
		{"first over limit", 4, start, false, 0, true, 1},
		{"later over limit", 5, start.Add(200 * time.Millisecond), false, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(p, Window{Start: start, Count: tt.count}, tt.now)
			assert.Equal(t, tt.allowed, got.Allowed)
			assert.Equal(t, tt.remaining, got.Remaining)
			assert.Equal(t, tt.firstDenial, got.FirstDenial)
			assert.Equal(t, tt.retryAfter, got.RetryAfter)
			assert.Equal(t, start.Add(time.Second), got.ResetAt)
			assert.Equal(t, 3, got.Limit)
		})
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	p := Policy{Name: "test", Window: 15 * time.Minute, MaxRequests: 1}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := Decide(p, Window{Start: start, Count: 2}, start.Add(14*time.Minute+30*time.Second+100*time.Millisecond))
	assert.Equal(t, 30, got.RetryAfter)
}

func TestPolicyDefaults(t *testing.T) {
	assert.Equal(t, 15*time.Minute, DefaultPolicy().Window)
	assert.Equal(t, 100, DefaultPolicy().MaxRequests)
	assert.Equal(t, 5, AuthPolicy().MaxRequests)
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{Name: "x", Window: 0, MaxRequests: 1}.Validate())
	assert.Error(t, Policy{Name: "x", Window: time.Second}.Validate())
	assert.Error(t, Policy{Window: time.Second, MaxRequests: 1}.Validate())
}

func TestClientKeyEscapesDelimiters(t *testing.T) {
	assert.Equal(t, "rl:auth:10.0.0.1", ClientKey("auth", "10.0.0.1"))
	assert.Equal(t, "rl:auth:__1", ClientKey("auth", "::1"))
	assert.NotEqual(t, ClientKey("a:b", "c"), ClientKey("a", "b:c"))
}
