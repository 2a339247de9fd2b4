// Package service applies a fixed-window policy to client keys.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repairhub/internal/ratelimit/metrics"
	"repairhub/internal/ratelimit/models"
	"repairhub/internal/ratelimit/ports"
)

// Limiter checks requests against one policy. Use one Limiter per call site
// that needs distinct limits; limiters may share a store because keys are
// scoped by policy name.
type Limiter struct {
	store   ports.WindowStore
	policy  models.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func New(store ports.WindowStore, policy models.Policy, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("window store is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	l := &Limiter{
		store:  store,
		policy: policy,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Policy returns the policy this limiter enforces.
func (l *Limiter) Policy() models.Policy {
	return l.policy
}

// Check counts one request from clientKey at now and reports whether it is
// within the policy. The first request opens a window [now, now+window); a
// request at or after the window end starts a new one.
func (l *Limiter) Check(ctx context.Context, clientKey string, now time.Time) (*models.RateLimitResult, error) {
	w, err := l.store.Increment(ctx, models.ClientKey(l.policy.Name, clientKey), now, l.policy.Window)
	if err != nil {
		l.metrics.IncStoreError(l.policy.Name)
		return nil, fmt.Errorf("check rate limit %s: %w", l.policy.Name, err)
	}

	result := models.Decide(l.policy, w, now)
	l.metrics.ObserveCheck(l.policy.Name, result.Allowed)
	return result, nil
}

// Reset clears the counter of a client under this policy.
func (l *Limiter) Reset(ctx context.Context, clientKey string) error {
	return l.store.Reset(ctx, models.ClientKey(l.policy.Name, clientKey))
}
