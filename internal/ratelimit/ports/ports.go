// Package ports defines shared interfaces for the ratelimit module.
// Interfaces are placed here when consumed by multiple packages to avoid duplication.
package ports

import (
	"context"
	"time"

	"repairhub/internal/ratelimit/models"
	audit "repairhub/pkg/platform/audit"
)

// AuditPublisher records security events on the audit trail.
type AuditPublisher interface {
	Append(ctx context.Context, rec audit.Record) (audit.Event, error)
}

// WindowStore manages fixed-window counters. Increment must apply the whole
// open/reset/count step atomically per key.
type WindowStore interface {
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (models.Window, error)
	Reset(ctx context.Context, key string) error
}
