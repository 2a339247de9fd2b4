// Package observability provides audit logging helpers for the ratelimit module.
package observability

import (
	"context"
	"log/slog"

	"repairhub/internal/ratelimit/ports"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/requestcontext"
)

// LogAudit logs a security event and records it on the audit trail.
// Attributes are key/value pairs; "ip", "user_id" and "user_role" populate
// the matching event fields and the rest become details.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher ports.AuditPublisher, action string, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)

	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}

	args := append(attrList, "event", action, "log_type", "audit")

	if logger != nil {
		logger.WarnContext(ctx, action, args...)
	}

	if publisher == nil {
		return
	}

	fields, details := split(attrList)
	rec := audit.Record{
		Action:    action,
		UserID:    fields["user_id"],
		UserRole:  fields["user_role"],
		Resource:  audit.ResourceSecurity,
		Details:   details,
		IPAddress: fields["ip"],
		Status:    audit.StatusFailure,
	}
	if _, err := publisher.Append(ctx, rec); err != nil && logger != nil {
		// The denial already happened; losing its audit record is reported, not fatal.
		logger.ErrorContext(ctx, "failed to record security audit event", "event", action, "error", err)
	}
}

var fieldKeys = map[string]bool{"ip": true, "user_id": true, "user_role": true}

// split separates event fields from free-form details. Non-string keys and a
// trailing key without a value are dropped.
func split(attrList []any) (fields map[string]string, details map[string]any) {
	fields = map[string]string{}
	details = map[string]any{}
	for i := 0; i+1 < len(attrList); i += 2 {
		k, ok := attrList[i].(string)
		if !ok {
			continue
		}
		if fieldKeys[k] {
			if v, ok := attrList[i+1].(string); ok {
				fields[k] = v
			}
			continue
		}
		details[k] = attrList[i+1]
	}
	return fields, details
}
