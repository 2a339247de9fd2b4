// Package handler serves the operator view of the audit trail.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"repairhub/internal/validation"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/httputil"
	"repairhub/pkg/requestcontext"
)

const (
	// MaxQueryLimit caps a single page.
	MaxQueryLimit   = 1000
	maxFilterLength = 128
	paramAction     = "action"
	paramUserID     = "userId"
	paramStartDate  = "startDate"
	paramEndDate    = "endDate"
	paramLimit      = "limit"
)

// Querier runs a filter against the trail.
type Querier interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Event, error)
}

type Handler struct {
	querier Querier
	logger  *slog.Logger
}

func New(querier Querier, logger *slog.Logger) *Handler {
	return &Handler{querier: querier, logger: logger}
}

// RegisterAdmin mounts the operator routes. Callers wrap r with admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/audit", h.HandleList)
}

type listResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
	Limit  int           `json:"limit"`
}

// HandleList returns the newest events matching the query parameters.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, problems := ParseFilter(r.URL.Query())
	if err := problems.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.querier.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "audit trail queried",
		"operator", requestcontext.UserID(ctx),
		"action_filter", filter.Action,
		"user_filter", filter.UserID,
		"results", len(events),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, &listResponse{
		Events: events,
		Count:  len(events),
		Limit:  filter.EffectiveLimit(),
	})
}

// ParseFilter converts query parameters into a filter, collecting every
// malformed parameter instead of stopping at the first.
func ParseFilter(q url.Values) (audit.Filter, validation.FieldErrors) {
	problems := validation.FieldErrors{}
	var f audit.Filter

	f.Action = q.Get(paramAction)
	problems.Check(len(f.Action) <= maxFilterLength, paramAction, "must be at most 128 characters")
	f.UserID = q.Get(paramUserID)
	problems.Check(len(f.UserID) <= maxFilterLength, paramUserID, "must be at most 128 characters")

	f.StartDate = parseDate(q.Get(paramStartDate), paramStartDate, problems)
	f.EndDate = parseDate(q.Get(paramEndDate), paramEndDate, problems)
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		problems.Add(paramEndDate, "must not be before startDate")
	}

	if raw := q.Get(paramLimit); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			problems.Add(paramLimit, "must be an integer")
		case n < 1 || n > MaxQueryLimit:
			problems.Add(paramLimit, "must be between 1 and 1000")
		default:
			f.Limit = n
		}
	}
	return f, problems
}

func parseDate(raw, field string, problems validation.FieldErrors) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		problems.Add(field, "must be an RFC 3339 timestamp")
		return nil
	}
	return &t
}
