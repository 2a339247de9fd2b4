// Package handler exposes operator controls for the rate limiter.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"repairhub/internal/ratelimit/models"
	"repairhub/internal/ratelimit/ports"
	dErrors "repairhub/pkg/domain-errors"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/httputil"
	"repairhub/pkg/requestcontext"
)

const maxBodyBytes = 4 << 10

// Resetter is a limiter whose counters can be cleared.
type Resetter interface {
	Policy() models.Policy
	Reset(ctx context.Context, clientKey string) error
}

type Handler struct {
	limiters       map[string]Resetter
	logger         *slog.Logger
	auditPublisher ports.AuditPublisher
}

type Option func(*Handler)

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(h *Handler) {
		h.auditPublisher = publisher
	}
}

func New(limiters []Resetter, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		limiters: make(map[string]Resetter, len(limiters)),
		logger:   logger,
	}
	for _, l := range limiters {
		h.limiters[l.Policy().Name] = l
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAdmin mounts the operator routes. Callers wrap r with admin auth.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rate-limit/reset", h.HandleReset)
}

// HandleReset clears one client's counter so a locked-out user can retry.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.ResetRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body must be a JSON object with policy and identifier"))
		return
	}
	req.Normalize()
	if problems := req.Validate(); problems != nil {
		httputil.WriteError(w, dErrors.WithFields("invalid reset request", problems))
		return
	}

	limiter, ok := h.limiters[req.Policy]
	if !ok {
		httputil.WriteError(w, dErrors.WithFields("invalid reset request",
			map[string][]string{"policy": {"unknown policy"}}))
		return
	}

	if err := limiter.Reset(ctx, req.Identifier); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit", "policy", req.Policy, "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "rate limit store unavailable"))
		return
	}

	if h.auditPublisher != nil {
		rec := audit.Record{
			Action:     audit.ActionRateLimitReset,
			UserID:     requestcontext.UserID(ctx),
			UserRole:   requestcontext.UserRole(ctx),
			Resource:   audit.ResourceSecurity,
			ResourceID: req.Identifier,
			Details:    map[string]any{"policy": req.Policy},
			IPAddress:  requestcontext.ClientIP(ctx),
			Status:     audit.StatusSuccess,
		}
		if _, err := h.auditPublisher.Append(ctx, rec); err != nil {
			// The reset is already applied; report the missing record loudly.
			h.logger.ErrorContext(ctx, "failed to record rate limit reset",
				"policy", req.Policy, "error", err)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, &models.ResetResponse{
		Policy:     req.Policy,
		Identifier: req.Identifier,
		Reset:      true,
	})
}
