package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"repairhub/internal/ratelimit/metrics"
	"repairhub/internal/ratelimit/models"
	"repairhub/internal/ratelimit/observability"
	"repairhub/internal/ratelimit/ports"
	audit "repairhub/pkg/platform/audit"
	"repairhub/pkg/platform/httputil"
	"repairhub/pkg/platform/middleware/exempt"
	metadata "repairhub/pkg/platform/middleware/metadata"
	"repairhub/pkg/platform/privacy"
	"repairhub/pkg/requestcontext"
)

type RateLimiter interface {
	Check(ctx context.Context, clientKey string, now time.Time) (*models.RateLimitResult, error)
	Policy() models.Policy
}

// degradable is implemented by stores that can report running on a fallback.
type degradable interface {
	Degraded() bool
}

type Middleware struct {
	limiter        RateLimiter
	logger         *slog.Logger
	exempt         exempt.Predicate
	auditPublisher ports.AuditPublisher
	metrics        *metrics.Metrics
	store          degradable
	disabled       bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithExemption replaces the default exemption predicate.
func WithExemption(p exempt.Predicate) Option {
	return func(m *Middleware) {
		m.exempt = p
	}
}

// WithAuditPublisher records the first denial of each window on the trail.
func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(m *Middleware) {
		m.auditPublisher = publisher
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithDegradedReporter sets X-RateLimit-Status: degraded while the store is
// serving from its fallback.
func WithDegradedReporter(store degradable) Option {
	return func(m *Middleware) {
		m.store = store
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
		exempt:  exempt.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled", "policy", limiter.Policy().Name)
	}
	return m
}

// RateLimit limits requests per client IP under the limiter's policy.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}
			if m.exempt(r) {
				m.metrics.IncExempted()
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := metadata.GetClientIP(ctx)
			policy := m.limiter.Policy()

			result, err := m.limiter.Check(ctx, ip, requestcontext.Now(ctx))
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err, "policy", policy.Name, "ip_prefix", privacy.AnonymizeIP(ip))
				next.ServeHTTP(w, r)
				return
			}

			// Headers go out on both outcomes.
			addRateLimitHeaders(w, result)
			if m.store != nil && m.store.Degraded() {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}

			if !result.Allowed {
				if result.FirstDenial {
					observability.LogAudit(ctx, m.logger, m.auditPublisher, audit.ActionRateLimitExceeded,
						"ip", ip,
						"policy", policy.Name,
						"limit", policy.MaxRequests,
						"window_seconds", int(policy.Window.Seconds()),
						"method", r.Method,
						"path", r.URL.Path,
					)
				}
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
