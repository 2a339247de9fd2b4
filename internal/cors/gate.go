package cors

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	rscors "github.com/rs/cors"

	"repairhub/pkg/platform/httputil"
	"repairhub/pkg/platform/middleware/exempt"
	"repairhub/pkg/platform/privacy"
	"repairhub/pkg/requestcontext"
)

// maxLoggedOrigin bounds how much of an attacker-supplied header reaches logs.
const maxLoggedOrigin = 128

type deniedResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Gate rejects requests from origins outside the allow-list and hands the
// rest to rs/cors for preflight and response headers.
type Gate struct {
	allow    *AllowList
	exempt   exempt.Predicate
	logger   *slog.Logger
	headers  *rscors.Cors
	rejected prometheus.Counter
}

type Option func(*Gate)

// WithExemption replaces the default exemption predicate.
func WithExemption(p exempt.Predicate) Option {
	return func(g *Gate) {
		g.exempt = p
	}
}

// WithRegisterer registers the rejection counter with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(g *Gate) {
		g.rejected = newRejectedCounter(reg)
	}
}

func newRejectedCounter(reg prometheus.Registerer) prometheus.Counter {
	return promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Name: "repairhub_cors_rejected_total",
		Help: "Requests rejected because their origin is absent or not allowed",
	})
}

func NewGate(allow *AllowList, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		allow:    allow,
		exempt:   exempt.Default(),
		logger:   logger,
		rejected: newRejectedCounter(nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.headers = rscors.New(rscors.Options{
		AllowOriginFunc:  allow.IsAllowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	return g
}

// Handler wraps next with the origin check.
func (g *Gate) Handler(next http.Handler) http.Handler {
	withHeaders := g.headers.Handler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.exempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if !g.allow.IsAllowed(origin) {
			g.rejected.Inc()
			ctx := r.Context()
			g.logger.WarnContext(ctx, "cross-origin request rejected",
				"origin", truncate(origin, maxLoggedOrigin),
				"method", r.Method,
				"path", r.URL.Path,
				"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
			)
			httputil.WriteJSON(w, http.StatusForbidden, &deniedResponse{
				Error:   "origin_not_permitted",
				Message: "Origin not permitted.",
			})
			return
		}

		withHeaders.ServeHTTP(w, r)
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
