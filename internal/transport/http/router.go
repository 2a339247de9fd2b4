// Package httptransport assembles the HTTP surface: request plumbing, the
// security gates and the operator routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithandler "repairhub/internal/audit/handler"
	authhandler "repairhub/internal/auth/handler"
	"repairhub/internal/cors"
	"repairhub/internal/platform/metrics"
	rlhandler "repairhub/internal/ratelimit/handler"
	rlmw "repairhub/internal/ratelimit/middleware"
	"repairhub/pkg/platform/httputil"
	"repairhub/pkg/platform/middleware/admin"
	authmw "repairhub/pkg/platform/middleware/auth"
	"repairhub/pkg/platform/middleware/metadata"
	request "repairhub/pkg/platform/middleware/request"
	"repairhub/pkg/platform/middleware/requesttime"
)

// HealthCheck reports one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps are the constructed components the router mounts. Optional fields may
// be nil; their routes are then not mounted.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	CORS    *cors.Gate

	// ClientIP resolves the caller behind trusted proxies; nil uses the
	// loopback and private defaults.
	ClientIP *metadata.Resolver

	// APILimit applies to every route; AuthLimit additionally guards login.
	APILimit  *rlmw.Middleware
	AuthLimit *rlmw.Middleware

	Tokens      authmw.JWTValidator
	Revocations authmw.TokenRevocationChecker

	Auth           *authhandler.Handler
	Audit          *audithandler.Handler
	RateLimitAdmin *rlhandler.Handler

	Health map[string]HealthCheck
}

// NewRouter wires all endpoints. Gates run before any handler: CORS first so
// a foreign origin never consumes rate-limit budget.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	if d.ClientIP != nil {
		r.Use(d.ClientIP.Middleware)
	} else {
		r.Use(metadata.ClientMetadata)
	}
	r.Use(requesttime.Middleware)
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	if d.CORS != nil {
		r.Use(d.CORS.Handler)
	}
	if d.APILimit != nil {
		r.Use(d.APILimit.RateLimit())
	}

	r.Get("/health", healthHandler(d.Health))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	if d.Auth != nil {
		r.Group(func(r chi.Router) {
			if d.AuthLimit != nil {
				r.Use(d.AuthLimit.RateLimit())
			}
			d.Auth.RegisterPublic(r)
		})
	}

	if d.Tokens != nil {
		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(d.Tokens, d.Revocations, d.Logger))
			if d.Auth != nil {
				d.Auth.RegisterAuthenticated(r)
			}

			r.Group(func(r chi.Router) {
				r.Use(admin.RequireRole(admin.RoleAdmin, d.Logger))
				if d.Audit != nil {
					d.Audit.RegisterAdmin(r)
				}
				if d.RateLimitAdmin != nil {
					d.RateLimitAdmin.RegisterAdmin(r)
				}
			})
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
