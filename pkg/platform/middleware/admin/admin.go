package admin

import (
	"log/slog"
	"net/http"

	request "repairhub/pkg/platform/middleware/request"
	"repairhub/pkg/requestcontext"
)

// RoleAdmin is the operator role allowed on the admin surface.
const RoleAdmin = "admin"

// RequireRole admits only requests whose authenticated actor carries role.
// It must run after auth.RequireAuth.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.UserRole(ctx) != role {
				logger.WarnContext(ctx, "forbidden - insufficient role",
					"user_id", requestcontext.UserID(ctx),
					"required_role", role,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"operator role required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
