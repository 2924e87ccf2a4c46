package guard

import (
	"log/slog"
	"net/http"

	"github.com/rentops/rentops/internal/observability"
	"github.com/rentops/rentops/internal/platform/httpx"
	"github.com/rentops/rentops/internal/session"
)

// Middleware wires grant checks in front of HTTP handlers, the server-side
// twin of the action guard's execution-time check.
type Middleware struct {
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Require ensures the request's session holds the module/action grant.
func (m Middleware) Require(module, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := session.StoreFromContext(r.Context())
			if store == nil || !store.Active() {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !store.HasGrant(module, action) {
				if m.Logger != nil {
					m.Logger.Info("authorization denied",
						slog.String("module", module), slog.String("action", action))
				}
				if m.Metrics != nil {
					m.Metrics.AuthzDenied(module, action)
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden",
					"missing permission "+module+":"+action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession only checks that some identity is logged in.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store := session.StoreFromContext(r.Context())
		if store == nil || !store.Active() {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
