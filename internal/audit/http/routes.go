package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/rentops/rentops/internal/permissions"
	"github.com/rentops/rentops/internal/session"
)

const rateLimit = 10
const rateWindow = time.Minute

// MountRoutes registers the audit timeline, summary and CSV export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(rateLimit, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.With(h.guard.Require(permissions.ModuleReports, permissions.ActionView)).Group(func(r chi.Router) {
		r.Get("/", h.handleTimeline)
		r.Get("/summary", h.handleSummary)
	})
	r.With(h.guard.Require(permissions.ModuleReports, permissions.ActionExport), limiter).
		Get("/export.csv", h.handleExport)
}

func rateLimitKey(r *http.Request) (string, error) {
	if store := session.StoreFromContext(r.Context()); store != nil {
		if snap, ok := store.Current(); ok && snap.IdentityID != "" {
			return "identity:" + snap.IdentityID, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
