package dashboardhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/hemodash/hemodash/internal/platform/httpx"
	"github.com/hemodash/hemodash/internal/rbac"
	"github.com/hemodash/hemodash/internal/shared"
)

// Per-user request budgets, one per rate-limited operation.
const (
	exportLimit = 10
	recordLimit = 30
	syncLimit   = 5
)

// MountRoutes registers the dashboard API. Every route requires a signed-in
// user with a recognised role; forced syncs are limited to administrators.
func (h *Handler) MountRoutes(r chi.Router, guard rbac.Middleware) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(guard.RequireRole())
		gr.Get("/dashboard", h.handleDashboard)
		gr.Get("/dashboard/missing", h.handleMissing)
		gr.Get("/dashboard/day", h.handleDay)
		gr.Get("/sync/status", h.handleStatus)
		gr.With(newLimiter(exportLimit)).Get("/dashboard/export.csv", h.handleCSV)
		gr.With(newLimiter(recordLimit)).Post("/records", h.handleRecord)
	})
	r.Group(func(gr chi.Router) {
		gr.Use(guard.RequireRole(rbac.RoleAdmin, rbac.RoleSuperAdmin))
		gr.With(newLimiter(syncLimit)).Post("/sync", h.handleSync)
	})
}

func newLimiter(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
