package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hemodash/hemodash/internal/platform/httpx"
	"github.com/hemodash/hemodash/internal/shared"
)

// Session keys holding the authenticated user's scope.
const (
	SessionEmailKey  = "user_email"
	SessionRoleKey   = "user_role"
	SessionRegionKey = "user_region"
	SessionSiteKey   = "user_site"
)

type userContextKey struct{}

// ContextWithUser stores the resolved user in context.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the user stored by RequireRole, if any.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

// StoreUser writes user into the session.
func StoreUser(sess *shared.Session, user *User) {
	if sess == nil || user == nil {
		return
	}
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	sess.Set(SessionEmailKey, user.Email)
	sess.Set(SessionRoleKey, string(user.Role))
	sess.Set(SessionRegionKey, user.Region)
	sess.Set(SessionSiteKey, user.Site)
}

// UserFromSession rebuilds the user from session values. It returns nil for
// anonymous sessions.
func UserFromSession(sess *shared.Session) *User {
	if sess == nil {
		return nil
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &User{
		ID:     id,
		Email:  sess.Get(SessionEmailKey),
		Role:   ParseRole(sess.Get(SessionRoleKey)),
		Region: sess.Get(SessionRegionKey),
		Site:   sess.Get(SessionSiteKey),
	}
}

// Middleware wires role checks for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireRole admits sessions whose user holds a recognized role and, when
// roles are given, one of them. The user is placed in the request context.
// Sessions with an unrecognized role are refused even though Scope would
// show them everything.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFromSession(shared.SessionFromContext(r.Context()))
			if user == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			if !user.Role.Known() || !hasRole(user.Role, roles) {
				if m.Logger != nil {
					m.Logger.Warn("rbac role rejected", slog.Int64("user_id", user.ID), slog.String("role", string(user.Role)), slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

func hasRole(role Role, allowed []Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}
