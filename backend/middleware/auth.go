package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/models"
	"warehouse-mro/frontend/templates"
)

const (
	sessionName     = "session"
	lastActivityKey = "last_activity"
	pendingTwoFAKey = "pending_2fa_user_id"
)

// SessionGuard enforces the sliding inactivity window on every authenticated
// request and keeps half-authenticated (pending 2FA) sessions on the verify
// page. CurrentUser is injected so tests can stub account resolution.
type SessionGuard struct {
	Store       *sessions.CookieStore
	Clock       auth.Clock
	IdleTimeout time.Duration
	CurrentUser func(r *http.Request) *models.User
}

// RequireAuth wraps a handler so only fully authenticated, non-idle
// sessions reach it.
func (g *SessionGuard) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return g.withUser(func(w http.ResponseWriter, r *http.Request, _ *models.User) {
		next(w, r)
	})
}

// RequireOwner additionally restricts a handler to owner accounts.
func (g *SessionGuard) RequireOwner(next http.HandlerFunc) http.HandlerFunc {
	return g.withUser(func(w http.ResponseWriter, r *http.Request, user *models.User) {
		if user.Role != auth.RoleOwner {
			session, _ := g.Store.Get(r, sessionName)
			session.AddFlash(templates.Flash{
				Message:  "You do not have permission to do that.",
				Category: "danger",
			})
			session.Save(r, w)
			http.Redirect(w, r, "/profile", http.StatusSeeOther)
			return
		}
		next(w, r)
	})
}

// withUser resolves the account once, enforces the sliding idle window and
// hands the resolved user on, so stacked checks share a single lookup.
func (g *SessionGuard) withUser(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := g.Store.Get(r, sessionName)

		if _, pending := session.Values[pendingTwoFAKey].(uint); pending {
			http.Redirect(w, r, "/auth/2fa/verify", http.StatusSeeOther)
			return
		}

		user := g.CurrentUser(r)
		if user == nil {
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		}

		now := g.Clock.Now().Unix()
		last, ok := session.Values[lastActivityKey].(int64)
		switch {
		case !ok:
			// First stamped request: initialize, no expiry check.
			session.Values[lastActivityKey] = now
			session.Save(r, w)
		case now-last > int64(g.IdleTimeout.Seconds()):
			session.Values = make(map[interface{}]interface{})
			session.AddFlash(templates.Flash{
				Message:  "Your session expired due to inactivity.",
				Category: "warning",
			})
			if err := session.Save(r, w); err != nil {
				slog.Warn("could not write expired session", "source", "session", "error", err.Error())
			}
			http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
			return
		default:
			session.Values[lastActivityKey] = now
			session.Save(r, w)
		}

		next(w, r, user)
	}
}
