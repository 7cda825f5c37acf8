package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"gorm.io/gorm"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/config"
	"warehouse-mro/backend/models"
	"warehouse-mro/backend/notify"
	"warehouse-mro/frontend/templates"
)

const (
	sessionName = "session"

	// Session value keys. pendingTwoFAKey holds the account id between
	// first-factor success and second-factor completion; lastActivityKey
	// carries the sliding-expiry stamp as UTC unix seconds.
	userIDKey       = "user_id"
	lastActivityKey = "last_activity"
	pendingTwoFAKey = "pending_2fa_user_id"
)

var Store *sessions.CookieStore

// InitSession configures the cookie store from config. The secret is
// mandatory and must be at least 32 characters.
func InitSession() error {
	secret := config.C.Session.Secret
	if secret == "" {
		return errors.New("session secret is not configured (set SESSION_SECRET)")
	}
	if len(secret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	Store = sessions.NewCookieStore([]byte(secret))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(config.C.Session.CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   config.C.TLS.Enabled,
	}
	return nil
}

// Auth bundles the login, registration, 2FA and role-management flows with
// their injected collaborators. Constructing it explicitly (rather than
// reaching for ambient globals) is what makes the clock and notifier
// swappable in tests.
type Auth struct {
	DB       *gorm.DB
	Clock    auth.Clock
	Lockout  *auth.Lockout
	Notifier notify.Notifier
	Issuer   string
}

func NewAuth(db *gorm.DB, clock auth.Clock, notifier notify.Notifier) *Auth {
	return &Auth{
		DB:       db,
		Clock:    clock,
		Lockout:  auth.NewLockout(clock, config.C.Security.MaxFailedAttempts, config.C.Security.LockoutDuration),
		Notifier: notifier,
		Issuer:   config.C.Security.TOTPIssuer,
	}
}

// CurrentUser resolves the authenticated account from the session, or nil.
func (h *Auth) CurrentUser(r *http.Request) *models.User {
	session, err := Store.Get(r, sessionName)
	if err != nil {
		return nil
	}
	id, ok := session.Values[userIDKey].(uint)
	if !ok {
		return nil
	}
	var user models.User
	if err := h.DB.First(&user, id).Error; err != nil {
		return nil
	}
	return &user
}

func addFlash(w http.ResponseWriter, r *http.Request, category, message string) {
	session, _ := Store.Get(r, sessionName)
	session.AddFlash(templates.Flash{Message: message, Category: category})
	session.Save(r, w)
}

// popFlashes drains pending flash messages for rendering.
func popFlashes(w http.ResponseWriter, r *http.Request) []templates.Flash {
	session, _ := Store.Get(r, sessionName)
	raw := session.Flashes()
	if len(raw) > 0 {
		session.Save(r, w)
	}
	flashes := make([]templates.Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(templates.Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}

func flashRedirect(w http.ResponseWriter, r *http.Request, category, message, target string) {
	addFlash(w, r, category, message)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// storageFailure is the fatal-for-the-request path: surface a generic
// message, abort, persist nothing further.
func storageFailure(w http.ResponseWriter, r *http.Request, target string) {
	flashRedirect(w, r, "danger", "Something went wrong. Please try again.", target)
}
