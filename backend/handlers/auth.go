package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/database"
	"warehouse-mro/backend/models"
	"warehouse-mro/frontend/templates"
)

func (h *Auth) LoginPage(w http.ResponseWriter, r *http.Request) {
	templates.Login(popFlashes(w, r)).Render(r.Context(), w)
}

func (h *Auth) RegisterPage(w http.ResponseWriter, r *http.Request) {
	templates.Register(popFlashes(w, r)).Render(r.Context(), w)
}

// Login runs the full first-factor flow: lookup, lockout gate, credential
// check, email-confirmation gate, then either the 2FA challenge or a session.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	user, err := database.FindUserByUsername(h.DB, username)
	if err != nil {
		slog.Warn("login failed: unknown user", "source", "auth", "username", username)
		flashRedirect(w, r, "danger", "Invalid username or password.", "/auth/login")
		return
	}

	// The lockout gate runs strictly before the credential check and before
	// any session state is touched.
	user, state, err := h.lockoutGate(user.ID)
	if err != nil {
		slog.Error("login failed: could not evaluate lockout state", "source", "auth",
			"username", username, "error", err.Error())
		storageFailure(w, r, "/auth/login")
		return
	}
	if state.Locked {
		minutes := auth.RemainingMinutes(state.Remaining)
		slog.Warn("login rejected: account locked", "source", "auth",
			"user_id", user.ID, "minutes_remaining", minutes)
		flashRedirect(w, r, "danger",
			fmt.Sprintf("Account locked. Try again in %d minute(s).", minutes), "/auth/login")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		nowLocked := false
		err := h.DB.Transaction(func(tx *gorm.DB) error {
			fresh, err := database.FindUserByID(tx, user.ID)
			if err != nil {
				return err
			}
			nowLocked = h.Lockout.RecordFailure(fresh)
			return database.SaveUser(tx, fresh)
		})
		if err != nil {
			slog.Error("login failed: could not record attempt", "source", "auth",
				"user_id", user.ID, "error", err.Error())
			storageFailure(w, r, "/auth/login")
			return
		}
		if nowLocked {
			slog.Warn("account locked after repeated failures", "source", "auth", "user_id", user.ID)
			flashRedirect(w, r, "danger", "Too many failed attempts. Account locked temporarily.", "/auth/login")
			return
		}
		slog.Warn("login failed: invalid password", "source", "auth", "user_id", user.ID)
		flashRedirect(w, r, "danger", "Invalid username or password.", "/auth/login")
		return
	}

	// Successful credential check resets the failure counter.
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		fresh, err := database.FindUserByID(tx, user.ID)
		if err != nil {
			return err
		}
		h.Lockout.Reset(fresh)
		if err := database.SaveUser(tx, fresh); err != nil {
			return err
		}
		user = fresh
		return nil
	})
	if err != nil {
		slog.Error("login failed: could not reset lockout state", "source", "auth",
			"user_id", user.ID, "error", err.Error())
		storageFailure(w, r, "/auth/login")
		return
	}

	if !user.EmailConfirmed {
		slog.Warn("login rejected: email not confirmed", "source", "auth", "user_id", user.ID)
		flashRedirect(w, r, "warning", "Please confirm your email address before signing in.", "/auth/login")
		return
	}

	if user.TwoFAEnabled {
		session, _ := Store.Get(r, sessionName)
		session.Values[pendingTwoFAKey] = user.ID
		session.Save(r, w)
		http.Redirect(w, r, "/auth/2fa/verify", http.StatusSeeOther)
		return
	}

	h.finalizeLogin(w, r, user)
}

// lockoutGate evaluates the lock state on a freshly read row inside one
// transaction. Clearing an expired lock is persisted in the same
// transaction, so it can never write over a concurrent attempt's counter.
func (h *Auth) lockoutGate(id uint) (*models.User, auth.LockState, error) {
	var fresh *models.User
	var state auth.LockState
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		fresh, err = database.FindUserByID(tx, id)
		if err != nil {
			return err
		}
		var expired bool
		state, expired = h.Lockout.Status(fresh)
		if expired {
			return database.SaveUser(tx, fresh)
		}
		return nil
	})
	return fresh, state, err
}

// finalizeLogin creates the authenticated session and stamps last_login.
func (h *Auth) finalizeLogin(w http.ResponseWriter, r *http.Request, user *models.User) {
	session, _ := Store.Get(r, sessionName)
	delete(session.Values, pendingTwoFAKey)
	session.Values[userIDKey] = user.ID
	session.Values[lastActivityKey] = h.Clock.Now().Unix()
	session.Save(r, w)

	// Single-column update: the row may have changed since it was read, and
	// only the login stamp belongs to this writer.
	now := h.Clock.Now()
	user.LastLogin = &now
	if err := h.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("last_login", now).Error; err != nil {
		slog.Error("could not update last_login", "source", "auth",
			"user_id", user.ID, "error", err.Error())
	}

	slog.Info("user logged in", "source", "auth", "user_id", user.ID, "username", user.Username)
	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	password2 := r.FormValue("password2")

	if username == "" || email == "" || password == "" {
		flashRedirect(w, r, "danger", "All fields are required.", "/auth/register")
		return
	}
	if password != password2 {
		flashRedirect(w, r, "danger", "Passwords do not match.", "/auth/register")
		return
	}
	if violations := auth.PasswordViolations(password); len(violations) > 0 {
		for _, v := range violations {
			addFlash(w, r, "danger", v)
		}
		http.Redirect(w, r, "/auth/register", http.StatusSeeOther)
		return
	}
	if _, err := database.FindUserByUsername(h.DB, username); err == nil {
		flashRedirect(w, r, "danger", "Username already taken.", "/auth/register")
		return
	}
	if _, err := database.FindUserByEmail(h.DB, email); err == nil {
		flashRedirect(w, r, "danger", "Email already registered.", "/auth/register")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("registration failed: hash error", "source", "auth", "error", err.Error())
		storageFailure(w, r, "/auth/register")
		return
	}

	user := models.User{
		Username:        username,
		Email:           email,
		Password:        string(hash),
		Role:            auth.RoleUser,
		EmailConfirmed:  false,
		ActivationToken: uuid.NewString(),
	}
	if err := h.DB.Create(&user).Error; err != nil {
		slog.Error("registration failed: db error", "source", "auth", "error", err.Error())
		storageFailure(w, r, "/auth/register")
		return
	}

	// Fire and forget: a delivery failure never rolls back the account.
	h.Notifier.SendActivationLink(user.Email, user.ActivationToken)

	slog.Info("user registered", "source", "auth", "user_id", user.ID, "username", username)
	flashRedirect(w, r, "success", "Account created. Check your email to activate it.", "/auth/login")
}

// Activate consumes a single-use activation token and confirms the email.
func (h *Auth) Activate(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		flashRedirect(w, r, "warning", "Missing activation token.", "/auth/login")
		return
	}

	user, err := database.FindUserByActivationToken(h.DB, token)
	if err != nil {
		flashRedirect(w, r, "danger", "Invalid or already used activation link.", "/auth/login")
		return
	}

	user.EmailConfirmed = true
	user.ActivationToken = ""
	if err := database.SaveUser(h.DB, user); err != nil {
		slog.Error("activation failed: db error", "source", "auth",
			"user_id", user.ID, "error", err.Error())
		storageFailure(w, r, "/auth/login")
		return
	}

	slog.Info("email confirmed", "source", "auth", "user_id", user.ID)
	flashRedirect(w, r, "success", "Email confirmed. You can now sign in.", "/auth/login")
}

// Logout destroys the session unconditionally; repeating it is harmless.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, sessionName)
	if id, ok := session.Values[userIDKey].(uint); ok {
		slog.Info("user logged out", "source", "auth", "user_id", id)
	}
	session.Values = make(map[interface{}]interface{})
	session.AddFlash(templates.Flash{Message: "Signed out.", Category: "info"})
	session.Save(r, w)
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Auth) ProfilePage(w http.ResponseWriter, r *http.Request) {
	user := h.CurrentUser(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	templates.Profile(user, popFlashes(w, r)).Render(r.Context(), w)
}

func (h *Auth) ChangePasswordPage(w http.ResponseWriter, r *http.Request) {
	templates.ChangePassword(popFlashes(w, r)).Render(r.Context(), w)
}

func (h *Auth) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := h.CurrentUser(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	current := r.FormValue("current_password")
	newPassword := r.FormValue("new_password")
	confirm := r.FormValue("confirm_password")

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)) != nil {
		flashRedirect(w, r, "danger", "Current password is incorrect.", "/password")
		return
	}
	// Reuse check via the credential hash, never a plaintext comparison.
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(newPassword)) == nil {
		flashRedirect(w, r, "danger", "New password must differ from the current one.", "/password")
		return
	}
	if newPassword != confirm {
		flashRedirect(w, r, "danger", "Passwords do not match.", "/password")
		return
	}
	if violations := auth.PasswordViolations(newPassword); len(violations) > 0 {
		for _, v := range violations {
			addFlash(w, r, "danger", v)
		}
		http.Redirect(w, r, "/password", http.StatusSeeOther)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("password change failed: hash error", "source", "auth",
			"user_id", user.ID, "error", err.Error())
		storageFailure(w, r, "/password")
		return
	}
	user.Password = string(hash)
	if err := database.SaveUser(h.DB, user); err != nil {
		slog.Error("password change failed: db error", "source", "auth",
			"user_id", user.ID, "error", err.Error())
		storageFailure(w, r, "/password")
		return
	}

	slog.Info("password changed", "source", "auth", "user_id", user.ID)
	flashRedirect(w, r, "success", "Password updated.", "/profile")
}
