package handlers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"warehouse-mro/backend/database"
	"warehouse-mro/backend/models"
	"warehouse-mro/frontend/templates"
)

// ValidateTOTPCode checks a code against a secret. totp.Validate allows one
// time step of clock skew either way.
func ValidateTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}

// provisioningKey rebuilds the otpauth key for an account's stored secret,
// for the QR code and the authenticator link.
func (h *Auth) provisioningKey(user *models.User) (*otp.Key, error) {
	v := url.Values{}
	v.Set("secret", user.TwoFASecret)
	v.Set("issuer", h.Issuer)
	raw := fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(h.Issuer), url.PathEscape(user.Username), v.Encode())
	return otp.NewKeyFromURL(raw)
}

func qrCodePNG(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// TwoFASetupPage starts (or resumes) 2FA setup. A fresh secret is generated
// and persisted without enabling 2FA; enabling is the separate commit step
// below, so a mistyped or unscanned secret can never lock the user out.
func (h *Auth) TwoFASetupPage(w http.ResponseWriter, r *http.Request) {
	user := h.CurrentUser(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	if user.TwoFAEnabled {
		templates.TwoFASetup("", "", "", true, popFlashes(w, r)).Render(r.Context(), w)
		return
	}

	if user.TwoFASecret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      h.Issuer,
			AccountName: user.Username,
		})
		if err != nil {
			slog.Error("failed to generate TOTP secret", "source", "2fa",
				"user_id", user.ID, "error", err.Error())
			http.Error(w, "Failed to generate 2FA secret", http.StatusInternalServerError)
			return
		}
		user.TwoFASecret = key.Secret()
		if err := database.SaveUser(h.DB, user); err != nil {
			slog.Error("failed to store TOTP secret", "source", "2fa",
				"user_id", user.ID, "error", err.Error())
			storageFailure(w, r, "/profile")
			return
		}
	}

	key, err := h.provisioningKey(user)
	if err != nil {
		slog.Error("failed to build provisioning key", "source", "2fa",
			"user_id", user.ID, "error", err.Error())
		http.Error(w, "Failed to build provisioning URI", http.StatusInternalServerError)
		return
	}
	qr, err := qrCodePNG(key)
	if err != nil {
		slog.Error("failed to render QR code", "source", "2fa",
			"user_id", user.ID, "error", err.Error())
		http.Error(w, "Failed to render QR code", http.StatusInternalServerError)
		return
	}

	templates.TwoFASetup(qr, user.TwoFASecret, key.URL(), false, popFlashes(w, r)).Render(r.Context(), w)
}

// TwoFAEnable commits 2FA after one valid code against the unconfirmed
// secret. An incorrect code changes nothing; the user simply retries.
func (h *Auth) TwoFAEnable(w http.ResponseWriter, r *http.Request) {
	user := h.CurrentUser(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if user.TwoFASecret == "" {
		flashRedirect(w, r, "warning", "Start two-factor setup first.", "/2fa/setup")
		return
	}
	if user.TwoFAEnabled {
		flashRedirect(w, r, "info", "Two-factor authentication is already enabled.", "/2fa/setup")
		return
	}

	if !ValidateTOTPCode(user.TwoFASecret, r.FormValue("code")) {
		slog.Warn("2FA enable failed: invalid code", "source", "2fa", "user_id", user.ID)
		flashRedirect(w, r, "danger", "Invalid code. Please try again.", "/2fa/setup")
		return
	}

	user.TwoFAEnabled = true
	if err := database.SaveUser(h.DB, user); err != nil {
		slog.Error("failed to enable 2FA", "source", "2fa",
			"user_id", user.ID, "error", err.Error())
		storageFailure(w, r, "/2fa/setup")
		return
	}

	slog.Info("2FA enabled", "source", "2fa", "user_id", user.ID)
	flashRedirect(w, r, "success", "Two-factor authentication enabled.", "/profile")
}

// TwoFADisable turns 2FA off after the current password is re-entered.
func (h *Auth) TwoFADisable(w http.ResponseWriter, r *http.Request) {
	user := h.CurrentUser(r)
	if user == nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}

	password := r.FormValue("current_password")
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		slog.Warn("2FA disable failed: wrong password", "source", "2fa", "user_id", user.ID)
		flashRedirect(w, r, "danger", "Current password is incorrect.", "/2fa/setup")
		return
	}

	user.TwoFAEnabled = false
	user.TwoFASecret = ""
	if err := database.SaveUser(h.DB, user); err != nil {
		slog.Error("failed to disable 2FA", "source", "2fa",
			"user_id", user.ID, "error", err.Error())
		storageFailure(w, r, "/2fa/setup")
		return
	}

	slog.Info("2FA disabled", "source", "2fa", "user_id", user.ID)
	flashRedirect(w, r, "success", "Two-factor authentication disabled.", "/profile")
}

// pendingTwoFAUser resolves the account parked between first and second
// factor, or nil when no challenge is pending.
func (h *Auth) pendingTwoFAUser(r *http.Request) *models.User {
	session, _ := Store.Get(r, sessionName)
	id, ok := session.Values[pendingTwoFAKey].(uint)
	if !ok {
		return nil
	}
	user, err := database.FindUserByID(h.DB, id)
	if err != nil {
		return nil
	}
	return user
}

func (h *Auth) TwoFAVerifyPage(w http.ResponseWriter, r *http.Request) {
	if h.pendingTwoFAUser(r) == nil {
		flashRedirect(w, r, "warning", "No pending two-factor challenge.", "/auth/login")
		return
	}
	templates.TwoFAVerify(popFlashes(w, r)).Render(r.Context(), w)
}

// TwoFAVerify completes a pending login. An incorrect code leaves the
// pending state intact so the user can retry.
func (h *Auth) TwoFAVerify(w http.ResponseWriter, r *http.Request) {
	user := h.pendingTwoFAUser(r)
	if user == nil {
		flashRedirect(w, r, "warning", "No pending two-factor challenge.", "/auth/login")
		return
	}

	if !ValidateTOTPCode(user.TwoFASecret, r.FormValue("code")) {
		slog.Warn("2FA verification failed: invalid code", "source", "2fa", "user_id", user.ID)
		flashRedirect(w, r, "danger", "Invalid code. Please try again.", "/auth/2fa/verify")
		return
	}

	slog.Info("2FA verification successful", "source", "2fa", "user_id", user.ID)
	h.finalizeLogin(w, r, user)
}
