package handlers

import (
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warehouse-mro/backend/config"
	"warehouse-mro/backend/database"
	"warehouse-mro/backend/models"
)

func TestInitSession_FailsOnEmptySecret(t *testing.T) {
	if err := config.Load(); err != nil {
		t.Fatal(err)
	}
	config.C.Session.Secret = ""
	if err := InitSession(); err == nil {
		t.Error("expected error for empty session secret")
	}
}

func TestInitSession_FailsOnShortSecret(t *testing.T) {
	if err := config.Load(); err != nil {
		t.Fatal(err)
	}
	config.C.Session.Secret = "too-short"
	if err := InitSession(); err == nil {
		t.Error("expected error for short session secret")
	}
}

func TestInitSession_AcceptsStrongSecret(t *testing.T) {
	os.Setenv("SESSION_SECRET", "this-secret-is-definitely-32-chars-or-more")
	defer os.Unsetenv("SESSION_SECRET")
	if err := config.Load(); err != nil {
		t.Fatal(err)
	}
	if err := InitSession(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if Store == nil {
		t.Fatal("store not initialized")
	}
}

func TestLogin_UnknownUser_GenericFailure(t *testing.T) {
	h, _, _ := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"ghost"},
		"password": {"whatever"},
	}))

	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "Invalid username or password.") {
		t.Error("expected generic failure message")
	}
}

func TestLogin_WrongPassword_IncrementsCounter(t *testing.T) {
	h, _, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       hashFor(t, "Correct1!pass"),
		Role:           "user",
		EmailConfirmed: true,
	})

	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	}))

	redirectTarget(t, rr)
	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 1 {
		t.Errorf("expected 1 failed attempt, got %d", got.FailedAttempts)
	}
	if got.LockedUntil != nil {
		t.Error("account should not be locked after a single failure")
	}
}

func TestLogin_FifthFailure_LocksAccount(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       hashFor(t, "Correct1!pass"),
		Role:           "user",
		EmailConfirmed: true,
		FailedAttempts: 4,
	})

	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"alice"},
		"password": {"wrong"},
	}))

	redirectTarget(t, rr)
	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 5 {
		t.Errorf("expected 5 failed attempts, got %d", got.FailedAttempts)
	}
	if got.LockedUntil == nil {
		t.Fatal("expected account to be locked")
	}
	wantUntil := clock.Now().Add(15 * time.Minute)
	if !got.LockedUntil.Equal(wantUntil) {
		t.Errorf("expected lock until %v, got %v", wantUntil, got.LockedUntil)
	}
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "Too many failed attempts") {
		t.Error("expected lockout message")
	}
}

func TestLogin_WhileLocked_RejectedWithoutIncrement(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	until := clock.Now().Add(10 * time.Minute)
	user := createUser(t, h.DB, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       hashFor(t, "Correct1!pass"),
		Role:           "user",
		EmailConfirmed: true,
		FailedAttempts: 5,
		LockedUntil:    &until,
	})

	// Even the correct password is rejected while the lock holds.
	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"alice"},
		"password": {"Correct1!pass"},
	}))

	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}
	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 5 {
		t.Errorf("counter must not move while locked, got %d", got.FailedAttempts)
	}
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "Account locked. Try again in 10 minute(s).") {
		t.Errorf("expected remaining-minutes message, body: %s", body)
	}
}

func TestLogin_AfterLockExpiry_SucceedsAndResets(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	until := clock.Now().Add(15 * time.Minute)
	user := createUser(t, h.DB, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       hashFor(t, "Correct1!pass"),
		Role:           "user",
		EmailConfirmed: true,
		FailedAttempts: 5,
		LockedUntil:    &until,
	})

	clock.Advance(16 * time.Minute)

	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"alice"},
		"password": {"Correct1!pass"},
	}))

	if loc := redirectTarget(t, rr); loc != "/profile" {
		t.Errorf("expected redirect to /profile, got %s", loc)
	}
	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 0 {
		t.Errorf("expected counter reset, got %d", got.FailedAttempts)
	}
	if got.LockedUntil != nil {
		t.Error("expected lock cleared")
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(clock.Now()) {
		t.Errorf("expected last_login stamped at %v, got %v", clock.Now(), got.LastLogin)
	}
}

func TestLockoutGate_ClearsExpiredLockOnFreshRow(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	until := clock.Now().Add(-1 * time.Minute)
	user := createUser(t, h.DB, models.User{
		Username: "alice", Email: "alice@example.com",
		Password: hashFor(t, "Correct1!pass"), Role: "user", EmailConfirmed: true,
		FailedAttempts: 5, LockedUntil: &until,
		Phone: "555-0100",
	})

	fresh, state, err := h.lockoutGate(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if state.Locked {
		t.Error("expired lock must report unlocked")
	}
	if fresh.FailedAttempts != 0 || fresh.LockedUntil != nil {
		t.Error("gate must hand back the cleared row")
	}

	// The transition is written from the row the transaction read, so the
	// rest of the record stays exactly as stored.
	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 0 || got.LockedUntil != nil {
		t.Error("expected unlock persisted")
	}
	if got.Phone != "555-0100" {
		t.Errorf("unrelated columns must be untouched, got phone %q", got.Phone)
	}
}

func TestLockoutGate_ActiveLockNotPersisted(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	until := clock.Now().Add(10 * time.Minute)
	user := createUser(t, h.DB, models.User{
		Username: "alice", Email: "alice@example.com",
		Password: hashFor(t, "Correct1!pass"), Role: "user", EmailConfirmed: true,
		FailedAttempts: 5, LockedUntil: &until,
	})

	_, state, err := h.lockoutGate(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !state.Locked || state.Remaining != 10*time.Minute {
		t.Errorf("expected locked with 10m remaining, got %+v", state)
	}
	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 5 || got.LockedUntil == nil {
		t.Error("an active lock must be left as stored")
	}
}

func TestFinalizeLogin_UpdatesOnlyLastLogin(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username: "alice", Email: "alice@example.com",
		Password: hashFor(t, "Correct1!pass"), Role: "user", EmailConfirmed: true,
		FailedAttempts: 3,
	})

	// A copy that no longer matches the stored row. Stamping the login must
	// not write any of its fields back.
	stale := *user
	stale.FailedAttempts = 0
	stale.Password = "not-the-stored-hash"

	rr := httptest.NewRecorder()
	h.finalizeLogin(rr, formRequest("/auth/login", nil), &stale)

	got := reload(t, h.DB, user.ID)
	if got.FailedAttempts != 3 {
		t.Errorf("failed_attempts clobbered: got %d", got.FailedAttempts)
	}
	if got.Password != user.Password {
		t.Error("password hash clobbered")
	}
	if got.LastLogin == nil || !got.LastLogin.Equal(clock.Now()) {
		t.Errorf("expected last_login %v, got %v", clock.Now(), got.LastLogin)
	}
}

func TestLogin_UnconfirmedEmail_Rejected(t *testing.T) {
	h, _, _ := newTestAuth(t)
	createUser(t, h.DB, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       hashFor(t, "Correct1!pass"),
		Role:           "user",
		EmailConfirmed: false,
	})

	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"alice"},
		"password": {"Correct1!pass"},
	}))

	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}
	values := sessionValues(t, rr)
	if _, ok := values[userIDKey]; ok {
		t.Error("no session should exist for an unconfirmed account")
	}
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "confirm your email") {
		t.Error("expected email-confirmation message")
	}
}

func TestLogin_Success_CreatesSession(t *testing.T) {
	h, clock, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username:       "alice",
		Email:          "alice@example.com",
		Password:       hashFor(t, "Correct1!pass"),
		Role:           "user",
		EmailConfirmed: true,
	})

	rr := httptest.NewRecorder()
	h.Login(rr, formRequest("/auth/login", url.Values{
		"username": {"alice"},
		"password": {"Correct1!pass"},
	}))

	if loc := redirectTarget(t, rr); loc != "/profile" {
		t.Errorf("expected redirect to /profile, got %s", loc)
	}
	values := sessionValues(t, rr)
	if id, ok := values[userIDKey].(uint); !ok || id != user.ID {
		t.Errorf("expected session user_id %d, got %v", user.ID, values[userIDKey])
	}
	if stamp, ok := values[lastActivityKey].(int64); !ok || stamp != clock.Now().Unix() {
		t.Errorf("expected activity stamp %d, got %v", clock.Now().Unix(), values[lastActivityKey])
	}
}

func TestRegister_PasswordMismatch(t *testing.T) {
	h, _, _ := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Register(rr, formRequest("/auth/register", url.Values{
		"username":  {"bob"},
		"email":     {"bob@example.com"},
		"password":  {"Valid1!password"},
		"password2": {"Different1!pass"},
	}))

	if loc := redirectTarget(t, rr); loc != "/auth/register" {
		t.Errorf("expected redirect to /auth/register, got %s", loc)
	}
	var count int64
	h.DB.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Error("no user should be created on mismatch")
	}
}

func TestRegister_WeakPassword_ReportsAllViolations(t *testing.T) {
	h, _, _ := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Register(rr, formRequest("/auth/register", url.Values{
		"username":  {"bob"},
		"email":     {"bob@example.com"},
		"password":  {"short"},
		"password2": {"short"},
	}))

	redirectTarget(t, rr)
	body := renderLoginWithCookies(t, h, rr)
	for _, want := range []string{"at least 8 characters", "uppercase letter", "digit", "symbol"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected violation mentioning %q", want)
		}
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	h, _, _ := newTestAuth(t)
	createUser(t, h.DB, models.User{
		Username: "bob", Email: "original@example.com",
		Password: hashFor(t, "Valid1!password"), Role: "user",
	})

	rr := httptest.NewRecorder()
	h.Register(rr, formRequest("/auth/register", url.Values{
		"username":  {"bob"},
		"email":     {"other@example.com"},
		"password":  {"Valid1!password"},
		"password2": {"Valid1!password"},
	}))

	redirectTarget(t, rr)
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "Username already taken.") {
		t.Error("expected duplicate-username message")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h, _, _ := newTestAuth(t)
	createUser(t, h.DB, models.User{
		Username: "original", Email: "bob@example.com",
		Password: hashFor(t, "Valid1!password"), Role: "user",
	})

	rr := httptest.NewRecorder()
	h.Register(rr, formRequest("/auth/register", url.Values{
		"username":  {"bob"},
		"email":     {"bob@example.com"},
		"password":  {"Valid1!password"},
		"password2": {"Valid1!password"},
	}))

	redirectTarget(t, rr)
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "Email already registered.") {
		t.Error("expected duplicate-email message")
	}
}

func TestRegister_Success_CreatesInactiveUserAndSendsLink(t *testing.T) {
	h, _, notifier := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Register(rr, formRequest("/auth/register", url.Values{
		"username":  {"bob"},
		"email":     {"bob@example.com"},
		"password":  {"Valid1!password"},
		"password2": {"Valid1!password"},
	}))

	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}

	user, err := database.FindUserByUsername(h.DB, "bob")
	if err != nil {
		t.Fatal("expected user to exist:", err)
	}
	if user.Role != "user" {
		t.Errorf("expected role user, got %s", user.Role)
	}
	if user.EmailConfirmed {
		t.Error("new account must start unconfirmed")
	}
	if user.ActivationToken == "" {
		t.Error("expected an activation token")
	}
	if user.Password == "Valid1!password" {
		t.Error("password stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("Valid1!password")) != nil {
		t.Error("stored hash does not verify the password")
	}

	if len(notifier.tokens) != 1 || notifier.tokens[0] != user.ActivationToken {
		t.Errorf("expected activation link with token %q, got %v", user.ActivationToken, notifier.tokens)
	}
	if len(notifier.emails) != 1 || notifier.emails[0] != "bob@example.com" {
		t.Errorf("expected link sent to bob@example.com, got %v", notifier.emails)
	}
}

func TestActivate_TokenRoundTrip(t *testing.T) {
	h, _, notifier := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Register(rr, formRequest("/auth/register", url.Values{
		"username":  {"bob"},
		"email":     {"bob@example.com"},
		"password":  {"Valid1!password"},
		"password2": {"Valid1!password"},
	}))
	redirectTarget(t, rr)
	token := notifier.tokens[0]

	rr = httptest.NewRecorder()
	h.Activate(rr, httptest.NewRequest("GET", "/auth/activate?token="+token, nil))
	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}

	user, err := database.FindUserByUsername(h.DB, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if !user.EmailConfirmed {
		t.Error("expected email confirmed")
	}
	if user.ActivationToken != "" {
		t.Error("token must be cleared after use")
	}

	// The link is single use.
	if _, err := database.FindUserByActivationToken(h.DB, token); err == nil {
		t.Error("used token must not resolve again")
	}
}

func TestActivate_UnknownToken(t *testing.T) {
	h, _, _ := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Activate(rr, httptest.NewRequest("GET", "/auth/activate?token=nonsense", nil))
	redirectTarget(t, rr)
	body := renderLoginWithCookies(t, h, rr)
	if !strings.Contains(body, "Invalid or already used activation link.") {
		t.Error("expected invalid-link message")
	}
}

func TestLogout_ClearsSession(t *testing.T) {
	h, _, _ := newTestAuth(t)

	req := formRequest("/auth/logout", nil)
	withSession(t, req, map[interface{}]interface{}{
		userIDKey:       uint(1),
		lastActivityKey: int64(1000),
	})

	rr := httptest.NewRecorder()
	h.Logout(rr, req)

	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}
	values := sessionValues(t, rr)
	if _, ok := values[userIDKey]; ok {
		t.Error("session user_id must be gone after logout")
	}
}

func TestLogout_WithoutSession_Idempotent(t *testing.T) {
	h, _, _ := newTestAuth(t)

	rr := httptest.NewRecorder()
	h.Logout(rr, formRequest("/auth/logout", nil))

	if loc := redirectTarget(t, rr); loc != "/auth/login" {
		t.Errorf("expected redirect to /auth/login, got %s", loc)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	h, _, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username: "alice", Email: "alice@example.com",
		Password: hashFor(t, "Current1!pass"), Role: "user", EmailConfirmed: true,
	})

	req := formRequest("/password", url.Values{
		"current_password": {"nope"},
		"new_password":     {"Another1!pass"},
		"confirm_password": {"Another1!pass"},
	})
	withSession(t, req, map[interface{}]interface{}{userIDKey: user.ID})

	rr := httptest.NewRecorder()
	h.ChangePassword(rr, req)

	if loc := redirectTarget(t, rr); loc != "/password" {
		t.Errorf("expected redirect to /password, got %s", loc)
	}
	got := reload(t, h.DB, user.ID)
	if bcrypt.CompareHashAndPassword([]byte(got.Password), []byte("Current1!pass")) != nil {
		t.Error("password must be unchanged")
	}
}

func TestChangePassword_RejectsReuse(t *testing.T) {
	h, _, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username: "alice", Email: "alice@example.com",
		Password: hashFor(t, "Current1!pass"), Role: "user", EmailConfirmed: true,
	})

	req := formRequest("/password", url.Values{
		"current_password": {"Current1!pass"},
		"new_password":     {"Current1!pass"},
		"confirm_password": {"Current1!pass"},
	})
	withSession(t, req, map[interface{}]interface{}{userIDKey: user.ID})

	rr := httptest.NewRecorder()
	h.ChangePassword(rr, req)

	if loc := redirectTarget(t, rr); loc != "/password" {
		t.Errorf("expected redirect to /password, got %s", loc)
	}
}

func TestChangePassword_Success(t *testing.T) {
	h, _, _ := newTestAuth(t)
	user := createUser(t, h.DB, models.User{
		Username: "alice", Email: "alice@example.com",
		Password: hashFor(t, "Current1!pass"), Role: "user", EmailConfirmed: true,
	})

	req := formRequest("/password", url.Values{
		"current_password": {"Current1!pass"},
		"new_password":     {"Brand9!newpass"},
		"confirm_password": {"Brand9!newpass"},
	})
	withSession(t, req, map[interface{}]interface{}{userIDKey: user.ID})

	rr := httptest.NewRecorder()
	h.ChangePassword(rr, req)

	if loc := redirectTarget(t, rr); loc != "/profile" {
		t.Errorf("expected redirect to /profile, got %s", loc)
	}
	got := reload(t, h.DB, user.ID)
	if bcrypt.CompareHashAndPassword([]byte(got.Password), []byte("Brand9!newpass")) != nil {
		t.Error("new password does not verify")
	}
}
