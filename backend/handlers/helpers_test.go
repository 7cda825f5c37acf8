package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/models"
)

// fakeClock returns a fixed, adjustable time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// recordingNotifier captures activation links instead of delivering them.
type recordingNotifier struct {
	emails []string
	tokens []string
}

func (n *recordingNotifier) SendActivationLink(email, token string) {
	n.emails = append(n.emails, email)
	n.tokens = append(n.tokens, token)
}

func initTestSession(t *testing.T) {
	t.Helper()
	Store = sessions.NewCookieStore([]byte("test-secret-key-32-chars-long!!!"))
	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   3600,
		HttpOnly: true,
	}
}

func newTestAuth(t *testing.T) (*Auth, *fakeClock, *recordingNotifier) {
	t.Helper()
	initTestSession(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.AuditEntry{}); err != nil {
		t.Fatal(err)
	}

	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	return &Auth{
		DB:       db,
		Clock:    clock,
		Lockout:  auth.NewLockout(clock, 5, 15*time.Minute),
		Notifier: notifier,
		Issuer:   "Warehouse-MRO",
	}, clock, notifier
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(hash)
}

func createUser(t *testing.T, db *gorm.DB, user models.User) *models.User {
	t.Helper()
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	return &user
}

func formRequest(target string, form url.Values) *http.Request {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest("POST", target, body)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// withSession seeds session values onto a request, the way a browser would
// carry them in the cookie.
func withSession(t *testing.T, req *http.Request, values map[interface{}]interface{}) {
	t.Helper()
	session, _ := Store.Get(req, sessionName)
	for k, v := range values {
		session.Values[k] = v
	}
	rr := httptest.NewRecorder()
	if err := session.Save(req, rr); err != nil {
		t.Fatal(err)
	}
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
}

func reload(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatal(err)
	}
	return &user
}

func redirectTarget(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got status %d", rr.Code)
	}
	return rr.Header().Get("Location")
}

// renderLoginWithCookies replays the response cookies against the login page
// so flash messages can be asserted on.
func renderLoginWithCookies(t *testing.T, h *Auth, rr *httptest.ResponseRecorder) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/auth/login", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.LoginPage(rec, req)
	return rec.Body.String()
}

// sessionValues decodes the session carried by the response cookies.
func sessionValues(t *testing.T, rr *httptest.ResponseRecorder) map[interface{}]interface{} {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	session, _ := Store.Get(req, sessionName)
	return session.Values
}
