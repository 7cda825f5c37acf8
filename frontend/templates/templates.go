// Package templates holds the server-rendered pages as templ components.
// The pages are deliberately plain: forms post to the auth routes and every
// outcome comes back as a flash message on a redirect.
package templates

import (
	"context"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"warehouse-mro/backend/models"
)

// Flash is a one-shot status message with a bootstrap-style category
// (info, success, warning, danger).
type Flash struct {
	Message  string
	Category string
}

// Flash values travel inside the session cookie, which is gob encoded.
// Registering here keeps the registration with the type, so every package
// that stores a Flash gets it for free.
func init() {
	gob.Register(Flash{})
}

const csrfScript = `<script>
(function(){
  var m = document.cookie.match(/(?:^|; )_csrf=([^;]*)/);
  if (!m) return;
  var token = decodeURIComponent(m[1]);
  document.querySelectorAll('input[name="_csrf"]').forEach(function(el){ el.value = token; });
})();
</script>`

func page(title string, flashes []Flash, body func(w io.Writer)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>%s · Warehouse MRO</title>`+
			`<link rel="stylesheet" href="/static/app.css"></head><body><main>`,
			templ.EscapeString(title))
		fmt.Fprintf(w, `<h1>%s</h1>`, templ.EscapeString(title))
		for _, f := range flashes {
			fmt.Fprintf(w, `<div class="flash flash-%s" role="alert">%s</div>`,
				templ.EscapeString(f.Category), templ.EscapeString(f.Message))
		}
		body(w)
		io.WriteString(w, csrfScript)
		io.WriteString(w, `</main></body></html>`)
		return nil
	})
}

func csrfField(w io.Writer) {
	io.WriteString(w, `<input type="hidden" name="_csrf" value="">`)
}

func Login(flashes []Flash) templ.Component {
	return page("Sign in", flashes, func(w io.Writer) {
		io.WriteString(w, `<form method="post" action="/auth/login">`)
		csrfField(w)
		io.WriteString(w,
			`<label>Username <input type="text" name="username" required autofocus></label>`+
				`<label>Password <input type="password" name="password" required></label>`+
				`<button type="submit">Sign in</button>`+
				`</form>`+
				`<p><a href="/auth/register">Create an account</a></p>`)
	})
}

func Register(flashes []Flash) templ.Component {
	return page("Create account", flashes, func(w io.Writer) {
		io.WriteString(w, `<form method="post" action="/auth/register">`)
		csrfField(w)
		io.WriteString(w,
			`<label>Username <input type="text" name="username" required autofocus></label>`+
				`<label>Email <input type="email" name="email" required></label>`+
				`<label>Password <input type="password" name="password" required></label>`+
				`<label>Repeat password <input type="password" name="password2" required></label>`+
				`<button type="submit">Register</button>`+
				`</form>`+
				`<p><a href="/auth/login">Back to sign in</a></p>`)
	})
}

func TwoFAVerify(flashes []Flash) templ.Component {
	return page("Two-factor verification", flashes, func(w io.Writer) {
		io.WriteString(w, `<p>Enter the 6-digit code from your authenticator app.</p>`)
		io.WriteString(w, `<form method="post" action="/auth/2fa/verify">`)
		csrfField(w)
		io.WriteString(w,
			`<label>Code <input type="text" name="code" inputmode="numeric" pattern="[0-9]*" `+
				`maxlength="6" required autofocus></label>`+
				`<button type="submit">Verify</button>`+
				`</form>`)
	})
}

// TwoFASetup shows the provisioning QR code and secret while 2FA is being
// set up, or the disable form once it is active.
func TwoFASetup(qrBase64, secret, uri string, enabled bool, flashes []Flash) templ.Component {
	return page("Two-factor authentication", flashes, func(w io.Writer) {
		if enabled {
			io.WriteString(w, `<p>Two-factor authentication is <strong>enabled</strong>.</p>`)
			io.WriteString(w, `<form method="post" action="/2fa/disable">`)
			csrfField(w)
			io.WriteString(w,
				`<label>Current password <input type="password" name="current_password" required></label>`+
					`<button type="submit">Disable 2FA</button>`+
					`</form>`)
			return
		}
		io.WriteString(w, `<p>Scan the QR code with your authenticator app, then confirm with a code.</p>`)
		if qrBase64 != "" {
			fmt.Fprintf(w, `<img alt="TOTP QR code" src="data:image/png;base64,%s">`, qrBase64)
		}
		fmt.Fprintf(w, `<p>Secret: <code>%s</code></p>`, templ.EscapeString(secret))
		fmt.Fprintf(w, `<p><a href="%s">Open in authenticator</a></p>`, templ.EscapeString(uri))
		io.WriteString(w, `<form method="post" action="/2fa/enable">`)
		csrfField(w)
		io.WriteString(w,
			`<label>Code <input type="text" name="code" inputmode="numeric" maxlength="6" required></label>`+
				`<button type="submit">Enable 2FA</button>`+
				`</form>`)
	})
}

func ChangePassword(flashes []Flash) templ.Component {
	return page("Change password", flashes, func(w io.Writer) {
		io.WriteString(w, `<form method="post" action="/password">`)
		csrfField(w)
		io.WriteString(w,
			`<label>Current password <input type="password" name="current_password" required></label>`+
				`<label>New password <input type="password" name="new_password" required></label>`+
				`<label>Confirm new password <input type="password" name="confirm_password" required></label>`+
				`<button type="submit">Change password</button>`+
				`</form>`)
	})
}

func Profile(user *models.User, flashes []Flash) templ.Component {
	return page("Profile", flashes, func(w io.Writer) {
		fmt.Fprintf(w, `<dl><dt>Username</dt><dd>%s</dd>`, templ.EscapeString(user.Username))
		fmt.Fprintf(w, `<dt>Email</dt><dd>%s</dd>`, templ.EscapeString(user.Email))
		fmt.Fprintf(w, `<dt>Role</dt><dd>%s</dd>`, templ.EscapeString(user.Role))
		fmt.Fprintf(w, `<dt>Phone</dt><dd>%s</dd>`, templ.EscapeString(user.Phone))
		fmt.Fprintf(w, `<dt>Location</dt><dd>%s</dd>`, templ.EscapeString(user.Location))
		fmt.Fprintf(w, `<dt>Area</dt><dd>%s</dd>`, templ.EscapeString(user.Area))
		if user.LastLogin != nil {
			fmt.Fprintf(w, `<dt>Last login</dt><dd>%s</dd>`,
				templ.EscapeString(user.LastLogin.Format("02/01/2006 15:04")))
		}
		io.WriteString(w, `</dl>`)
		io.WriteString(w, `<p><a href="/password">Change password</a> · <a href="/2fa/setup">Two-factor authentication</a></p>`)
		if user.Role == "owner" {
			io.WriteString(w, `<p><a href="/roles">Manage roles</a> · <a href="/admin/audit">Audit trail</a></p>`)
		}
		io.WriteString(w, `<form method="post" action="/auth/logout">`)
		csrfField(w)
		io.WriteString(w, `<button type="submit">Sign out</button></form>`)
	})
}

func RolesList(users []models.User, flashes []Flash) templ.Component {
	return page("Role management", flashes, func(w io.Writer) {
		io.WriteString(w, `<table><thead><tr><th>Username</th><th>Email</th><th>Role</th><th>2FA</th><th></th></tr></thead><tbody>`)
		for _, u := range users {
			fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%s</td>`,
				templ.EscapeString(u.Username), templ.EscapeString(u.Email), templ.EscapeString(u.Role))
			if u.TwoFAEnabled {
				io.WriteString(w, `<td>on</td>`)
			} else {
				io.WriteString(w, `<td>off</td>`)
			}
			fmt.Fprintf(w, `<td><form method="post" action="/roles/change">`+
				`<input type="hidden" name="user_id" value="%d">`, u.ID)
			csrfField(w)
			io.WriteString(w, `<select name="role">`)
			for _, role := range []string{"user", "admin", "owner"} {
				if role == u.Role {
					fmt.Fprintf(w, `<option value="%s" selected>%s</option>`, role, role)
				} else {
					fmt.Fprintf(w, `<option value="%s">%s</option>`, role, role)
				}
			}
			io.WriteString(w, `</select><button type="submit">Apply</button></form></td></tr>`)
		}
		io.WriteString(w, `</tbody></table>`)
		io.WriteString(w, `<p><a href="/profile">Back to profile</a></p>`)
	})
}

// Audit renders the audit-trail page shell; entries load from the JSON API.
func Audit(flashes []Flash) templ.Component {
	return page("Audit trail", flashes, func(w io.Writer) {
		io.WriteString(w,
			`<div id="audit" data-endpoint="/admin/api/audit"></div>`+
				`<script src="/static/audit.js"></script>`+
				`<p><a href="/profile">Back to profile</a></p>`)
	})
}
