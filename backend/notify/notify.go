// Package notify delivers account notifications. Delivery is fire and
// forget: a failed send is logged, never rolled back into the flow that
// triggered it.
package notify

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"net/url"
	"strings"
)

type Notifier interface {
	SendActivationLink(email, token string)
}

// ActivationURL builds the single-use activation link for a token.
func ActivationURL(baseURL, token string) string {
	return fmt.Sprintf("%s/auth/activate?token=%s", strings.TrimRight(baseURL, "/"), url.QueryEscape(token))
}

// LogNotifier writes the activation link to the log instead of sending mail.
// Default collaborator when no SMTP host is configured.
type LogNotifier struct {
	BaseURL string
}

func (n LogNotifier) SendActivationLink(email, token string) {
	slog.Info("activation link issued", "source", "notify",
		"email", email, "link", ActivationURL(n.BaseURL, token))
}

// SMTPNotifier delivers the activation link by plain-auth SMTP.
type SMTPNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string
}

func (n SMTPNotifier) SendActivationLink(email, token string) {
	link := ActivationURL(n.BaseURL, token)
	body := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Activate your account\r\n\r\n"+
		"Welcome! Confirm your email address by visiting:\r\n\r\n%s\r\n",
		n.From, email, link)

	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
	var a smtp.Auth
	if n.Username != "" {
		a = smtp.PlainAuth("", n.Username, n.Password, n.Host)
	}
	if err := smtp.SendMail(addr, a, n.From, []string{email}, []byte(body)); err != nil {
		slog.Error("activation mail delivery failed", "source", "notify",
			"email", email, "error", err.Error())
		return
	}
	slog.Info("activation mail sent", "source", "notify", "email", email)
}
