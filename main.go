package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"warehouse-mro/backend/auth"
	"warehouse-mro/backend/config"
	"warehouse-mro/backend/database"
	"warehouse-mro/backend/handlers"
	"warehouse-mro/backend/logger"
	"warehouse-mro/backend/middleware"
	"warehouse-mro/backend/notify"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := handlers.InitSession(); err != nil {
		log.Fatal("Failed to init session:", err)
	}

	if err := database.Init(config.C.DatabasePath); err != nil {
		log.Fatal("Failed to init database:", err)
	}

	// Structured logging doubles as the audit trail.
	slog.SetDefault(slog.New(logger.NewAuditHandler(database.DB)))
	go logger.CleanupOldEntries(database.DB, config.C.Audit.Retention)

	// The system must never be without an owner; provision one on first boot.
	if err := database.EnsureOwner(
		config.C.Bootstrap.OwnerUsername,
		config.C.Bootstrap.OwnerPassword,
		config.C.Bootstrap.OwnerEmail,
	); err != nil {
		log.Fatal("Failed to provision owner account:", err)
	}

	clock := auth.SystemClock()

	var notifier notify.Notifier = notify.LogNotifier{BaseURL: config.C.PublicURL}
	if config.C.SMTP.Host != "" {
		notifier = notify.SMTPNotifier{
			Host:     config.C.SMTP.Host,
			Port:     config.C.SMTP.Port,
			Username: config.C.SMTP.Username,
			Password: config.C.SMTP.Password,
			From:     config.C.SMTP.From,
			BaseURL:  config.C.PublicURL,
		}
	}

	authHandlers := handlers.NewAuth(database.DB, clock, notifier)

	guard := &middleware.SessionGuard{
		Store:       handlers.Store,
		Clock:       clock,
		IdleTimeout: config.C.Session.IdleTimeout,
		CurrentUser: authHandlers.CurrentUser,
	}

	// Rate limiter for auth endpoints (10 requests per minute per IP)
	authRateLimiter := middleware.NewRateLimiter(10, time.Minute)
	csrf := middleware.NewCSRFProtection(config.C.Session.Secret)

	slog.Info("server starting", "source", "main",
		"listen", config.C.Listen, "public_url", config.C.PublicURL)

	mux := http.NewServeMux()

	// Health check (unauthenticated, for load balancers)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
	})

	// Auth routes (public, rate limited on the mutating side)
	mux.HandleFunc("GET /auth/login", authHandlers.LoginPage)
	mux.HandleFunc("POST /auth/login", authRateLimiter.LimitFunc(authHandlers.Login))
	mux.HandleFunc("GET /auth/register", authHandlers.RegisterPage)
	mux.HandleFunc("POST /auth/register", authRateLimiter.LimitFunc(authHandlers.Register))
	mux.HandleFunc("GET /auth/activate", authHandlers.Activate)
	mux.HandleFunc("GET /auth/2fa/verify", authHandlers.TwoFAVerifyPage)
	mux.HandleFunc("POST /auth/2fa/verify", authHandlers.TwoFAVerify)
	mux.HandleFunc("POST /auth/logout", authHandlers.Logout)

	// Account routes (authenticated)
	mux.HandleFunc("GET /profile", guard.RequireAuth(authHandlers.ProfilePage))
	mux.HandleFunc("GET /password", guard.RequireAuth(authHandlers.ChangePasswordPage))
	mux.HandleFunc("POST /password", guard.RequireAuth(authHandlers.ChangePassword))
	mux.HandleFunc("GET /2fa/setup", guard.RequireAuth(authHandlers.TwoFASetupPage))
	mux.HandleFunc("POST /2fa/enable", guard.RequireAuth(authHandlers.TwoFAEnable))
	mux.HandleFunc("POST /2fa/disable", guard.RequireAuth(authHandlers.TwoFADisable))

	// Role management and audit trail (owner only)
	mux.HandleFunc("GET /roles", guard.RequireOwner(authHandlers.RolesPage))
	mux.HandleFunc("POST /roles/change", guard.RequireOwner(authHandlers.ChangeRole))
	mux.HandleFunc("GET /admin/audit", guard.RequireOwner(authHandlers.AuditPage))
	mux.HandleFunc("GET /admin/api/audit", guard.RequireOwner(authHandlers.ListAuditEntries))
	mux.HandleFunc("GET /admin/api/audit/sources", guard.RequireOwner(authHandlers.AuditSources))

	// Static assets
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	handler := middleware.SecurityHeaders(csrf.Protect(mux))

	fmt.Printf("Server running at %s (public: %s)\n", config.C.Listen, config.C.PublicURL)
	if config.C.TLS.Enabled {
		slog.Info("starting server with TLS", "source", "main")
		log.Fatal(http.ListenAndServeTLS(config.C.Listen, config.C.TLS.Cert, config.C.TLS.Key, handler))
	} else {
		log.Fatal(http.ListenAndServe(config.C.Listen, handler))
	}
}
