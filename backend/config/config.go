package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen       string `yaml:"listen"`
	PublicURL    string `yaml:"public_url"`
	DatabasePath string `yaml:"database_path"`

	Session   SessionConfig   `yaml:"session"`
	Security  SecurityConfig  `yaml:"security"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Audit     AuditConfig     `yaml:"audit"`
	TLS       TLSConfig       `yaml:"tls"`
}

type SessionConfig struct {
	Secret string `yaml:"secret"`
	// CookieMaxAge bounds the session cookie lifetime; IdleTimeout is the
	// sliding inactivity window enforced on every authenticated request.
	CookieMaxAge time.Duration `yaml:"cookie_max_age"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type SecurityConfig struct {
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
	TOTPIssuer        string        `yaml:"totp_issuer"`
}

// BootstrapConfig describes the owner account provisioned at first boot when
// no owner exists yet.
type BootstrapConfig struct {
	OwnerUsername string `yaml:"owner_username"`
	OwnerPassword string `yaml:"owner_password"`
	OwnerEmail    string `yaml:"owner_email"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AuditConfig struct {
	Retention time.Duration `yaml:"retention"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

var C Config

func Load() error {
	// .env is optional; real environment variables still win below.
	_ = godotenv.Load()

	// Defaults
	C = Config{
		Listen:       ":8080",
		PublicURL:    "http://localhost:8080",
		DatabasePath: "warehouse.db",
		Session: SessionConfig{
			CookieMaxAge: 24 * time.Hour,
			IdleTimeout:  30 * time.Minute,
		},
		Security: SecurityConfig{
			MaxFailedAttempts: 5,
			LockoutDuration:   15 * time.Minute,
			TOTPIssuer:        "Warehouse-MRO",
		},
		Bootstrap: BootstrapConfig{
			OwnerUsername: "admin",
			OwnerPassword: "admin",
			OwnerEmail:    "admin@localhost",
		},
		Audit: AuditConfig{
			Retention: 48 * time.Hour,
		},
	}

	// Load from YAML if exists
	if data, err := os.ReadFile("config.yaml"); err == nil {
		if err := yaml.Unmarshal(data, &C); err != nil {
			return err
		}
	}

	// Environment overrides
	if v := os.Getenv("LISTEN"); v != "" {
		C.Listen = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		C.PublicURL = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		C.DatabasePath = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		C.Session.Secret = v
	}
	if v := os.Getenv("SESSION_COOKIE_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Session.CookieMaxAge = d
		}
	}
	if v := os.Getenv("SESSION_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Session.IdleTimeout = d
		}
	}
	if v := os.Getenv("MAX_FAILED_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			C.Security.MaxFailedAttempts = n
		}
	}
	if v := os.Getenv("LOCKOUT_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Security.LockoutDuration = d
		}
	}
	if v := os.Getenv("TOTP_ISSUER"); v != "" {
		C.Security.TOTPIssuer = v
	}
	if v := os.Getenv("OWNER_USERNAME"); v != "" {
		C.Bootstrap.OwnerUsername = v
	}
	if v := os.Getenv("OWNER_PASSWORD"); v != "" {
		C.Bootstrap.OwnerPassword = v
	}
	if v := os.Getenv("OWNER_EMAIL"); v != "" {
		C.Bootstrap.OwnerEmail = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		C.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			C.SMTP.Port = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		C.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		C.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		C.SMTP.From = v
	}
	if v := os.Getenv("AUDIT_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			C.Audit.Retention = d
		}
	}
	if v := os.Getenv("TLS_ENABLED"); v == "true" {
		C.TLS.Enabled = true
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		C.TLS.Cert = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		C.TLS.Key = v
	}

	return nil
}
