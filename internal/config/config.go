package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CredentialBackend selects where the upstream credential is kept.
type CredentialBackend string

const (
	CredentialBackendCookie  CredentialBackend = "cookie"  // Raw token in an HttpOnly cookie (default)
	CredentialBackendSession CredentialBackend = "session" // Session id cookie, token in a shared SQLite store
)

type (
	Config struct {
		HTTP
		Global
		Upstream
		Auth
		Routes
		Audit
		UI
		Metrics
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Upstream struct {
		BaseURL string
		Timeout time.Duration
	}
	Auth struct {
		CredentialTTL   time.Duration
		CookieName      string
		SecureCookies   bool // Set to false for local dev without HTTPS
		CredentialStore CredentialBackend
		SessionDBPath   string
		SessionSecret   string // Seals credentials in the session database when set
		CSRFSecret      string // CSRF protection is disabled when empty

		// Login rate limiting
		MaxLoginAttempts int
		RateLimitWindow  time.Duration
		LockoutDuration  time.Duration
	}
	Routes struct {
		Protected []string // Prefix matched
		AuthOnly  []string // Exact, or prefix when ending with "/"
		Public    []string // Exact, or prefix when ending with "/"
		LoginPath string
		HomePath  string
	}
	Audit struct {
		Enabled         bool
		DatabasePath    string
		RetentionDays   int
		CleanupSchedule string // Cron format
	}
	UI struct {
		StaticPath string
		PagesPath  string
	}
	Metrics struct {
		Enabled bool
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 3000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)

	v.SetDefault("upstream_url", "http://localhost:8000")
	v.SetDefault("upstream_timeout", "10s")

	v.SetDefault("auth_credential_ttl", DefaultCredentialTTL.String())
	v.SetDefault("auth_cookie_name", DefaultCookieName)
	v.SetDefault("auth_secure_cookies", true)
	v.SetDefault("auth_credential_store", string(CredentialBackendCookie))
	v.SetDefault("auth_session_db_path", DefaultSessionDBPath)
	v.SetDefault("auth_session_secret", "")
	v.SetDefault("auth_csrf_secret", "")
	v.SetDefault("auth_max_login_attempts", 5)
	v.SetDefault("auth_rate_limit_window", "15m")
	v.SetDefault("auth_lockout_duration", "30m")

	v.SetDefault("routes_protected", "/dashboard")
	v.SetDefault("routes_auth_only", "/login,/register")
	v.SetDefault("routes_public", "/,/about,/terms,/policy,/contact,/u/")
	v.SetDefault("routes_login_path", "/login")
	v.SetDefault("routes_home_path", "/dashboard")

	v.SetDefault("audit_enabled", false)
	v.SetDefault("audit_database_path", DefaultAuditDBPath)
	v.SetDefault("audit_retention_days", 30)
	v.SetDefault("audit_cleanup_schedule", "0 3 * * *") // Daily at 03:00

	v.SetDefault("static_path", "./static")
	v.SetDefault("pages_path", "./pages")
	v.SetDefault("metrics_enabled", true)

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Upstream: Upstream{
			BaseURL: v.GetString("UPSTREAM_URL"),
			Timeout: v.GetDuration("UPSTREAM_TIMEOUT"),
		},
		Auth: Auth{
			CredentialTTL:    v.GetDuration("AUTH_CREDENTIAL_TTL"),
			CookieName:       v.GetString("AUTH_COOKIE_NAME"),
			SecureCookies:    v.GetBool("AUTH_SECURE_COOKIES"),
			CredentialStore:  CredentialBackend(strings.ToLower(v.GetString("AUTH_CREDENTIAL_STORE"))),
			SessionDBPath:    v.GetString("AUTH_SESSION_DB_PATH"),
			SessionSecret:    v.GetString("AUTH_SESSION_SECRET"),
			CSRFSecret:       v.GetString("AUTH_CSRF_SECRET"),
			MaxLoginAttempts: v.GetInt("AUTH_MAX_LOGIN_ATTEMPTS"),
			RateLimitWindow:  v.GetDuration("AUTH_RATE_LIMIT_WINDOW"),
			LockoutDuration:  v.GetDuration("AUTH_LOCKOUT_DURATION"),
		},
		Routes: Routes{
			Protected: splitList(v.GetString("ROUTES_PROTECTED")),
			AuthOnly:  splitList(v.GetString("ROUTES_AUTH_ONLY")),
			Public:    splitList(v.GetString("ROUTES_PUBLIC")),
			LoginPath: v.GetString("ROUTES_LOGIN_PATH"),
			HomePath:  v.GetString("ROUTES_HOME_PATH"),
		},
		Audit: Audit{
			Enabled:         v.GetBool("AUDIT_ENABLED"),
			DatabasePath:    v.GetString("AUDIT_DATABASE_PATH"),
			RetentionDays:   v.GetInt("AUDIT_RETENTION_DAYS"),
			CleanupSchedule: v.GetString("AUDIT_CLEANUP_SCHEDULE"),
		},
		UI: UI{
			StaticPath: v.GetString("STATIC_PATH"),
			PagesPath:  v.GetString("PAGES_PATH"),
		},
		Metrics: Metrics{
			Enabled: v.GetBool("METRICS_ENABLED"),
		},
	}
}

// Validate reports configuration that would leave the relay unable to serve.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("UPSTREAM_URL must be an absolute URL, got %q", c.Upstream.BaseURL))
	}
	if c.Auth.CredentialTTL <= 0 {
		errs = append(errs, errors.New("AUTH_CREDENTIAL_TTL must be positive"))
	}
	if c.Auth.CookieName == "" {
		errs = append(errs, errors.New("AUTH_COOKIE_NAME must not be empty"))
	}
	switch c.Auth.CredentialStore {
	case CredentialBackendCookie, CredentialBackendSession:
	default:
		errs = append(errs, fmt.Errorf("AUTH_CREDENTIAL_STORE must be %q or %q, got %q",
			CredentialBackendCookie, CredentialBackendSession, c.Auth.CredentialStore))
	}
	if !strings.HasPrefix(c.Routes.LoginPath, "/") || !strings.HasPrefix(c.Routes.HomePath, "/") {
		errs = append(errs, errors.New("ROUTES_LOGIN_PATH and ROUTES_HOME_PATH must be absolute paths"))
	}

	return errors.Join(errs...)
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
