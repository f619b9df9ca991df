package entrypoint

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/linkrelay/internal/audit"
	"github.com/mrlokans/linkrelay/internal/auth"
	"github.com/mrlokans/linkrelay/internal/config"
	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/crypto"
	"github.com/mrlokans/linkrelay/internal/guard"
	http_controllers "github.com/mrlokans/linkrelay/internal/http"
	"github.com/mrlokans/linkrelay/internal/metrics"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

const sessionSealPurpose = "linkrelay session credential v1"

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

// Serve runs the router until SIGINT or SIGTERM, then shuts down gracefully.
func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop taking requests before the stores behind them close
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

// Components are the long-lived pieces Run wires into the router. Build
// returns them so that tests and alternative mains can reuse the wiring.
type Components struct {
	Router    *gin.Engine
	Upstream  *upstream.Client
	Limiter   *auth.RateLimiter
	Audit     *audit.Service
	Cleanup   *audit.CleanupScheduler
	closers   []io.Closer
	cancelBgd context.CancelFunc
}

// Close releases every store Build opened, in reverse order.
func (c *Components) Close() {
	if c.cancelBgd != nil {
		c.cancelBgd()
	}
	if c.Cleanup != nil {
		c.Cleanup.Stop()
	}
	if c.Limiter != nil {
		c.Limiter.Stop()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			log.Printf("Error closing resource: %v", err)
		}
	}
}

// Build validates cfg and assembles the relay.
func Build(cfg *config.Config, version string) (*Components, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	comp := &Components{}
	ok := false
	defer func() {
		if !ok {
			comp.Close()
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	client, err := upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}
	if m != nil {
		client.SetObserver(m)
	}
	comp.Upstream = client
	log.Printf("[UPSTREAM] Relaying to %s (timeout %v)", cfg.Upstream.BaseURL, cfg.Upstream.Timeout)

	healthChecks := map[string]http_controllers.Pinger{}

	cookieOpts := credential.CookieOptions{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.SecureCookies,
	}
	var store credential.Store
	switch cfg.Auth.CredentialStore {
	case config.CredentialBackendSession:
		sessions, err := credential.NewSessionStore(cfg.Auth.SessionDBPath, cookieOpts, cfg.Auth.CredentialTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		comp.closers = append(comp.closers, sessions)
		if cfg.Auth.SessionSecret != "" {
			sealer, err := crypto.NewSealerFromSecret(cfg.Auth.SessionSecret, sessionSealPurpose)
			if err != nil {
				return nil, fmt.Errorf("failed to create credential sealer: %w", err)
			}
			sessions.SealWith(sealer)
		} else {
			log.Printf("[SESSION] WARNING: AUTH_SESSION_SECRET is not set, upstream tokens are stored unencrypted")
		}
		healthChecks["sessions"] = sessions
		store = sessions
		log.Printf("[SESSION] Credential store: session (%s)", cfg.Auth.SessionDBPath)
	default:
		store = credential.NewCookieStore(cookieOpts)
		log.Printf("[SESSION] Credential store: cookie")
	}

	table, err := guard.NewTable(guard.Rules{
		Protected: cfg.Routes.Protected,
		AuthOnly:  cfg.Routes.AuthOnly,
		Public:    cfg.Routes.Public,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid route table: %w", err)
	}
	guardOpts := guard.Options{
		Table:     table,
		LoginPath: cfg.Routes.LoginPath,
		HomePath:  cfg.Routes.HomePath,
	}
	if m != nil {
		guardOpts.Observer = m
	}

	comp.Limiter = auth.NewRateLimiter(auth.RateLimitConfigFrom(cfg.Auth))

	routerCfg := http_controllers.RouterConfig{
		Upstream:      client,
		Store:         store,
		Guard:         guard.New(guardOpts),
		CredentialTTL: cfg.Auth.CredentialTTL,
		Limiter:       comp.Limiter,
		SecureCookies: cfg.Auth.SecureCookies,
		Metrics:       m,
		HealthChecks:  healthChecks,
		StaticPath:    cfg.UI.StaticPath,
		PagesPath:     cfg.UI.PagesPath,
		Version:       version,
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.RetentionDays > 0 {
			if err := audit.ValidateSchedule(cfg.Audit.CleanupSchedule); err != nil {
				return nil, fmt.Errorf("invalid audit cleanup schedule: %w", err)
			}
		}
		db, err := audit.Open(cfg.Audit.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
		comp.Audit = audit.NewService(db)
		comp.closers = append(comp.closers, comp.Audit)
		healthChecks["audit"] = comp.Audit
		routerCfg.Recorder = comp.Audit

		if cfg.Audit.RetentionDays > 0 {
			comp.Cleanup = audit.NewCleanupScheduler(comp.Audit, cfg.Audit.CleanupSchedule, cfg.Audit.RetentionDays)
			var bgd context.Context
			bgd, comp.cancelBgd = context.WithCancel(context.Background())
			if err := comp.Cleanup.Start(bgd); err != nil {
				return nil, fmt.Errorf("failed to start audit cleanup: %w", err)
			}
		}
		log.Printf("[AUDIT] Recording auth events to %s", cfg.Audit.DatabasePath)
	}

	if cfg.Auth.CSRFSecret != "" {
		key, err := auth.DeriveCSRFKey(cfg.Auth.CSRFSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to derive CSRF key: %w", err)
		}
		routerCfg.CSRFKey = key
	} else {
		log.Printf("[CSRF] WARNING: AUTH_CSRF_SECRET is not set, CSRF protection is disabled")
	}

	if !cfg.Auth.SecureCookies {
		log.Printf("[SESSION] WARNING: secure cookies are disabled, use only for local development over HTTP")
	}

	comp.Router = http_controllers.NewRouter(routerCfg)
	ok = true
	return comp, nil
}

// Run builds the relay from cfg and serves it until interrupted.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting linkrelay v%s", version)

	comp, err := Build(cfg, version)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Upstream.Timeout)
	if err := comp.Upstream.Ping(pingCtx); err != nil {
		log.Printf("[UPSTREAM] WARNING: upstream not reachable yet: %v", err)
	}
	cancel()

	Serve(comp.Router, cfg, func(ctx context.Context) {
		comp.Close()
	})
}
