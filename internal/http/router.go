package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/linkrelay/internal/auth"
	"github.com/mrlokans/linkrelay/internal/guard"
	"github.com/mrlokans/linkrelay/internal/relay"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())

	// Apply security headers to all responses
	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.SecureCookies {
		router.Use(auth.StrictTransportSecurityMiddleware())
	}

	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}

	// CSRF must run before the credential store so that the session
	// context survives CSRF's request replacement
	if len(cfg.CSRFKey) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFKey, cfg.SecureCookies))
	}

	router.Use(cfg.Store.Middleware())

	// The guard decides before any page renders
	g := cfg.Guard
	if g == nil {
		g = guard.New(guard.Options{})
	}
	router.Use(g.Handler(cfg.Store))

	if cfg.StaticPath != "" {
		router.Static("/static", cfg.StaticPath)
	}

	checks := map[string]Pinger{"upstream": cfg.Upstream}
	for name, check := range cfg.HealthChecks {
		checks[name] = check
	}
	health := NewHealthController(checks, cfg.Version)
	router.GET("/health", health.Status)
	router.GET("/ping", Ping)
	if cfg.Metrics != nil {
		router.GET("/metrics", cfg.Metrics.Handler())
	}

	api := router.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.GET("/csrf", auth.CSRFTokenHandler)
	relay.NewAuthController(cfg.Upstream, cfg.Store, relay.AuthOptions{
		CredentialTTL: cfg.CredentialTTL,
		Limiter:       cfg.Limiter,
		Recorder:      cfg.Recorder,
	}).RegisterRoutes(authGroup)

	relay.NewLinksController(cfg.Upstream, cfg.Store).RegisterRoutes(api.Group("/links"))
	relay.NewProfileController(cfg.Upstream, cfg.Store).RegisterRoutes(api.Group("/profile"))

	router.NoRoute(NewPageShell(cfg.PagesPath).Handle)

	return router
}
