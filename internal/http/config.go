package http

import (
	"time"

	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/guard"
	"github.com/mrlokans/linkrelay/internal/metrics"
	"github.com/mrlokans/linkrelay/internal/relay"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

// RouterConfig contains all dependencies and configuration needed
// to create the HTTP router.
type RouterConfig struct {
	// Core dependencies
	Upstream *upstream.Client
	Store    credential.Store
	Guard    *guard.Guard

	// Credential lifetime written with every login
	CredentialTTL time.Duration

	// Optional login hardening and audit trail
	Limiter  relay.LoginLimiter
	Recorder relay.AuthRecorder

	// CSRF protection is enabled when CSRFKey is set
	CSRFKey       []byte
	SecureCookies bool

	// Optional Prometheus instrumentation, served on /metrics
	Metrics *metrics.Metrics

	// Extra named dependencies reported by /health besides upstream
	HealthChecks map[string]Pinger

	// UI paths
	StaticPath string
	PagesPath  string

	// Application info
	Version string
}
