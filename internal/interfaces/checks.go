package interfaces

// This file contains compile-time interface implementation checks.
// These ensure that concrete types satisfy their interfaces at compile time,
// catching missing methods before runtime.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/linkrelay/internal/audit"
	"github.com/mrlokans/linkrelay/internal/auth"
	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/crypto"
	"github.com/mrlokans/linkrelay/internal/guard"
	"github.com/mrlokans/linkrelay/internal/http"
	"github.com/mrlokans/linkrelay/internal/metrics"
	"github.com/mrlokans/linkrelay/internal/relay"
	"github.com/mrlokans/linkrelay/internal/session"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

// =============================================================================
// Credential Storage
// =============================================================================

var _ credential.Store = (*credential.CookieStore)(nil)
var _ credential.Store = (*credential.SessionStore)(nil)
var _ credential.Sealer = (*crypto.Sealer)(nil)

// The guard only needs to know whether a credential is present
var _ guard.PresenceChecker = (credential.Store)(nil)

// =============================================================================
// Upstream
// =============================================================================

var _ relay.AuthUpstream = (*upstream.Client)(nil)
var _ relay.LinksUpstream = (*upstream.Client)(nil)
var _ relay.ProfileUpstream = (*upstream.Client)(nil)

// =============================================================================
// Login Hardening and Audit
// =============================================================================

var _ relay.LoginLimiter = (*auth.RateLimiter)(nil)
var _ relay.AuthRecorder = (*audit.Service)(nil)
var _ audit.EventCleaner = (*audit.Service)(nil)

// =============================================================================
// Observability
// =============================================================================

var _ upstream.Observer = (*metrics.Metrics)(nil)
var _ guard.Observer = (*metrics.Metrics)(nil)

var _ http.Pinger = (*upstream.Client)(nil)
var _ http.Pinger = (*credential.SessionStore)(nil)
var _ http.Pinger = (*audit.Service)(nil)

// =============================================================================
// Client Session
// =============================================================================

var _ session.API = (*session.Client)(nil)
var _ session.Navigator = (*session.MemoryNavigator)(nil)
var _ session.Routes = (*guard.Table)(nil)
