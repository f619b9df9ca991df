package config

import "time"

const (
	// DefaultCredentialTTL is the fixed validity window of the browser credential.
	// It is independent of whatever expiry the upstream token carries.
	DefaultCredentialTTL = 24 * time.Hour

	// DefaultCookieName is the browser cookie holding the credential (or session id).
	DefaultCookieName = "token"
)

// Default paths for databases
const (
	// DefaultSessionDBPath backs the "session" credential store
	DefaultSessionDBPath = "./linkrelay-sessions.db"

	// DefaultAuditDBPath stores auth audit events
	DefaultAuditDBPath = "./linkrelay-audit.db"
)
