// Package guard decides, before any page renders, whether a request may
// proceed or must be redirected. It only looks at whether a credential
// cookie is present and never talks to upstream.
package guard

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Action is what the guard does with a request.
type Action int

const (
	Allow Action = iota
	Redirect
)

// Decision is the outcome for one request.
type Decision struct {
	Action   Action
	Location string // Set when Action is Redirect
	Class    Class
}

// Outcome labels used for instrumentation.
const (
	OutcomeAllow    = "allow"
	OutcomeRedirect = "redirect"
	OutcomeExcluded = "excluded"
)

// PresenceChecker reports whether a request carries a credential.
type PresenceChecker interface {
	Present(r *http.Request) bool
}

// Observer receives one notification per guarded request.
type Observer interface {
	ObserveGuard(class, outcome string)
}

// Options configures a Guard.
type Options struct {
	Table     *Table
	LoginPath string // Where anonymous visitors of protected pages go
	HomePath  string // Where signed in visitors of auth-only pages go
	Observer  Observer
}

// Guard enforces the route table.
type Guard struct {
	table     *Table
	loginPath string
	homePath  string
	observer  Observer
}

func New(opts Options) *Guard {
	if opts.Table == nil {
		opts.Table = MustNewTable(DefaultRules())
	}
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.HomePath == "" {
		opts.HomePath = "/dashboard"
	}
	return &Guard{
		table:     opts.Table,
		loginPath: opts.LoginPath,
		homePath:  opts.HomePath,
		observer:  opts.Observer,
	}
}

// Decide is the guard's pure decision function.
func (g *Guard) Decide(path string, present bool) Decision {
	class := g.table.Classify(path)
	switch {
	case class == Protected && !present:
		return Decision{Action: Redirect, Location: g.loginPath, Class: class}
	case class == AuthOnly && present:
		return Decision{Action: Redirect, Location: g.homePath, Class: class}
	default:
		return Decision{Action: Allow, Class: class}
	}
}

// Handler runs the guard as gin middleware.
func (g *Guard) Handler(presence PresenceChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if Excluded(path) {
			g.observe("", OutcomeExcluded)
			c.Next()
			return
		}

		d := g.Decide(path, presence.Present(c.Request))
		if d.Action == Redirect {
			g.observe(d.Class.String(), OutcomeRedirect)
			c.Redirect(http.StatusFound, d.Location)
			c.Abort()
			return
		}

		g.observe(d.Class.String(), OutcomeAllow)
		c.Next()
	}
}

func (g *Guard) observe(class, outcome string) {
	if g.observer != nil {
		g.observer.ObserveGuard(class, outcome)
	}
}

var (
	excludedPrefixes = []string{"/static/", "/api/"}
	excludedPaths    = map[string]bool{
		"/api":         true,
		"/metrics":     true,
		"/health":      true,
		"/ping":        true,
		"/favicon.ico": true,
		"/robots.txt":  true,
	}
)

// Excluded reports paths the guard never looks at: static assets, the relay
// API and operational endpoints.
func Excluded(path string) bool {
	if excludedPaths[path] {
		return true
	}
	for _, p := range excludedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
