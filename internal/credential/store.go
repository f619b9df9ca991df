// Package credential keeps the upstream bearer credential for a browser
// session out of reach of page scripts.
//
// Two backends are available:
//   - CookieStore: the opaque token itself is the value of an HttpOnly cookie.
//   - SessionStore: the cookie carries a session id and the token lives in a
//     shared SQLite session table (scs).
//
// Neither backend inspects the credential. Its meaning is defined upstream.
package credential

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Store holds at most one credential per browser session.
type Store interface {
	// Get returns the current credential, or false when there is none.
	Get(c *gin.Context) (string, bool)
	// Set stores the credential for ttl.
	Set(c *gin.Context, value string, ttl time.Duration) error
	// Clear removes the credential immediately. Clearing an empty store is not an error.
	Clear(c *gin.Context) error
	// Present reports whether the request carries the credential cookie at all.
	// It never decodes or looks up the value.
	Present(r *http.Request) bool
	// Middleware must run before any handler calls Get, Set or Clear.
	Middleware() gin.HandlerFunc
}

// CookieOptions defines how the credential cookie is issued.
type CookieOptions struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
}

// normalize applies safe defaults without breaking callers
func (o CookieOptions) normalize() CookieOptions {
	if o.Name == "" {
		o.Name = "token"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// overrideKey records a Set or Clear made earlier in the same request so that
// a later Get agrees with what the response is about to tell the browser.
const overrideKey = "credential_override"

type override struct {
	value   string
	cleared bool
}

func pendingValue(c *gin.Context) (override, bool) {
	v, exists := c.Get(overrideKey)
	if !exists {
		return override{}, false
	}
	o, ok := v.(override)
	return o, ok
}

func cookiePresent(r *http.Request, name string) bool {
	cookie, err := r.Cookie(name)
	return err == nil && cookie.Value != ""
}
