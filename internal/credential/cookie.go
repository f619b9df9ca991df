package credential

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieStore keeps the raw credential as the value of an HttpOnly cookie.
type CookieStore struct {
	opts CookieOptions
}

// NewCookieStore creates a cookie-backed credential store.
func NewCookieStore(opts CookieOptions) *CookieStore {
	return &CookieStore{opts: opts.normalize()}
}

func (s *CookieStore) Get(c *gin.Context) (string, bool) {
	if o, ok := pendingValue(c); ok {
		if o.cleared {
			return "", false
		}
		return o.value, true
	}

	cookie, err := c.Request.Cookie(s.opts.Name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func (s *CookieStore) Set(c *gin.Context, value string, ttl time.Duration) error {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.opts.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})
	c.Set(overrideKey, override{value: value})
	return nil
}

func (s *CookieStore) Clear(c *gin.Context) error {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.opts.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.Secure,
		SameSite: s.opts.SameSite,
	})
	c.Set(overrideKey, override{cleared: true})
	return nil
}

func (s *CookieStore) Present(r *http.Request) bool {
	return cookiePresent(r, s.opts.Name)
}

// Middleware is a no-op: the cookie travels with every request.
func (s *CookieStore) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
	}
}
