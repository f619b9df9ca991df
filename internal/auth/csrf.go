package auth

import (
	"log"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"

	"github.com/mrlokans/linkrelay/internal/crypto"
)

// CSRFTokenHeader is the header browsers send the CSRF token in.
const CSRFTokenHeader = "X-CSRF-Token"

const csrfContextKey = "csrf_token"

// csrfKeyPurpose binds the derived key to CSRF tokens.
const csrfKeyPurpose = "linkrelay csrf v1"

// DeriveCSRFKey stretches a configured secret into the 32-byte key gorilla/csrf needs.
func DeriveCSRFKey(secret string) ([]byte, error) {
	return crypto.DeriveKey(secret, csrfKeyPurpose)
}

// CSRFMiddleware protects every unsafe method with a double-submit token.
// Safe methods pass and get a fresh token in the context. When secure is
// false the relay is assumed to be served over plain HTTP and gorilla's
// strict Referer check for HTTPS is skipped.
func CSRFMiddleware(key []byte, secure bool) gin.HandlerFunc {
	protect := csrf.Protect(
		key,
		csrf.Secure(secure),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.Path("/"),
		csrf.RequestHeader(CSRFTokenHeader),
		csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)),
	)

	return func(c *gin.Context) {
		req := c.Request
		// gorilla reads a missing header token from the parsed form, which
		// drains a body the relay still has to forward.
		if !isSafeMethod(req.Method) && hasFormBody(req) && req.Header.Get(CSRFTokenHeader) == "" {
			log.Printf("[CSRF] Rejected %s %s: form body without %s header", req.Method, req.URL.Path, CSRFTokenHeader)
			writeCSRFRejection(c.Writer)
			c.Abort()
			return
		}
		if !secure {
			req = csrf.PlaintextHTTPRequest(req)
		}

		handler := protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Set(csrfContextKey, csrf.Token(r))
			c.Request = r
			c.Next()
		}))
		handler.ServeHTTP(c.Writer, req)

		// The error handler answered without calling through.
		if _, passed := c.Get(csrfContextKey); !passed {
			c.Abort()
		}
	}
}

// csrfErrorHandler answers rejected requests in the relay's {detail} shape.
func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	log.Printf("[CSRF] Rejected %s %s: %v", r.Method, r.URL.Path, csrf.FailureReason(r))
	writeCSRFRejection(w)
}

func writeCSRFRejection(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"detail":"CSRF token invalid or missing"}`))
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func hasFormBody(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "application/x-www-form-urlencoded" || strings.HasPrefix(mediaType, "multipart/")
}

// GetCSRFToken returns the token set by CSRFMiddleware, or "" when CSRF is off.
func GetCSRFToken(c *gin.Context) string {
	if token, exists := c.Get(csrfContextKey); exists {
		if t, ok := token.(string); ok {
			return t
		}
	}
	return ""
}

// CSRFTokenHandler serves GET /api/auth/csrf.
func CSRFTokenHandler(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"csrf_token": GetCSRFToken(c)})
}
