// Package auth holds the relay's request hardening: login rate limiting,
// CSRF protection for cookie-authenticated calls, and security headers.
//
// # Configuration
//
//	AUTH_CSRF_SECRET=<any string>   # Enables CSRF; the key is derived with HKDF
//	AUTH_SECURE_COOKIES=true        # HTTPS-only cookies and strict Referer checks
//	AUTH_MAX_LOGIN_ATTEMPTS=5
//	AUTH_RATE_LIMIT_WINDOW=15m
//	AUTH_LOCKOUT_DURATION=30m
//
// # Usage
//
//	key, _ := auth.DeriveCSRFKey(cfg.Auth.CSRFSecret)
//	router.Use(auth.SecurityHeadersMiddleware())
//	router.Use(auth.CSRFMiddleware(key, cfg.Auth.SecureCookies))
//	router.GET("/api/auth/csrf", auth.CSRFTokenHandler)
//
// Browsers fetch the token once and send it back in the X-CSRF-Token header
// on every POST, PUT, PATCH and DELETE.
package auth
