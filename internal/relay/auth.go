// Package relay implements the browser-facing API. It turns the upstream
// bearer-token protocol into a cookie session and passes upstream results
// through without reinterpreting them.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

// AuthUpstream is the part of the upstream API used by AuthController.
type AuthUpstream interface {
	Login(ctx context.Context, username, password string) (*upstream.Response, error)
	Register(ctx context.Context, body []byte) (*upstream.Response, error)
	Me(ctx context.Context, token string) (*upstream.Response, error)
	UpdateMe(ctx context.Context, token, contentType string, body io.Reader) (*upstream.Response, error)
}

// LoginLimiter throttles repeated failed logins per client and username.
type LoginLimiter interface {
	Allow(ip, username string) (bool, time.Duration)
	RecordFailure(ip, username string) (bool, time.Duration)
	RecordSuccess(ip, username string)
}

// AuthRecorder receives authentication events for the audit trail.
type AuthRecorder interface {
	LogAuth(action, username, ipAddr, userAgent string, success bool)
}

// Audit actions recorded by AuthController.
const (
	ActionLogin       = "login"
	ActionRegister    = "register"
	ActionLogout      = "logout"
	ActionLoginLocked = "login_locked"
)

// AuthOptions configures AuthController. Limiter and Recorder are optional.
type AuthOptions struct {
	CredentialTTL time.Duration
	Limiter       LoginLimiter
	Recorder      AuthRecorder
}

// AuthController serves /api/auth.
type AuthController struct {
	upstream AuthUpstream
	store    credential.Store
	ttl      time.Duration
	limiter  LoginLimiter
	recorder AuthRecorder
}

// NewAuthController creates the auth gateway.
func NewAuthController(up AuthUpstream, store credential.Store, opts AuthOptions) *AuthController {
	if opts.CredentialTTL <= 0 {
		opts.CredentialTTL = 24 * time.Hour
	}
	return &AuthController{
		upstream: up,
		store:    store,
		ttl:      opts.CredentialTTL,
		limiter:  opts.Limiter,
		recorder: opts.Recorder,
	}
}

// RegisterRoutes mounts the auth endpoints on group, normally /api/auth.
func (ac *AuthController) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/login", ac.Login)
	group.POST("/register", ac.Register)
	group.GET("/me", ac.Me)
	group.PATCH("/me", ac.UpdateMe)
	group.POST("/logout", ac.Logout)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type issuedToken struct {
	AccessToken string `json:"access_token"`
}

type identity struct {
	Username string `json:"username"`
}

// Login exchanges credentials upstream, keeps the issued token in the
// credential store and answers with the resolved username.
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxJSONBodyBytes)
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, errTooLarge())
			return
		}
		respondError(c, errBadRequest(DetailInvalidBody))
		return
	}
	clientIP := c.ClientIP()

	if ac.limiter != nil {
		if allowed, retryAfter := ac.limiter.Allow(clientIP, req.Username); !allowed {
			ac.record(c, ActionLoginLocked, req.Username, false)
			respondRateLimited(c, retryAfter)
			return
		}
	}

	username, err := ac.login(c, req)
	if err != nil {
		ac.recordFailure(clientIP, req.Username)
		ac.record(c, ActionLogin, req.Username, false)
		log.Printf("[LOGIN] Failed login for %q from %s: %v", req.Username, clientIP, err)
		respondError(c, err)
		return
	}

	if ac.limiter != nil {
		ac.limiter.RecordSuccess(clientIP, req.Username)
	}
	ac.record(c, ActionLogin, username, true)
	log.Printf("[LOGIN] %q logged in from %s", username, clientIP)

	c.JSON(http.StatusOK, identity{Username: username})
}

// login runs the two sequential upstream calls. The credential is stored
// only once both succeed, so a failed login never leaves a cookie behind.
func (ac *AuthController) login(c *gin.Context, req loginRequest) (string, error) {
	ctx := c.Request.Context()

	resp, err := ac.upstream.Login(ctx, req.Username, req.Password)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		detail := resp.Detail()
		if detail == "" {
			detail = DetailInvalidCredentials
		}
		return "", &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Detail: detail}
	}

	var issued issuedToken
	if err := resp.Decode(&issued); err != nil {
		return "", err
	}
	if issued.AccessToken == "" {
		return "", upstreamMalformed("login response has no access_token")
	}

	me, err := ac.upstream.Me(ctx, issued.AccessToken)
	if err != nil {
		return "", err
	}
	if !me.OK() {
		return "", errRejected(me, DetailUnauthorized)
	}

	var who identity
	if err := me.Decode(&who); err != nil {
		return "", err
	}

	if err := ac.store.Set(c, issued.AccessToken, ac.ttl); err != nil {
		return "", err
	}
	return who.Username, nil
}

func (ac *AuthController) recordFailure(ip, username string) {
	if ac.limiter == nil {
		return
	}
	if locked, lockout := ac.limiter.RecordFailure(ip, username); locked {
		log.Printf("[LOGIN] Locked out %q from %s for %s", username, ip, lockout)
	}
}

// Register forwards the registration payload verbatim and relays the result.
func (ac *AuthController) Register(c *gin.Context) {
	body, ok := readJSONBody(c)
	if !ok {
		return
	}

	resp, err := ac.upstream.Register(c.Request.Context(), body)
	if err != nil {
		respondError(c, err)
		return
	}

	var fields struct {
		Username string `json:"username"`
	}
	_ = json.Unmarshal(body, &fields)
	ac.record(c, ActionRegister, fields.Username, resp.OK())

	relayResponse(c, resp)
}

// Me resolves the identity behind the stored credential.
func (ac *AuthController) Me(c *gin.Context) {
	token, ok := ac.store.Get(c)
	if !ok {
		respondError(c, errUnauthorized())
		return
	}

	resp, err := ac.upstream.Me(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	// The identity is gone upstream, so the credential goes with it.
	if resp.StatusCode == http.StatusUnauthorized {
		if err := ac.store.Clear(c); err != nil {
			log.Printf("[RELAY] Failed to clear rejected credential: %v", err)
		}
	}

	relayResponse(c, resp)
}

// UpdateMe streams a multipart profile update upstream.
func (ac *AuthController) UpdateMe(c *gin.Context) {
	token, ok := ac.store.Get(c)
	if !ok {
		respondError(c, errUnauthorized())
		return
	}

	contentType := c.GetHeader("Content-Type")
	if !isMultipart(contentType) {
		respondError(c, errBadRequest(DetailInvalidContentType))
		return
	}
	if c.Request.ContentLength > maxUploadBytes {
		respondError(c, errTooLarge())
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	resp, err := ac.upstream.UpdateMe(c.Request.Context(), token, contentType, body)
	if err != nil {
		respondError(c, err)
		return
	}
	relayResponse(c, resp)
}

// Logout tears down the local session. Upstream is not contacted.
func (ac *AuthController) Logout(c *gin.Context) {
	if err := ac.store.Clear(c); err != nil {
		respondError(c, err)
		return
	}
	ac.record(c, ActionLogout, "", true)
	c.JSON(http.StatusOK, SuccessResponse{Detail: DetailLoggedOut})
}

func (ac *AuthController) record(c *gin.Context, action, username string, success bool) {
	if ac.recorder == nil {
		return
	}
	ac.recorder.LogAuth(action, username, c.ClientIP(), c.Request.UserAgent(), success)
}

func isMultipart(contentType string) bool {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != ""
}

func respondRateLimited(c *gin.Context, retryAfter time.Duration) {
	seconds := int(retryAfter.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Detail: DetailTooManyAttempts})
}
