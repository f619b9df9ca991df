package relay

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/linkrelay/internal/upstream"
)

// ErrorKind classifies every failure the relay reports to a browser.
type ErrorKind int

const (
	// KindUnauthorized means no credential, or the upstream refused it.
	KindUnauthorized ErrorKind = iota
	// KindUpstreamRejected carries an upstream business error through unchanged.
	KindUpstreamRejected
	// KindBadRequest is malformed relay-level input.
	KindBadRequest
	// KindUpstreamUnavailable is a transport or parse failure talking to upstream.
	KindUpstreamUnavailable
	// KindRateLimited is a locked out login.
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindBadRequest:
		return "bad_request"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Fixed details for the errors the relay produces itself.
const (
	DetailUnauthorized       = "Unauthorized"
	DetailUnavailable        = "Upstream service unavailable"
	DetailInvalidCredentials = "Invalid credentials"
	DetailInvalidContentType = "Invalid content type"
	DetailInvalidBody        = "Invalid request body"
	DetailUserNotFound       = "User not found"
	DetailLinkNotFound       = "Link not found"
	DetailTooManyAttempts    = "Too many login attempts"
	DetailLoggedOut          = "Logged out"
	DetailBodyTooLarge       = "Request body too large"
)

// Request body limits. JSON bodies are buffered, uploads are streamed.
const (
	maxJSONBodyBytes = 1 << 20
	maxUploadBytes   = 10 << 20
)

// Error is a failure with the exact status and detail the browser receives.
type Error struct {
	Kind   ErrorKind
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Detail)
}

// ErrorResponse is the body of every relay error.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// SuccessResponse is returned by operations that have no upstream body to relay.
type SuccessResponse struct {
	Detail string `json:"detail"`
}

func errUnauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Detail: DetailUnauthorized}
}

func errTooLarge() *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusRequestEntityTooLarge, Detail: DetailBodyTooLarge}
}

func errBadRequest(detail string) *Error {
	return &Error{Kind: KindBadRequest, Status: http.StatusBadRequest, Detail: detail}
}

// errRejected passes the upstream status and detail through, using fallback
// only when upstream gave no usable detail.
func errRejected(resp *upstream.Response, fallback string) *Error {
	detail := resp.Detail()
	if detail == "" {
		detail = fallback
	}
	return &Error{Kind: KindUpstreamRejected, Status: resp.StatusCode, Detail: detail}
}

// upstreamMalformed reports a 2xx upstream body missing what the relay needs.
func upstreamMalformed(reason string) error {
	return fmt.Errorf("%w: %s", upstream.ErrUnavailable, reason)
}

// respondError maps err onto a {detail} response. Anything that is not a
// relay Error is logged and reported with the generic upstream detail.
func respondError(c *gin.Context, err error) {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		c.AbortWithStatusJSON(relayErr.Status, ErrorResponse{Detail: relayErr.Detail})
		return
	}

	if errors.Is(err, upstream.ErrUnavailable) {
		log.Printf("[UPSTREAM] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		log.Printf("[RELAY] Internal error (%s %s): %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: DetailUnavailable})
}

// relayResponse writes an upstream response to the browser unchanged.
func relayResponse(c *gin.Context, resp *upstream.Response) {
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		c.Status(resp.StatusCode)
		return
	}
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, resp.Body)
}
