package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of an upstream body is buffered for relay.
	maxResponseBytes = 10 << 20

	requestIDHeader = "X-Request-ID"
)

// Observer receives one notification per upstream call.
type Observer interface {
	ObserveUpstream(op string, status int, err error, elapsed time.Duration)
}

// Client talks to the upstream user/profile/link API.
// It never retries; a failed call is reported once and the caller decides.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	observer   Observer
}

// NewClient creates an upstream client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates an upstream client using the given http.Client.
func NewClientWithHTTP(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse upstream URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream URL must be absolute: %q", baseURL)
	}
	return &Client{baseURL: u, httpClient: httpClient}, nil
}

// SetObserver attaches call instrumentation.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Request describes a single upstream call.
type Request struct {
	// Op names the call for logs and metrics, e.g. "GET /links/{id}".
	Op          string
	Method      string
	Path        string // Already escaped, relative to the base URL
	Token       string // Sent as a bearer credential when not empty
	Body        io.Reader
	ContentType string
}

// Do performs the request and buffers the response. Any HTTP response,
// whatever its status, is returned as a Response; only transport and read
// failures are returned as errors, always wrapping ErrUnavailable.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, r)

	if c.observer != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.observer.ObserveUpstream(r.Op, status, err, time.Since(start))
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, r Request) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, c.baseURL.String()+r.Path, r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to create request: %w", ErrUnavailable, r.Op, err)
	}

	req.Header.Set("Accept", "application/json")
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	if r.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.Token)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set(requestIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: request failed: %w", ErrUnavailable, r.Op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: failed to read response: %w", ErrUnavailable, r.Op, err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("%w: %s: response exceeds %d bytes", ErrUnavailable, r.Op, maxResponseBytes)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Ping checks that the upstream base URL answers HTTP at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, Request{Op: "GET /", Method: http.MethodGet, Path: "/"})
	return err
}

// --- Auth ---

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (*Response, error) {
	body, err := json.Marshal(credentials{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode login body: %w", err)
	}
	return c.Do(ctx, Request{
		Op:          "POST /login",
		Method:      http.MethodPost,
		Path:        "/login",
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
}

// Register forwards a registration body verbatim.
func (c *Client) Register(ctx context.Context, body []byte) (*Response, error) {
	return c.Do(ctx, Request{
		Op:          "POST /register",
		Method:      http.MethodPost,
		Path:        "/register",
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
}

// Me resolves the identity behind token.
func (c *Client) Me(ctx context.Context, token string) (*Response, error) {
	return c.Do(ctx, Request{
		Op:     "GET /me",
		Method: http.MethodGet,
		Path:   "/me",
		Token:  token,
	})
}

// UpdateMe streams a multipart body to the profile update endpoint.
// contentType must carry the original multipart boundary.
func (c *Client) UpdateMe(ctx context.Context, token, contentType string, body io.Reader) (*Response, error) {
	return c.Do(ctx, Request{
		Op:          "PATCH /me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Token:       token,
		Body:        body,
		ContentType: contentType,
	})
}

// PublicProfile fetches a profile and its links by username. No credential is sent.
func (c *Client) PublicProfile(ctx context.Context, username string) (*Response, error) {
	return c.Do(ctx, Request{
		Op:     "GET /users/{username}",
		Method: http.MethodGet,
		Path:   "/users/" + url.PathEscape(username),
	})
}

// --- Links ---

func (c *Client) ListLinks(ctx context.Context, token string) (*Response, error) {
	return c.Do(ctx, Request{
		Op:     "GET /links",
		Method: http.MethodGet,
		Path:   "/links",
		Token:  token,
	})
}

func (c *Client) CreateLink(ctx context.Context, token string, body []byte) (*Response, error) {
	return c.Do(ctx, Request{
		Op:          "POST /links",
		Method:      http.MethodPost,
		Path:        "/links",
		Token:       token,
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
}

func (c *Client) GetLink(ctx context.Context, token, id string) (*Response, error) {
	return c.Do(ctx, Request{
		Op:     "GET /links/{id}",
		Method: http.MethodGet,
		Path:   "/links/" + url.PathEscape(id),
		Token:  token,
	})
}

func (c *Client) UpdateLink(ctx context.Context, token, id string, body []byte) (*Response, error) {
	return c.Do(ctx, Request{
		Op:          "PUT /links/{id}",
		Method:      http.MethodPut,
		Path:        "/links/" + url.PathEscape(id),
		Token:       token,
		Body:        bytes.NewReader(body),
		ContentType: "application/json",
	})
}

func (c *Client) DeleteLink(ctx context.Context, token, id string) (*Response, error) {
	return c.Do(ctx, Request{
		Op:     "DELETE /links/{id}",
		Method: http.MethodDelete,
		Path:   "/links/" + url.PathEscape(id),
		Token:  token,
	})
}
