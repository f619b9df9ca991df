package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const csrfHeader = "X-CSRF-Token"

// ErrInsecureRelay means the relay issued a Secure cookie to a plain HTTP
// client. The cookie jar would never send it back.
var ErrInsecureRelay = errors.New("relay sets Secure cookies but is reached over plain HTTP")

// Identity is who the relay says the current browser session belongs to.
type Identity struct {
	Username string `json:"username"`
}

// APIError is a non-2xx relay response.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("relay returned %d", e.Status)
	}
	return fmt.Sprintf("relay returned %d: %s", e.Status, e.Detail)
}

// Temporary reports failures worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status >= http.StatusInternalServerError
}

// Client talks to the relay API like a browser does: the credential lives
// in a cookie jar and is never visible to the caller.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu        sync.Mutex
	csrfToken string
}

// NewClient creates a relay client with an empty cookie jar.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("relay URL must be absolute: %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			// Redirects are navigation, not data.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Cookies returns the jar's cookies for the relay origin.
func (c *Client) Cookies() []*http.Cookie {
	return c.httpClient.Jar.Cookies(c.baseURL)
}

// SetCookies seeds the jar, e.g. from a saved session.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.httpClient.Jar.SetCookies(c.baseURL, cookies)
}

// Me resolves the current identity.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var id Identity
	if err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, &id); err != nil {
		return Identity{}, err
	}
	if id.Username == "" {
		return Identity{}, &APIError{Status: http.StatusUnauthorized, Detail: "no username in response"}
	}
	return id, nil
}

// Login signs in and returns the identity the relay resolved.
func (c *Client) Login(ctx context.Context, username, password string) (Identity, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := c.call(ctx, http.MethodPost, "/api/auth/login", body, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Logout drops the relay session.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	var headers map[string]string
	if method != http.MethodGet {
		token, err := c.csrf(ctx)
		if err != nil {
			return err
		}
		headers = map[string]string{"Referer": c.baseURL.String() + "/"}
		if token != "" {
			headers[csrfHeader] = token
		}
	}

	resp, err := c.send(ctx, method, path, body, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read relay response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: detailOf(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode relay response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, headers map[string]string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if c.baseURL.Scheme == "http" {
		for _, cookie := range resp.Cookies() {
			if cookie.Secure {
				_ = resp.Body.Close()
				return nil, fmt.Errorf("%w: cookie %q; use an https:// relay URL or run the relay with AUTH_SECURE_COOKIES=false",
					ErrInsecureRelay, cookie.Name)
			}
		}
	}
	return resp, nil
}

// csrf fetches the relay's CSRF token once. A relay without CSRF
// protection answers with an empty token.
func (c *Client) csrf(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.csrfToken != "" {
		return c.csrfToken, nil
	}

	resp, err := c.send(ctx, http.MethodGet, "/api/auth/csrf", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode csrf token: %w", err)
	}
	c.csrfToken = payload.Token
	return c.csrfToken, nil
}

func detailOf(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if s, ok := payload.Detail.(string); ok {
		return s
	}
	return ""
}
