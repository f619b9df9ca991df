// Package session mirrors the browser's view of the relay session: whether
// the identity is still being resolved, who is signed in, and where to go
// when the current page needs a session that is not there.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// API is the relay surface the session state depends on.
type API interface {
	Me(ctx context.Context) (Identity, error)
	Login(ctx context.Context, username, password string) (Identity, error)
	Logout(ctx context.Context) error
}

// Navigator owns the current location.
type Navigator interface {
	Path() string
	Navigate(path string)
}

// Routes tells which paths render without a session.
type Routes interface {
	Listed(path string) bool
}

// State is a snapshot of the session.
type State struct {
	Resolving bool
	Identity  *Identity
}

// Authenticated reports whether an identity is known.
func (s State) Authenticated() bool {
	return s.Identity != nil
}

// Options configures a Manager.
type Options struct {
	LoginPath string
	HomePath  string
	// RetryDelay is the pause before the single retry of a failed self-lookup.
	RetryDelay time.Duration
}

// Manager is the single owner of session state. All transitions go through it.
type Manager struct {
	api    API
	nav    Navigator
	routes Routes

	loginPath  string
	homePath   string
	retryDelay time.Duration

	mu        sync.RWMutex
	resolving bool
	identity  *Identity
}

// NewManager creates a manager in the resolving state. Call Init to resolve.
func NewManager(api API, nav Navigator, routes Routes, opts Options) *Manager {
	if opts.LoginPath == "" {
		opts.LoginPath = "/login"
	}
	if opts.HomePath == "" {
		opts.HomePath = "/dashboard"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	return &Manager{
		api:        api,
		nav:        nav,
		routes:     routes,
		loginPath:  opts.LoginPath,
		homePath:   opts.HomePath,
		retryDelay: opts.RetryDelay,
		resolving:  true,
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := State{Resolving: m.resolving}
	if m.identity != nil {
		id := *m.identity
		s.Identity = &id
	}
	return s
}

// Init resolves the identity once, then applies the redirect rule.
func (m *Manager) Init(ctx context.Context) State {
	m.mu.Lock()
	m.resolving = true
	m.mu.Unlock()

	id := m.resolve(ctx)

	m.mu.Lock()
	m.identity = id
	m.resolving = false
	m.mu.Unlock()

	m.Enforce()
	return m.State()
}

// Login signs in, re-resolves the identity and moves to the home page.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if _, err := m.api.Login(ctx, username, password); err != nil {
		return err
	}

	id := m.resolve(ctx)
	m.setIdentity(id)
	if id == nil {
		return errors.New("signed in but the identity could not be resolved")
	}

	m.nav.Navigate(m.homePath)
	return nil
}

// Logout asks the relay to drop the session. The local identity is cleared
// and the login page shown whatever the relay answers.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.api.Logout(ctx)
	m.setIdentity(nil)
	m.nav.Navigate(m.loginPath)
	return err
}

// Visit moves to path and applies the redirect rule there.
func (m *Manager) Visit(path string) {
	m.nav.Navigate(path)
	m.Enforce()
}

// Enforce sends an anonymous visitor of a page that needs a session to the
// login page. It does nothing while the identity is still resolving.
func (m *Manager) Enforce() {
	s := m.State()
	if s.Resolving || s.Authenticated() {
		return
	}
	if path := m.nav.Path(); !m.routes.Listed(path) {
		m.nav.Navigate(m.loginPath)
	}
}

// setIdentity stores the result of a lookup. Concurrent lookups may finish
// in any order; the last one to finish wins.
func (m *Manager) setIdentity(id *Identity) {
	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()
}

// resolve runs the self-lookup, retrying once after a transport failure or
// a 5xx. Any failure leaves the visitor anonymous.
func (m *Manager) resolve(ctx context.Context) *Identity {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(m.retryDelay))

	var id Identity
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		id, err = m.api.Me(ctx)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Temporary() {
			log.Printf("[SESSION] Self-lookup failed: %v", err)
		}
		return nil
	}
	return &id
}

// MemoryNavigator is a Navigator that only records where it was sent.
type MemoryNavigator struct {
	mu      sync.Mutex
	path    string
	history []string
}

func NewMemoryNavigator(start string) *MemoryNavigator {
	return &MemoryNavigator{path: start}
}

func (n *MemoryNavigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *MemoryNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.history = append(n.history, path)
}

// History lists every navigation in order.
func (n *MemoryNavigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.history...)
}
