package credential

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"
)

// Session data keys
const (
	sessionKeyCredential = "credential"
	sessionKeyExpiresAt  = "credential_expires_at"
)

// SessionStore keeps the credential server-side in a shared SQLite session
// table. The browser cookie only carries the scs session token.
type SessionStore struct {
	sm     *scs.SessionManager
	store  *sqlite3store.SQLite3Store
	db     *sql.DB
	sealer Sealer
}

// Sealer protects the credential while it sits in the session database.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// SealWith encrypts credentials written from now on. Call it before serving.
func (s *SessionStore) SealWith(sealer Sealer) {
	s.sealer = sealer
}

// NewSessionStore opens (or creates) the session database at dbPath.
// maxTTL bounds the scs session lifetime; Set may use a shorter ttl.
func NewSessionStore(dbPath string, opts CookieOptions, maxTTL time.Duration) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	opts = opts.normalize()
	store := sqlite3store.New(db)

	sm := scs.New()
	sm.Store = store
	sm.Lifetime = maxTTL
	sm.Cookie.Name = opts.Name
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = opts.Secure
	sm.Cookie.SameSite = opts.SameSite
	sm.Cookie.Path = "/"
	sm.Cookie.Persist = true

	return &SessionStore{sm: sm, store: store, db: db}, nil
}

func (s *SessionStore) Get(c *gin.Context) (string, bool) {
	if o, ok := pendingValue(c); ok {
		if o.cleared {
			return "", false
		}
		return o.value, true
	}

	ctx := c.Request.Context()
	value := s.sm.GetString(ctx, sessionKeyCredential)
	if value == "" {
		return "", false
	}
	if expiresAt := s.sm.GetInt64(ctx, sessionKeyExpiresAt); expiresAt > 0 && time.Now().Unix() >= expiresAt {
		return "", false
	}
	if s.sealer != nil {
		opened, err := s.sealer.Open(value)
		if err != nil {
			log.Printf("[SESSION] Stored credential unreadable, treating as signed out: %v", err)
			return "", false
		}
		value = opened
	}
	return value, true
}

func (s *SessionStore) Set(c *gin.Context, value string, ttl time.Duration) error {
	ctx := c.Request.Context()

	stored := value
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("failed to seal credential: %w", err)
		}
		stored = sealed
	}

	// Renew token to prevent session fixation
	if err := s.sm.RenewToken(ctx); err != nil {
		return fmt.Errorf("failed to renew session token: %w", err)
	}
	s.sm.Put(ctx, sessionKeyCredential, stored)
	s.sm.Put(ctx, sessionKeyExpiresAt, time.Now().Add(ttl).Unix())

	c.Set(overrideKey, override{value: value})
	return nil
}

func (s *SessionStore) Clear(c *gin.Context) error {
	c.Set(overrideKey, override{cleared: true})
	if err := s.sm.Destroy(c.Request.Context()); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func (s *SessionStore) Present(r *http.Request) bool {
	return cookiePresent(r, s.sm.Cookie.Name)
}

// Middleware loads the session into the request context and writes the
// session cookie before the response headers go out.
func (s *SessionStore) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var token string
		if cookie, err := c.Request.Cookie(s.sm.Cookie.Name); err == nil {
			token = cookie.Value
		}

		ctx, err := s.sm.Load(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Session unavailable"})
			return
		}
		c.Request = c.Request.WithContext(ctx)

		srw := &sessionResponseWriter{
			ResponseWriter: c.Writer,
			sm:             s.sm,
			request:        c.Request,
		}
		c.Writer = srw

		c.Next()

		if !srw.wroteHeader {
			srw.writeSessionCookie()
		}
	}
}

// Ping checks the session database.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close stops the expired-session sweeper and closes the database.
func (s *SessionStore) Close() error {
	s.store.StopCleanup()
	return s.db.Close()
}

// sessionResponseWriter commits the session on the first header write.
type sessionResponseWriter struct {
	gin.ResponseWriter
	sm            *scs.SessionManager
	request       *http.Request
	wroteHeader   bool
	cookieWritten bool
}

func (w *sessionResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *sessionResponseWriter) WriteHeaderNow() {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	w.ResponseWriter.WriteHeaderNow()
}

func (w *sessionResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.writeSessionCookie()
	}
	return w.ResponseWriter.Write(b)
}

func (w *sessionResponseWriter) writeSessionCookie() {
	if w.cookieWritten {
		return
	}
	w.cookieWritten = true

	ctx := w.request.Context()
	switch w.sm.Status(ctx) {
	case scs.Modified:
		token, expiry, err := w.sm.Commit(ctx)
		if err != nil {
			return
		}
		w.sm.WriteSessionCookie(ctx, w.ResponseWriter, token, expiry)
	case scs.Destroyed:
		w.sm.WriteSessionCookie(ctx, w.ResponseWriter, "", time.Time{})
	}
}

func (w *sessionResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}
