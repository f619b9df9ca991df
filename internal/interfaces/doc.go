// Package interfaces collects the relay's extension points and holds
// compile-time checks that the concrete types still satisfy them.
//
// # Interface Categories
//
// ## Credential Storage
//
//   - credential.Store: where the upstream token lives between requests
//     (cookie or SQLite session, internal/credential/store.go)
//   - credential.Sealer: encryption of tokens at rest (internal/credential/session.go)
//
// ## Upstream
//
//   - relay.AuthUpstream, relay.LinksUpstream, relay.ProfileUpstream: the slices
//     of the upstream API each controller calls (internal/relay)
//
// ## Login Hardening and Audit
//
//   - relay.LoginLimiter: failed-login throttling (internal/auth/ratelimit.go)
//   - relay.AuthRecorder: auth event trail (internal/audit/service.go)
//
// ## Observability
//
//   - upstream.Observer, guard.Observer: metrics hooks (internal/metrics)
//   - http.Pinger: dependencies reported by /health
//
// ## Client Session
//
//   - session.API, session.Navigator, session.Routes: what the client-side
//     session manager depends on (internal/session/manager.go)
//
// # Adding a Credential Backend
//
//  1. Implement credential.Store in internal/credential/
//
//     type RedisStore struct {
//         client *redis.Client
//     }
//
//     func (s *RedisStore) Get(c *gin.Context) (string, bool)
//     func (s *RedisStore) Set(c *gin.Context, value string, ttl time.Duration) error
//     func (s *RedisStore) Clear(c *gin.Context) error
//     func (s *RedisStore) Present(r *http.Request) bool
//     func (s *RedisStore) Middleware() gin.HandlerFunc
//
//  2. Add a check to checks.go:
//
//     var _ credential.Store = (*credential.RedisStore)(nil)
//
//  3. Select it in entrypoint.go from AUTH_CREDENTIAL_STORE
//
// # Compile-Time Interface Checks
//
// All implementations should include compile-time checks to ensure they satisfy
// their interfaces:
//
//	var _ SomeInterface = (*MyImplementation)(nil)
package interfaces
