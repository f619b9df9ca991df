package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/linkrelay/internal/credential"
	"github.com/mrlokans/linkrelay/internal/upstream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeUpstream is an upstream API that counts every call it receives.
type fakeUpstream struct {
	mu     sync.Mutex
	calls  map[string]int
	total  int
	mux    *http.ServeMux
	server *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{calls: make(map[string]int), mux: http.NewServeMux()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.total++
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[pattern]++
		f.mu.Unlock()
		h(w, r)
	})
}

func (f *fakeUpstream) count(pattern string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pattern]
}

func (f *fakeUpstream) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type fakeLimiter struct {
	locked    bool
	failures  int
	successes int
}

func (l *fakeLimiter) Allow(ip, username string) (bool, time.Duration) {
	if l.locked {
		return false, 90 * time.Second
	}
	return true, 0
}

func (l *fakeLimiter) RecordFailure(ip, username string) (bool, time.Duration) {
	l.failures++
	return false, 0
}

func (l *fakeLimiter) RecordSuccess(ip, username string) {
	l.successes++
}

type authEvent struct {
	action   string
	username string
	success  bool
}

type fakeRecorder struct {
	events []authEvent
}

func (r *fakeRecorder) LogAuth(action, username, ipAddr, userAgent string, success bool) {
	r.events = append(r.events, authEvent{action: action, username: username, success: success})
}

type relayDeps struct {
	limiter  *fakeLimiter
	recorder *fakeRecorder
}

func setupRelay(t *testing.T, baseURL string) (*gin.Engine, relayDeps) {
	t.Helper()

	client, err := upstream.NewClient(baseURL, 2*time.Second)
	require.NoError(t, err)
	store := credential.NewCookieStore(credential.CookieOptions{Name: "token"})

	deps := relayDeps{limiter: &fakeLimiter{}, recorder: &fakeRecorder{}}

	router := gin.New()
	api := router.Group("/api")
	NewAuthController(client, store, AuthOptions{
		CredentialTTL: 24 * time.Hour,
		Limiter:       deps.limiter,
		Recorder:      deps.recorder,
	}).RegisterRoutes(api.Group("/auth"))
	NewLinksController(client, store).RegisterRoutes(api.Group("/links"))
	NewProfileController(client, store).RegisterRoutes(api.Group("/profile"))

	return router, deps
}

func doRequest(router *gin.Engine, method, path string, body io.Reader, token string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func tokenCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == "token" {
			return cookie
		}
	}
	return nil
}

func decodeDetail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body: %s", rr.Body.String())
	return body.Detail
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "ana", req.Username)
		assert.Equal(t, "good", req.Password)
		writeJSON(w, http.StatusOK, `{"access_token":"tok123","token_type":"bearer"}`)
	})
	up.handle("GET /me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"username":"ana","email":"ana@example.com"}`)
	})
	router, deps := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"good"}`), "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"username":"ana"}`, rr.Body.String())

	cookie := tokenCookie(rr)
	require.NotNil(t, cookie)
	assert.Equal(t, "tok123", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 86400, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)

	assert.Equal(t, 1, up.count("POST /login"))
	assert.Equal(t, 1, up.count("GET /me"))
	assert.Equal(t, 1, deps.limiter.successes)
	require.Len(t, deps.recorder.events, 1)
	assert.Equal(t, authEvent{action: ActionLogin, username: "ana", success: true}, deps.recorder.events[0])
}

func TestLogin_UpstreamRejection(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantDetail string
	}{
		{"with detail", `{"detail":"Incorrect username or password"}`, "Incorrect username or password"},
		{"without detail", `{}`, DetailInvalidCredentials},
		{"structured detail", `{"detail":[{"msg":"field required"}]}`, DetailInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpstream(t)
			up.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, tt.body)
			})
			router, deps := setupRelay(t, up.server.URL)

			rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"bad"}`), "")

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Equal(t, tt.wantDetail, decodeDetail(t, rr))
			assert.Nil(t, tokenCookie(rr), "no credential may be stored on failure")
			assert.Equal(t, 0, up.count("GET /me"))
			assert.Equal(t, 1, deps.limiter.failures)
		})
	}
}

func TestLogin_SelfLookupFailureStoresNothing(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"access_token":"tok123"}`)
	})
	up.handle("GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Could not validate credentials"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"good"}`), "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Could not validate credentials", decodeDetail(t, rr))
	assert.Nil(t, tokenCookie(rr))
}

func TestLogin_MissingAccessTokenIsUnavailable(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"token_type":"bearer"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"good"}`), "")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, DetailUnavailable, decodeDetail(t, rr))
	assert.Nil(t, tokenCookie(rr))
}

func TestLogin_MalformedBody(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(`not json`), "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, DetailInvalidBody, decodeDetail(t, rr))
	assert.Equal(t, 0, up.totalCalls())
}

func TestLogin_OversizedBody(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	huge := `{"username":"ana","password":"` + strings.Repeat("p", maxJSONBodyBytes) + `"}`
	rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(huge), "")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, 0, up.totalCalls())
}

func TestLogin_RateLimited(t *testing.T) {
	up := newFakeUpstream(t)
	router, deps := setupRelay(t, up.server.URL)
	deps.limiter.locked = true

	rr := doRequest(router, http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"x"}`), "")

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "90", rr.Header().Get("Retry-After"))
	assert.Equal(t, DetailTooManyAttempts, decodeDetail(t, rr))
	assert.Equal(t, 0, up.totalCalls())
	require.Len(t, deps.recorder.events, 1)
	assert.Equal(t, ActionLoginLocked, deps.recorder.events[0].action)
}

// --- Register ---

func TestRegister_RelaysVerbatim(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("POST /register", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"username":"ana","email":"ana@example.com","password":"pw"}`, string(body))
		writeJSON(w, http.StatusCreated, `{"id":7,"username":"ana"}`)
	})
	router, deps := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/register",
		strings.NewReader(`{"username":"ana","email":"ana@example.com","password":"pw"}`), "")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"id":7,"username":"ana"}`, rr.Body.String())
	assert.Nil(t, tokenCookie(rr), "registering does not log in")
	require.Len(t, deps.recorder.events, 1)
	assert.Equal(t, authEvent{action: ActionRegister, username: "ana", success: true}, deps.recorder.events[0])
}

func TestRegister_PassesBusinessErrorThrough(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("POST /register", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"detail":"Username already registered"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":"ana"}`), "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Username already registered", decodeDetail(t, rr))
}

func TestRegister_RejectsNonJSON(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/auth/register", strings.NewReader(`username=ana`), "")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, 0, up.totalCalls())
}

func TestRegister_RejectsOversizedBody(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	huge := `{"bio":"` + strings.Repeat("x", maxJSONBodyBytes) + `"}`
	rr := doRequest(router, http.MethodPost, "/api/auth/register", strings.NewReader(huge), "")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, DetailBodyTooLarge, decodeDetail(t, rr))
	assert.Equal(t, 0, up.totalCalls())
}

// --- Me ---

func TestMe_WithoutCredential(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/auth/me", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, DetailUnauthorized, decodeDetail(t, rr))
	assert.Equal(t, 0, up.totalCalls())
}

func TestMe_RelaysIdentity(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"username":"ana","bio":"hi"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/auth/me", nil, "tok123")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"username":"ana","bio":"hi"}`, rr.Body.String())
	assert.Nil(t, tokenCookie(rr))
}

func TestMe_UpstreamRejectionClearsCredential(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"detail":"Token expired"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/auth/me", nil, "stale")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "Token expired", decodeDetail(t, rr))
	cookie := tokenCookie(rr)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestMe_UpstreamDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()
	router, _ := setupRelay(t, baseURL)

	rr := doRequest(router, http.MethodGet, "/api/auth/me", nil, "tok123")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, DetailUnavailable, decodeDetail(t, rr))
	assert.Nil(t, tokenCookie(rr), "a transport failure says nothing about the credential")
}

// --- UpdateMe ---

func TestUpdateMe_RejectsNonMultipart(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPatch, "/api/auth/me", strings.NewReader(`{"bio":"x"}`), "tok123")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, DetailInvalidContentType, decodeDetail(t, rr))
	assert.Equal(t, 0, up.totalCalls())
}

func TestUpdateMe_WithoutCredential(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPatch, "/api/auth/me", strings.NewReader(`{}`), "")

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, 0, up.totalCalls())
}

func TestUpdateMe_StreamsMultipart(t *testing.T) {
	var payload bytes.Buffer
	mw := multipart.NewWriter(&payload)
	require.NoError(t, mw.WriteField("bio", "new bio"))
	part, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte{0x89, 'P', 'N', 'G'})
	require.NoError(t, mw.Close())
	sent := payload.Bytes()

	up := newFakeUpstream(t)
	up.handle("PATCH /me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, mw.FormDataContentType(), r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, sent, body, "multipart body must not be re-encoded")
		writeJSON(w, http.StatusOK, `{"username":"ana","bio":"new bio"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPatch, "/api/auth/me", bytes.NewReader(sent), "tok123",
		"Content-Type", mw.FormDataContentType())

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"username":"ana","bio":"new bio"}`, rr.Body.String())
}

func TestUpdateMe_RejectsOversizedUpload(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	body := bytes.NewReader(make([]byte, maxUploadBytes+1))
	rr := doRequest(router, http.MethodPatch, "/api/auth/me", body, "tok123",
		"Content-Type", "multipart/form-data; boundary=xyz")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, 0, up.totalCalls())
}

// --- Logout ---

func TestLogout_ClearsCredentialIdempotently(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	for _, token := range []string{"tok123", ""} {
		rr := doRequest(router, http.MethodPost, "/api/auth/logout", nil, token)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"detail":"Logged out"}`, rr.Body.String())
		cookie := tokenCookie(rr)
		require.NotNil(t, cookie)
		assert.Equal(t, "", cookie.Value)
		assert.Equal(t, -1, cookie.MaxAge)
	}
	assert.Equal(t, 0, up.totalCalls())
}

// --- Links ---

func TestLinks_PublicProfileNotFound(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"), "public lookups never carry a credential")
		w.WriteHeader(http.StatusNotFound)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/links?username=ghost", nil, "tok123")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, DetailUserNotFound, decodeDetail(t, rr))
}

func TestLinks_PublicProfileSuccess(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ana", r.PathValue("username"))
		writeJSON(w, http.StatusOK, `{"username":"ana","links":[{"id":1,"title":"Site","url":"https://a.example"}]}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/links?username=ana", nil, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"username":"ana","links":[{"id":1,"title":"Site","url":"https://a.example"}]}`, rr.Body.String())
}

func TestLinks_OwnListRequiresCredential(t *testing.T) {
	up := newFakeUpstream(t)
	router, _ := setupRelay(t, up.server.URL)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/links"},
		{http.MethodPost, "/api/links"},
		{http.MethodGet, "/api/links/1"},
		{http.MethodPut, "/api/links/1"},
		{http.MethodDelete, "/api/links/1"},
	} {
		rr := doRequest(router, tc.method, tc.path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "%s %s", tc.method, tc.path)
	}
	assert.Equal(t, 0, up.totalCalls())
}

func TestLinks_CreateAttachesBearer(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("POST /links", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"Blog","url":"https://blog.example"}`, string(body))
		writeJSON(w, http.StatusCreated, `{"id":3,"title":"Blog","url":"https://blog.example"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPost, "/api/links", strings.NewReader(`{"title":"Blog","url":"https://blog.example"}`), "tok123")

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"id":3,"title":"Blog","url":"https://blog.example"}`, rr.Body.String())
}

func TestLinks_UpdatePassesValidationErrorThrough(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("PUT /links/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.PathValue("id"))
		writeJSON(w, http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","url"],"msg":"invalid url"}]}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodPut, "/api/links/5", strings.NewReader(`{"url":"nope"}`), "tok123")

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.JSONEq(t, `{"detail":[{"loc":["body","url"],"msg":"invalid url"}]}`, rr.Body.String())
}

func TestLinks_GetNotFoundFallsBack(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /links/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/links/99", nil, "tok123")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, DetailLinkNotFound, decodeDetail(t, rr))
}

func TestLinks_DeleteRelaysNoContent(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("DELETE /links/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodDelete, "/api/links/4", nil, "tok123")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, 1, up.count("DELETE /links/{id}"))
}

func TestLinks_ForbiddenIsNotReinterpreted(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("DELETE /links/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, `{"detail":"Not your link"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodDelete, "/api/links/4", nil, "tok123")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "Not your link", decodeDetail(t, rr))
}

// --- Profile ---

func TestProfile_OwnerView(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"username":"ana","links":[]}`)
	})
	up.handle("GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"username":"ana"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/profile/ana", nil, "tok123")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"profile":{"username":"ana","links":[]},"viewer":"ana","is_owner":true}`, rr.Body.String())
	assert.Equal(t, 1, up.count("GET /me"))
}

func TestProfile_AnonymousViewerSkipsSelfLookup(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"username":"ana","links":[]}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/profile/ana", nil, "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"profile":{"username":"ana","links":[]},"viewer":null,"is_owner":false}`, rr.Body.String())
	assert.Equal(t, 0, up.count("GET /me"))
}

func TestProfile_ViewerFailureIsAnonymous(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"username":"ana"}`)
	})
	up.handle("GET /me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"detail":"boom"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/profile/ana", nil, "tok123")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"profile":{"username":"ana"},"viewer":null,"is_owner":false}`, rr.Body.String())
}

func TestProfile_NotFound(t *testing.T) {
	up := newFakeUpstream(t)
	up.handle("GET /users/{username}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"detail":"No such user"}`)
	})
	router, _ := setupRelay(t, up.server.URL)

	rr := doRequest(router, http.MethodGet, "/api/profile/ghost", nil, "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No such user", decodeDetail(t, rr))
}
