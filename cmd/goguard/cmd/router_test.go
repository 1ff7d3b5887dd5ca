package cmd

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/backend/memory"
	"github.com/MrEthical07/goGuard/session"
)

func fastPasswords() goGuard.PasswordConfig {
	return goGuard.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MaxConcurrent: 2}
}

type testServer struct {
	handler http.Handler
	backend *memory.Backend
	store   *session.MemoryStore
	cookie  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := goGuard.DefaultConfig()
	cfg.Password = fastPasswords()

	backend, err := memory.New(memory.WithPasswordConfig(cfg.Password))
	require.NoError(t, err)
	_, err = backend.CreateUser(context.Background(), "member@example.com", "member password", true, goGuard.RoleUser)
	require.NoError(t, err)

	store := session.NewMemoryStore()
	engine, err := goGuard.New[uuid.UUID, memory.User]().
		WithConfig(cfg).
		WithBackend(backend).
		WithSessionStore(store).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	handler, err := newRouter[memory.User](engine, backend, nil)
	require.NoError(t, err)
	return &testServer{handler: handler, backend: backend, store: store}
}

// do sends a request carrying the current session cookie and remembers any
// cookie the response sets.
func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if s.cookie != "" {
		req.AddCookie(&http.Cookie{Name: "goguard_session", Value: s.cookie})
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "goguard_session" {
			s.cookie = c.Value
		}
	}
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestRouterLoginLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"member@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.cookie)

	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"member@example.com","password":"member password"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotEmpty(t, s.cookie)
	assert.Equal(t, 1, s.store.Len())

	rec = s.do(t, http.MethodGet, "/auth/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, goGuard.RoleUser, me.Role)
	assert.True(t, me.EmailVerified)

	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"member@example.com","password":"member password"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/admin/ping", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_INSUFFICIENT_ROLE", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, s.store.Len())

	rec = s.do(t, http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterStepUp(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/auth/login", `{"email":"member@example.com","password":"member password"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/account/sensitive", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "AUTH_REAUTH_REQUIRED", errorCode(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/reauth", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/reauth", `{"password":"member password"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodPost, "/account/sensitive", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.do(t, http.MethodPost, "/auth/login", `{"email":"member@example.com","password":"member password"}`)
	rec = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "goguard_login_total 1")
}

func TestRouterOmitsOAuthWithoutProvider(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/auth/oauth/google", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
