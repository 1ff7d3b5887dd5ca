package goGuard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/goGuard/session"
)

type testUser struct {
	id       int64
	hash     []byte
	verified bool
	totp     bool
	role     int32
}

func (u testUser) ID() int64               { return u.id }
func (u testUser) SessionAuthHash() []byte { return u.hash }
func (u testUser) EmailVerified() bool     { return u.verified }
func (u testUser) TOTPEnabled() bool       { return u.totp }
func (u testUser) RoleLevel() int32        { return u.role }

// testBackend is an in-memory AuthBackend with every optional capability.
type testBackend struct {
	mu         sync.Mutex
	users      map[int64]testUser
	bans       map[int64]BanStatus
	passwords  map[int64]string
	totpCodes  map[int64]string
	getErr     error
	banErr     error
	loginErr   error
	logoutErr  error
	banCalls   int
	loginCalls int
	logouts    []int64
}

func newTestBackend(users ...testUser) *testBackend {
	b := &testBackend{
		users:     map[int64]testUser{},
		bans:      map[int64]BanStatus{},
		passwords: map[int64]string{},
		totpCodes: map[int64]string{},
	}
	for _, u := range users {
		b.users[u.id] = u
	}
	return b
}

func (b *testBackend) GetUser(_ context.Context, id int64) (testUser, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return testUser{}, false, b.getErr
	}
	u, ok := b.users[id]
	return u, ok, nil
}

func (b *testBackend) CheckBan(_ context.Context, id int64) (BanStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banCalls++
	if b.banErr != nil {
		return BanStatus{}, b.banErr
	}
	return b.bans[id], nil
}

func (b *testBackend) VerifyPassword(_ context.Context, id int64, password string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.passwords[id] != "" && b.passwords[id] == password, nil
}

func (b *testBackend) VerifyTOTP(_ context.Context, id int64, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totpCodes[id] != "" && b.totpCodes[id] == code, nil
}

func (b *testBackend) OnLogin(context.Context, testUser) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loginCalls++
	return b.loginErr
}

func (b *testBackend) OnLogout(_ context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logouts = append(b.logouts, id)
	return b.logoutErr
}

// plainBackend has no optional capabilities.
type plainBackend struct{ inner *testBackend }

func (p plainBackend) GetUser(ctx context.Context, id int64) (testUser, bool, error) {
	return p.inner.GetUser(ctx, id)
}

func (p plainBackend) CheckBan(ctx context.Context, id int64) (BanStatus, error) {
	return p.inner.CheckBan(ctx, id)
}

func (p plainBackend) VerifyPassword(ctx context.Context, id int64, pw string) (bool, error) {
	return p.inner.VerifyPassword(ctx, id, pw)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine  *Engine[int64, testUser]
	backend *testBackend
	store   *session.MemoryStore
	clock   *testClock
}

func newTestEnv(t testing.TB, cfg Config, users ...testUser) *testEnv {
	t.Helper()
	return newTestEnvWithBackend(t, cfg, newTestBackend(users...))
}

func newTestEnvWithBackend(t testing.TB, cfg Config, backend *testBackend) *testEnv {
	t.Helper()
	clock := newTestClock()
	store := session.NewMemoryStore().WithClock(clock.Now)
	engine, err := New[int64, testUser]().
		WithConfig(cfg).
		WithBackend(backend).
		WithSessionStore(store).
		WithLogger(zaptest.NewLogger(t)).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return &testEnv{engine: engine, backend: backend, store: store, clock: clock}
}

// loginFresh logs user in on a new handle and returns the session ID.
func (env *testEnv) loginFresh(t testing.TB, user testUser) string {
	t.Helper()
	sess := env.engine.Load(context.Background(), env.engine.NewHandle(""))
	if err := sess.Login(context.Background(), user); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return sess.ID()
}

func (env *testEnv) load(id string) *Session[int64, testUser] {
	return env.engine.Load(context.Background(), env.engine.NewHandle(id))
}

func requireCode(t *testing.T, err error, want ErrorCode) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want)
	}
	var ae *Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *Error %s, got %T: %v", want, err, err)
	}
	if ae.Code != want {
		t.Fatalf("expected %s, got %s (%v)", want, ae.Code, err)
	}
	return ae
}
