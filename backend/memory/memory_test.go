package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/oauth"
	"github.com/MrEthical07/goGuard/session"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fastPasswords() goGuard.PasswordConfig {
	return goGuard.PasswordConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MaxConcurrent: 2}
}

func newBackend(t *testing.T) (*Backend, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	b, err := New(WithPasswordConfig(fastPasswords()), WithClock(c.Now))
	require.NoError(t, err)
	return b, c
}

func TestCreateAndAuthenticate(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	u, err := b.CreateUser(ctx, " Alice@Example.com ", "correct horse battery", true, goGuard.RoleAdmin)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, u.ID())
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = b.CreateUser(ctx, "alice@example.com", "another password", false, goGuard.RoleUser)
	assert.ErrorIs(t, err, ErrEmailTaken)

	got, ok, err := b.Authenticate(ctx, "ALICE@example.com", "correct horse battery")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, u.ID(), got.ID())

	_, ok, err = b.Authenticate(ctx, "alice@example.com", "wrong password!")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.VerifyPassword(ctx, uuid.New(), "correct horse battery")
	require.NoError(t, err)
	assert.False(t, ok, "unknown users never verify")
}

func TestPasswordChangeRotatesAuthHash(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	u, err := b.CreateUser(ctx, "bob@example.com", "first password", true, goGuard.RoleUser)
	require.NoError(t, err)

	require.NoError(t, b.SetPassword(ctx, u.ID(), "second password"))
	after, _, err := b.GetUser(ctx, u.ID())
	require.NoError(t, err)
	assert.NotEqual(t, u.SessionAuthHash(), after.SessionAuthHash())
}

func TestBanExpiry(t *testing.T) {
	b, c := newBackend(t)
	ctx := context.Background()
	u, err := b.CreateUser(ctx, "carol@example.com", "carol password", true, goGuard.RoleUser)
	require.NoError(t, err)

	require.NoError(t, b.Ban(u.ID(), goGuard.BannedUntil("spam", c.Now().Add(time.Hour), "mod")))
	status, err := b.CheckBan(ctx, u.ID())
	require.NoError(t, err)
	assert.True(t, status.Banned)
	assert.Equal(t, "spam", status.Reason)

	c.Advance(2 * time.Hour)
	status, err = b.CheckBan(ctx, u.ID())
	require.NoError(t, err)
	assert.False(t, status.Banned)

	assert.ErrorIs(t, b.Ban(uuid.New(), goGuard.BannedPermanently("x", "y")), ErrUserNotFound)
}

func TestTOTPEnrollmentAndReplay(t *testing.T) {
	b, c := newBackend(t)
	ctx := context.Background()
	u, err := b.CreateUser(ctx, "dave@example.com", "dave password", true, goGuard.RoleUser)
	require.NoError(t, err)

	ok, err := b.VerifyTOTP(ctx, u.ID(), "000000")
	require.NoError(t, err)
	assert.False(t, ok, "unenrolled users never match")
	_, err = b.TOTPCode(u.ID())
	assert.ErrorIs(t, err, ErrTOTPNotEnabled)

	secret, uri, err := b.EnrollTOTP(u.ID())
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, uri, "dave@example.com")

	code, err := b.TOTPCode(u.ID())
	require.NoError(t, err)
	ok, err = b.VerifyTOTP(ctx, u.ID(), code)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.VerifyTOTP(ctx, u.ID(), code)
	require.NoError(t, err)
	assert.False(t, ok, "a code is accepted once")

	c.Advance(30 * time.Second)
	code, err = b.TOTPCode(u.ID())
	require.NoError(t, err)
	ok, err = b.VerifyTOTP(ctx, u.ID(), code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOAuthResolution(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	existing, err := b.CreateUser(ctx, "erin@example.com", "erin password", false, goGuard.RoleUser)
	require.NoError(t, err)

	linked, res, err := oauth.FindOrCreate[User](ctx, b, "google", oauth.UserInfo{ProviderUserID: "g1", Email: "ERIN@example.com"})
	require.NoError(t, err)
	assert.Equal(t, oauth.ResolvedLinked, res)
	assert.Equal(t, existing.ID(), linked.ID())

	created, res, err := oauth.FindOrCreate[User](ctx, b, "google", oauth.UserInfo{ProviderUserID: "g2", Email: "frank@example.com", EmailVerified: true, Name: "Frank"})
	require.NoError(t, err)
	assert.Equal(t, oauth.ResolvedCreated, res)
	assert.True(t, created.EmailVerified())
	assert.Equal(t, "oauth:"+created.ID().String(), string(created.SessionAuthHash()))

	again, res, err := oauth.FindOrCreate[User](ctx, b, "google", oauth.UserInfo{ProviderUserID: "g2"})
	require.NoError(t, err)
	assert.Equal(t, oauth.ResolvedExisting, res)
	assert.Equal(t, created.ID(), again.ID())
	assert.Equal(t, 2, b.Len())
}

func TestEngineIntegration(t *testing.T) {
	b, c := newBackend(t)
	ctx := context.Background()
	engine, err := goGuard.New[uuid.UUID, User]().
		WithBackend(b).
		WithSessionStore(session.NewMemoryStore().WithClock(c.Now)).
		WithClock(c.Now).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(ctx) })

	u, err := b.CreateUser(ctx, "gina@example.com", "gina password", true, goGuard.RoleModerator)
	require.NoError(t, err)
	_, _, err = b.EnrollTOTP(u.ID())
	require.NoError(t, err)
	u, _, _ = b.GetUser(ctx, u.ID())

	sess := engine.Load(ctx, engine.NewHandle(""))
	require.NoError(t, sess.Login(ctx, u))
	sid := sess.ID()

	reqs := goGuard.AuthRequirements().Authenticated().NotBanned().TOTPVerified().ReauthWithin(5 * time.Minute)
	err = goGuard.CheckRequirements(ctx, sess, reqs)
	code, _ := goGuard.CodeOf(err)
	assert.Equal(t, goGuard.CodeTOTPRequired, code)

	totpCode, err := b.TOTPCode(u.ID())
	require.NoError(t, err)
	require.NoError(t, sess.ConfirmTOTP(ctx, totpCode))
	require.NoError(t, sess.Reauthenticate(ctx, "gina password"))
	require.NoError(t, goGuard.CheckRequirements(ctx, sess, reqs))

	loaded, _, err := b.GetUser(ctx, u.ID())
	require.NoError(t, err)
	assert.False(t, loaded.LastLoginAt.IsZero(), "login hook records the login time")

	// A password change ends the session on next load.
	require.NoError(t, b.SetPassword(ctx, u.ID(), "gina new password"))
	reloaded := engine.Load(ctx, engine.NewHandle(sid))
	assert.False(t, reloaded.IsAuthenticated())
	assert.True(t, reloaded.Expired())
}

func TestConfirmTOTPWithoutEnrollmentIsInvalidCode(t *testing.T) {
	b, c := newBackend(t)
	ctx := context.Background()
	engine, err := goGuard.New[uuid.UUID, User]().
		WithBackend(b).
		WithSessionStore(session.NewMemoryStore().WithClock(c.Now)).
		WithClock(c.Now).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(ctx) })

	u, err := b.CreateUser(ctx, "hal@example.com", "hal password", true, goGuard.RoleUser)
	require.NoError(t, err)
	sess := engine.Load(ctx, engine.NewHandle(""))
	require.NoError(t, sess.Login(ctx, u))

	err = sess.ConfirmTOTP(ctx, "123456")
	code, _ := goGuard.CodeOf(err)
	assert.Equal(t, goGuard.CodeTOTPInvalid, code)
}
