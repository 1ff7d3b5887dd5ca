// Package memory is an in-process reference backend: users, bans, password
// hashes, TOTP secrets and OAuth links held in maps. It implements every
// optional goGuard capability and oauth.UserHandler, which makes it the
// backend of choice for tests, demos and the CLI's serve command.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/oauth"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/totp"
)

var (
	ErrEmailTaken     = errors.New("memory: email already registered")
	ErrUserNotFound   = errors.New("memory: user not found")
	ErrTOTPNotEnabled = errors.New("memory: totp not enrolled")
)

// User is the backend's account record.
type User struct {
	UserID       uuid.UUID
	Email        string
	Name         string
	AvatarURL    string
	PasswordHash string
	Verified     bool
	Role         int32
	TOTPSecret   []byte
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

func (u User) ID() uuid.UUID { return u.UserID }

// SessionAuthHash is the password hash, so a password change ends every
// session. OAuth-only accounts use a per-account constant.
func (u User) SessionAuthHash() []byte {
	if u.PasswordHash == "" {
		return []byte("oauth:" + u.UserID.String())
	}
	return []byte(u.PasswordHash)
}

func (u User) EmailVerified() bool { return u.Verified }
func (u User) TOTPEnabled() bool   { return len(u.TOTPSecret) > 0 }
func (u User) RoleLevel() int32    { return u.Role }

func (u User) clone() User {
	u.TOTPSecret = append([]byte(nil), u.TOTPSecret...)
	if len(u.TOTPSecret) == 0 {
		u.TOTPSecret = nil
	}
	return u
}

// Option configures a Backend.
type Option func(*options)

type options struct {
	password goGuard.PasswordConfig
	totp     totp.Config
	now      func() time.Time
}

// WithPasswordConfig sets the Argon2 parameters for new hashes.
func WithPasswordConfig(cfg goGuard.PasswordConfig) Option {
	return func(o *options) { o.password = cfg }
}

func WithTOTPConfig(cfg totp.Config) Option {
	return func(o *options) { o.totp = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Backend is safe for concurrent use.
type Backend struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*User
	byEmail  map[string]uuid.UUID
	links    map[string]uuid.UUID
	bans     map[uuid.UUID]goGuard.BanStatus
	totpUsed map[uuid.UUID]int64

	passwords *password.Verifier
	totp      *totp.Verifier
	now       func() time.Time
}

var (
	_ goGuard.AuthBackend[uuid.UUID, User] = (*Backend)(nil)
	_ goGuard.TOTPVerifier[uuid.UUID]      = (*Backend)(nil)
	_ goGuard.LoginHook[User]              = (*Backend)(nil)
	_ oauth.UserHandler[User]              = (*Backend)(nil)
)

func New(opts ...Option) (*Backend, error) {
	o := options{
		password: goGuard.DefaultConfig().Password,
		totp:     totp.DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	passwords, err := password.FromConfig(o.password)
	if err != nil {
		return nil, err
	}
	codes, err := totp.New(o.totp)
	if err != nil {
		return nil, err
	}

	return &Backend{
		users:     make(map[uuid.UUID]*User),
		byEmail:   make(map[string]uuid.UUID),
		links:     make(map[string]uuid.UUID),
		bans:      make(map[uuid.UUID]goGuard.BanStatus),
		totpUsed:  make(map[uuid.UUID]int64),
		passwords: passwords,
		totp:      codes,
		now:       o.now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func linkKey(provider, providerUserID string) string {
	return provider + "\x00" + providerUserID
}

// CreateUser registers a password account. An empty plaintext creates an
// account that can only sign in through OAuth.
func (b *Backend) CreateUser(ctx context.Context, email, plaintext string, verified bool, role int32) (User, error) {
	email = normalizeEmail(email)
	var hash string
	if plaintext != "" {
		h, err := b.passwords.Hash(ctx, plaintext)
		if err != nil {
			return User{}, err
		}
		hash = h
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.byEmail[email]; taken && email != "" {
		return User{}, ErrEmailTaken
	}
	u := &User{
		UserID:       uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Verified:     verified,
		Role:         role,
		CreatedAt:    b.now().UTC(),
	}
	b.users[u.UserID] = u
	if email != "" {
		b.byEmail[email] = u.UserID
	}
	return u.clone(), nil
}

// SetPassword replaces the hash, which invalidates existing sessions.
func (b *Backend) SetPassword(ctx context.Context, id uuid.UUID, plaintext string) error {
	hash, err := b.passwords.Hash(ctx, plaintext)
	if err != nil {
		return err
	}
	return b.update(id, func(u *User) { u.PasswordHash = hash })
}

func (b *Backend) SetVerified(id uuid.UUID, verified bool) error {
	return b.update(id, func(u *User) { u.Verified = verified })
}

func (b *Backend) SetRole(id uuid.UUID, role int32) error {
	return b.update(id, func(u *User) { u.Role = role })
}

// Ban records status for the user. Pass goGuard.NotBanned() to lift a ban.
func (b *Backend) Ban(id uuid.UUID, status goGuard.BanStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[id]; !ok {
		return ErrUserNotFound
	}
	if !status.Banned {
		delete(b.bans, id)
		return nil
	}
	b.bans[id] = status
	return nil
}

// Delete removes the account. Sessions that still reference it become
// dangling.
func (b *Backend) Delete(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return
	}
	delete(b.byEmail, u.Email)
	for k, v := range b.links {
		if v == id {
			delete(b.links, k)
		}
	}
	delete(b.users, id)
	delete(b.bans, id)
	delete(b.totpUsed, id)
}

// EnrollTOTP generates a secret for the user and returns it in base32 with
// the provisioning URI.
func (b *Backend) EnrollTOTP(id uuid.UUID) (secret, uri string, err error) {
	raw, encoded, err := b.totp.NewSecret()
	if err != nil {
		return "", "", err
	}
	var email string
	err = b.update(id, func(u *User) {
		u.TOTPSecret = raw
		email = u.Email
	})
	if err != nil {
		return "", "", err
	}
	b.mu.Lock()
	b.totpUsed[id] = -1
	b.mu.Unlock()
	return encoded, b.totp.ProvisioningURI(encoded, email), nil
}

func (b *Backend) DisableTOTP(id uuid.UUID) error {
	return b.update(id, func(u *User) { u.TOTPSecret = nil })
}

// Len reports the number of accounts.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.users)
}

func (b *Backend) update(id uuid.UUID, fn func(*User)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	return nil
}

func (b *Backend) GetUser(_ context.Context, id uuid.UUID) (User, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	u, ok := b.users[id]
	if !ok {
		return User{}, false, nil
	}
	return u.clone(), true, nil
}

// CheckBan reports expired bans as not banned.
func (b *Backend) CheckBan(_ context.Context, id uuid.UUID) (goGuard.BanStatus, error) {
	b.mu.RLock()
	status, ok := b.bans[id]
	b.mu.RUnlock()
	if !ok || !status.IsBannedAt(b.now()) {
		return goGuard.NotBanned(), nil
	}
	return status, nil
}

func (b *Backend) VerifyPassword(ctx context.Context, id uuid.UUID, plaintext string) (bool, error) {
	b.mu.RLock()
	u, ok := b.users[id]
	var hash string
	if ok {
		hash = u.PasswordHash
	}
	b.mu.RUnlock()
	if hash == "" {
		return false, nil
	}
	match, err := b.passwords.Verify(ctx, plaintext, hash)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return false, nil
	}
	return match, err
}

// Authenticate resolves an email and password to a user for login forms.
func (b *Backend) Authenticate(ctx context.Context, email, plaintext string) (User, bool, error) {
	u, found, err := b.FindByEmail(ctx, email)
	if err != nil || !found {
		return User{}, false, err
	}
	ok, err := b.VerifyPassword(ctx, u.UserID, plaintext)
	if err != nil || !ok {
		return User{}, false, err
	}
	return u, true, nil
}

// VerifyTOTP accepts each time step at most once per user. A user without
// an enrolled secret never matches.
func (b *Backend) VerifyTOTP(_ context.Context, id uuid.UUID, code string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok || len(u.TOTPSecret) == 0 {
		return false, nil
	}
	last, seen := b.totpUsed[id]
	if !seen {
		last = -1
	}
	counter, valid, err := b.totp.Verify(u.TOTPSecret, code, b.now(), last)
	if err != nil || !valid {
		return false, err
	}
	b.totpUsed[id] = counter
	return true, nil
}

// TOTPCode returns the current code for the user. Meant for tests and
// demos.
func (b *Backend) TOTPCode(id uuid.UUID) (string, error) {
	b.mu.RLock()
	u, ok := b.users[id]
	var secret []byte
	if ok {
		secret = u.TOTPSecret
	}
	b.mu.RUnlock()
	if len(secret) == 0 {
		return "", ErrTOTPNotEnabled
	}
	return b.totp.Code(secret, b.now())
}

func (b *Backend) OnLogin(_ context.Context, user User) error {
	return b.update(user.UserID, func(u *User) { u.LastLoginAt = b.now().UTC() })
}

func (b *Backend) FindByOAuthID(_ context.Context, provider, providerUserID string) (User, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.links[linkKey(provider, providerUserID)]
	if !ok {
		return User{}, false, nil
	}
	u, ok := b.users[id]
	if !ok {
		return User{}, false, nil
	}
	return u.clone(), true, nil
}

func (b *Backend) FindByEmail(_ context.Context, email string) (User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return User{}, false, nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byEmail[email]
	if !ok {
		return User{}, false, nil
	}
	return b.users[id].clone(), true, nil
}

func (b *Backend) LinkOAuthAccount(_ context.Context, user User, provider, providerUserID string) (User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[user.UserID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	b.links[linkKey(provider, providerUserID)] = u.UserID
	return u.clone(), nil
}

// CreateFromOAuth registers an account without a password. The provider's
// email verification carries over.
func (b *Backend) CreateFromOAuth(_ context.Context, provider string, info oauth.UserInfo) (User, error) {
	email := normalizeEmail(info.Email)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.byEmail[email]; taken && email != "" {
		return User{}, ErrEmailTaken
	}
	u := &User{
		UserID:    uuid.New(),
		Email:     email,
		Name:      info.Name,
		AvatarURL: info.AvatarURL,
		Verified:  info.EmailVerified,
		Role:      goGuard.RoleUser,
		CreatedAt: b.now().UTC(),
	}
	b.users[u.UserID] = u
	if email != "" {
		b.byEmail[email] = u.UserID
	}
	b.links[linkKey(provider, info.ProviderUserID)] = u.UserID
	return u.clone(), nil
}
