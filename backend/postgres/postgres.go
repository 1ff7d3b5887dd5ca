// Package postgres is a PostgreSQL goGuard backend built on pgx and
// squirrel. It implements AuthBackend, TOTPVerifier, LoginHook and
// oauth.UserHandler over the tables in Schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/oauth"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/totp"
)

// Executor is the subset of pgx shared by pools, connections and
// transactions.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// User is a row of goguard_users.
type User struct {
	UserID       uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	Verified     bool
	Role         int32
	TOTPSecret   []byte
	CreatedAt    time.Time
}

func (u User) ID() uuid.UUID { return u.UserID }

func (u User) SessionAuthHash() []byte {
	if u.PasswordHash == "" {
		return []byte("oauth:" + u.UserID.String())
	}
	return []byte(u.PasswordHash)
}

func (u User) EmailVerified() bool { return u.Verified }
func (u User) TOTPEnabled() bool   { return len(u.TOTPSecret) > 0 }
func (u User) RoleLevel() int32    { return u.Role }

var userColumns = []string{
	"id",
	"COALESCE(email, '')",
	"name",
	"COALESCE(password_hash, '')",
	"email_verified",
	"role_level",
	"totp_secret",
	"created_at",
}

// Option configures a Backend.
type Option func(*Backend)

func WithPasswords(v *password.Verifier) Option {
	return func(b *Backend) { b.passwords = v }
}

func WithTOTP(v *totp.Verifier) Option {
	return func(b *Backend) { b.totp = v }
}

func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Backend is safe for concurrent use when its executor is (a pool is; a
// transaction is not).
type Backend struct {
	exec      Executor
	builder   squirrel.StatementBuilderType
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

// Connect opens a pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return pool, nil
}

// New wires a backend over exec. Without WithPasswords, hashes use the
// default goGuard password parameters.
func New(exec Executor, opts ...Option) (*Backend, error) {
	b := &Backend{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.passwords == nil {
		v, err := password.FromConfig(goGuard.DefaultConfig().Password)
		if err != nil {
			return nil, err
		}
		b.passwords = v
	}
	if b.totp == nil {
		v, err := totp.New(totp.DefaultConfig())
		if err != nil {
			return nil, err
		}
		b.totp = v
	}
	return b, nil
}

// WithTx returns a backend issuing statements inside tx.
func (b *Backend) WithTx(tx pgx.Tx) *Backend {
	if tx == nil {
		return b
	}
	c := *b
	c.exec = tx
	return &c
}

func (b *Backend) selectUser(ctx context.Context, where squirrel.Sqlizer) (User, bool, error) {
	stmt, args, err := b.builder.Select(userColumns...).From(usersTable).Where(where).ToSql()
	if err != nil {
		return User{}, false, fmt.Errorf("build select user sql: %w", err)
	}
	return b.scanUser(ctx, stmt, args)
}

func (b *Backend) scanUser(ctx context.Context, stmt string, args []any) (User, bool, error) {
	var (
		u  User
		id string
	)
	err := b.exec.QueryRow(ctx, stmt, args...).Scan(
		&id, &u.Email, &u.Name, &u.PasswordHash, &u.Verified, &u.Role, &u.TOTPSecret, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, fmt.Errorf("select user: %w", err)
	}
	if u.UserID, err = uuid.Parse(id); err != nil {
		return User{}, false, fmt.Errorf("parse user id: %w", err)
	}
	return u, true, nil
}

func (b *Backend) GetUser(ctx context.Context, id uuid.UUID) (User, bool, error) {
	return b.selectUser(ctx, squirrel.Eq{"id": id.String()})
}

func (b *Backend) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, false, nil
	}
	return b.selectUser(ctx, squirrel.Eq{"email": email})
}

func (b *Backend) FindByOAuthID(ctx context.Context, provider, providerUserID string) (User, bool, error) {
	cols := make([]string, len(userColumns))
	for i, c := range userColumns {
		cols[i] = qualify(c)
	}
	stmt, args, err := b.builder.Select(cols...).
		From(usersTable + " u").
		Join(linksTable + " l ON l.user_id = u.id").
		Where(squirrel.Eq{"l.provider": provider, "l.provider_user_id": providerUserID}).
		ToSql()
	if err != nil {
		return User{}, false, fmt.Errorf("build select oauth user sql: %w", err)
	}
	return b.scanUser(ctx, stmt, args)
}

// qualify prefixes the column inside an optional COALESCE with "u.".
func qualify(col string) string {
	if rest, ok := strings.CutPrefix(col, "COALESCE("); ok {
		return "COALESCE(u." + rest
	}
	return "u." + col
}

// CreateUser inserts a password account.
func (b *Backend) CreateUser(ctx context.Context, email, plaintext string, verified bool, role int32) (User, error) {
	hash, err := b.passwords.Hash(ctx, plaintext)
	if err != nil {
		return User{}, err
	}
	u := User{
		UserID:       uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Verified:     verified,
		Role:         role,
		CreatedAt:    b.now().UTC(),
	}
	return u, b.insertUser(ctx, u)
}

func (b *Backend) insertUser(ctx context.Context, u User) error {
	var email, hash any
	if u.Email != "" {
		email = u.Email
	}
	if u.PasswordHash != "" {
		hash = u.PasswordHash
	}
	stmt, args, err := b.builder.Insert(usersTable).
		Columns("id", "email", "name", "password_hash", "email_verified", "role_level", "created_at").
		Values(u.UserID.String(), email, u.Name, hash, u.Verified, u.Role, u.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}
	if _, err := b.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (b *Backend) CheckBan(ctx context.Context, id uuid.UUID) (goGuard.BanStatus, error) {
	stmt, args, err := b.builder.Select("reason", "expires_at", "banned_by").
		From(bansTable).
		Where(squirrel.Eq{"user_id": id.String()}).
		ToSql()
	if err != nil {
		return goGuard.BanStatus{}, fmt.Errorf("build select ban sql: %w", err)
	}
	var (
		reason, by string
		expires    *time.Time
	)
	if err := b.exec.QueryRow(ctx, stmt, args...).Scan(&reason, &expires, &by); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return goGuard.NotBanned(), nil
		}
		return goGuard.BanStatus{}, fmt.Errorf("select ban: %w", err)
	}
	if expires == nil {
		return goGuard.BannedPermanently(reason, by), nil
	}
	status := goGuard.BannedUntil(reason, *expires, by)
	if !status.IsBannedAt(b.now()) {
		return goGuard.NotBanned(), nil
	}
	return status, nil
}

// Ban upserts status; a status that is not banned deletes the row.
func (b *Backend) Ban(ctx context.Context, id uuid.UUID, status goGuard.BanStatus) error {
	var (
		stmt string
		args []any
		err  error
	)
	if !status.Banned {
		stmt, args, err = b.builder.Delete(bansTable).Where(squirrel.Eq{"user_id": id.String()}).ToSql()
	} else {
		var expires any
		if !status.ExpiresAt.IsZero() {
			expires = status.ExpiresAt.UTC()
		}
		stmt, args, err = b.builder.Insert(bansTable).
			Columns("user_id", "reason", "expires_at", "banned_by").
			Values(id.String(), status.Reason, expires, status.BannedBy).
			Suffix("ON CONFLICT (user_id) DO UPDATE SET reason = EXCLUDED.reason, expires_at = EXCLUDED.expires_at, banned_by = EXCLUDED.banned_by").
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("build ban sql: %w", err)
	}
	if _, err := b.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("write ban: %w", err)
	}
	return nil
}

func (b *Backend) VerifyPassword(ctx context.Context, id uuid.UUID, plaintext string) (bool, error) {
	u, found, err := b.GetUser(ctx, id)
	if err != nil {
		return false, err
	}
	if !found || u.PasswordHash == "" {
		return false, nil
	}
	ok, err := b.passwords.Verify(ctx, plaintext, u.PasswordHash)
	if errors.Is(err, password.ErrPasswordTooLong) {
		return false, nil
	}
	return ok, err
}

// VerifyTOTP accepts each time step once. The counter update is
// conditional, so two racing requests with the same code cannot both pass.
func (b *Backend) VerifyTOTP(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	stmt, args, err := b.builder.Select("totp_secret", "COALESCE(totp_last_counter, -1)").
		From(usersTable).
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select totp sql: %w", err)
	}
	var (
		secret []byte
		last   int64
	)
	if err := b.exec.QueryRow(ctx, stmt, args...).Scan(&secret, &last); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select totp: %w", err)
	}
	if len(secret) == 0 {
		return false, nil
	}
	counter, ok, err := b.totp.Verify(secret, code, b.now(), last)
	if err != nil || !ok {
		return false, err
	}

	stmt, args, err = b.builder.Update(usersTable).
		Set("totp_last_counter", counter).
		Where(squirrel.Eq{"id": id.String()}).
		Where(squirrel.Or{squirrel.Eq{"totp_last_counter": nil}, squirrel.Lt{"totp_last_counter": counter}}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build update totp sql: %w", err)
	}
	tag, err := b.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("update totp counter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// EnrollTOTP stores a fresh secret and returns its base32 form.
func (b *Backend) EnrollTOTP(ctx context.Context, id uuid.UUID) (string, error) {
	raw, encoded, err := b.totp.NewSecret()
	if err != nil {
		return "", err
	}
	stmt, args, err := b.builder.Update(usersTable).
		Set("totp_secret", raw).
		Set("totp_last_counter", nil).
		Where(squirrel.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build enroll totp sql: %w", err)
	}
	if _, err := b.exec.Exec(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("enroll totp: %w", err)
	}
	return encoded, nil
}

func (b *Backend) OnLogin(ctx context.Context, user User) error {
	stmt, args, err := b.builder.Update(usersTable).
		Set("last_login_at", b.now().UTC()).
		Where(squirrel.Eq{"id": user.UserID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build login sql: %w", err)
	}
	if _, err := b.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

func (b *Backend) LinkOAuthAccount(ctx context.Context, user User, provider, providerUserID string) (User, error) {
	stmt, args, err := b.builder.Insert(linksTable).
		Columns("provider", "provider_user_id", "user_id").
		Values(provider, providerUserID, user.UserID.String()).
		Suffix("ON CONFLICT (provider, provider_user_id) DO NOTHING").
		ToSql()
	if err != nil {
		return User{}, fmt.Errorf("build link sql: %w", err)
	}
	if _, err := b.exec.Exec(ctx, stmt, args...); err != nil {
		return User{}, fmt.Errorf("link oauth account: %w", err)
	}
	return user, nil
}

// CreateFromOAuth inserts the account and its link. Run it through WithTx
// to make the two statements atomic.
func (b *Backend) CreateFromOAuth(ctx context.Context, provider string, info oauth.UserInfo) (User, error) {
	u := User{
		UserID:    uuid.New(),
		Email:     strings.ToLower(strings.TrimSpace(info.Email)),
		Name:      info.Name,
		Verified:  info.EmailVerified,
		Role:      goGuard.RoleUser,
		CreatedAt: b.now().UTC(),
	}
	if err := b.insertUser(ctx, u); err != nil {
		return User{}, err
	}
	return b.LinkOAuthAccount(ctx, u, provider, info.ProviderUserID)
}
