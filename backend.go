package goGuard

import (
	"context"
	"time"
)

// Role levels used by the reference consumers. Higher is more privileged; the
// engine only compares integers.
const (
	RoleUser       int32 = 0
	RoleAuthor     int32 = 1
	RoleModerator  int32 = 2
	RoleAdmin      int32 = 3
	RoleSuperAdmin int32 = 4
)

// AuthUser is the capability set the engine needs from a user record. The
// engine never inspects anything beyond it.
type AuthUser[ID comparable] interface {
	ID() ID
	// SessionAuthHash returns bytes that change whenever existing sessions
	// must stop being valid: the password hash, or a stable substitute for
	// users without a password.
	SessionAuthHash() []byte
	EmailVerified() bool
	TOTPEnabled() bool
	RoleLevel() int32
}

// AuthBackend connects the engine to a storage layer.
//
// GetUser reports (zero, false, nil) for an absent user. VerifyPassword
// reports (false, nil) for a wrong password; errors are reserved for storage
// failures. Implementations must be safe for concurrent use.
type AuthBackend[ID comparable, U AuthUser[ID]] interface {
	GetUser(ctx context.Context, id ID) (U, bool, error)
	CheckBan(ctx context.Context, id ID) (BanStatus, error)
	VerifyPassword(ctx context.Context, id ID, password string) (bool, error)
}

// LoginHook is implemented by backends that want a callback after a session
// is established. Failures are reported but do not undo the login.
type LoginHook[U any] interface {
	OnLogin(ctx context.Context, user U) error
}

// LogoutHook is implemented by backends that want a callback before a
// session is destroyed. Failures are reported but do not undo the logout.
type LogoutHook[ID comparable] interface {
	OnLogout(ctx context.Context, id ID) error
}

// TOTPVerifier is implemented by backends that can check a TOTP code for a
// user. Required by Session.ConfirmTOTP.
type TOTPVerifier[ID comparable] interface {
	VerifyTOTP(ctx context.Context, id ID, code string) (bool, error)
}

// BanStatus is a point-in-time ban lookup result. A zero ExpiresAt on a ban
// means permanent.
type BanStatus struct {
	Banned    bool
	Reason    string
	ExpiresAt time.Time
	BannedBy  string
}

// NotBanned returns the status of an account in good standing.
func NotBanned() BanStatus { return BanStatus{} }

// BannedUntil returns a ban lifting at expiresAt.
func BannedUntil(reason string, expiresAt time.Time, bannedBy string) BanStatus {
	return BanStatus{Banned: true, Reason: reason, ExpiresAt: expiresAt, BannedBy: bannedBy}
}

// BannedPermanently returns a ban without expiry.
func BannedPermanently(reason, bannedBy string) BanStatus {
	return BanStatus{Banned: true, Reason: reason, BannedBy: bannedBy}
}

// IsBanned evaluates the ban at the current time.
func (b BanStatus) IsBanned() bool {
	return b.IsBannedAt(time.Now())
}

// IsBannedAt evaluates the ban at now: permanent bans always hold, expiring
// bans hold until ExpiresAt.
func (b BanStatus) IsBannedAt(now time.Time) bool {
	if !b.Banned {
		return false
	}
	if b.ExpiresAt.IsZero() {
		return true
	}
	return now.Before(b.ExpiresAt)
}

// Permanent reports whether the ban has no expiry.
func (b BanStatus) Permanent() bool {
	return b.Banned && b.ExpiresAt.IsZero()
}
