package session

import (
	"time"
)

// BanChecker is the subset of a ban status needed to refresh the cached flag.
type BanChecker interface {
	IsBannedAt(now time.Time) bool
}

// State is the per-login record persisted in the session store.
//
// The zero time marks an optional timestamp as absent. AuthenticatedAt is fixed
// at creation; no method changes it.
type State[ID comparable] struct {
	userID            ID
	authenticatedAt   time.Time
	emailVerified     bool
	totpVerifiedAt    time.Time
	reauthenticatedAt time.Time
	banCheckedAt      time.Time
	isBanned          bool
	device            string
	ipAddress         string
	lastSeen          time.Time
	authHash          string
}

// NewState creates a state for a fresh login at the current time.
func NewState[ID comparable](userID ID, emailVerified bool) *State[ID] {
	return NewStateAt(userID, emailVerified, time.Now())
}

// NewStateAt creates a state for a fresh login at now. TOTP, reauthentication
// and ban-cache timestamps start absent.
func NewStateAt[ID comparable](userID ID, emailVerified bool, now time.Time) *State[ID] {
	now = now.UTC()
	return &State[ID]{
		userID:          userID,
		authenticatedAt: now,
		emailVerified:   emailVerified,
		lastSeen:        now,
	}
}

// WithMetadata attaches client metadata. Intended to be called once, right
// after creation.
func (s *State[ID]) WithMetadata(device, ipAddress string) *State[ID] {
	s.device = device
	s.ipAddress = ipAddress
	return s
}

// Clone returns an independent copy.
func (s *State[ID]) Clone() *State[ID] {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (s *State[ID]) UserID() ID                   { return s.userID }
func (s *State[ID]) AuthenticatedAt() time.Time   { return s.authenticatedAt }
func (s *State[ID]) EmailVerified() bool          { return s.emailVerified }
func (s *State[ID]) TOTPVerifiedAt() time.Time    { return s.totpVerifiedAt }
func (s *State[ID]) ReauthenticatedAt() time.Time { return s.reauthenticatedAt }
func (s *State[ID]) BanCheckedAt() time.Time      { return s.banCheckedAt }
func (s *State[ID]) IsBanned() bool               { return s.isBanned }
func (s *State[ID]) Device() string               { return s.device }
func (s *State[ID]) IPAddress() string            { return s.ipAddress }
func (s *State[ID]) LastSeen() time.Time          { return s.lastSeen }

// AuthHash returns the credential fingerprint captured at login, or "".
func (s *State[ID]) AuthHash() string { return s.authHash }

// SetAuthHash records the credential fingerprint. Set once at login.
func (s *State[ID]) SetAuthHash(hash string) { s.authHash = hash }

// MarkTOTPVerified records a TOTP confirmation for this session.
func (s *State[ID]) MarkTOTPVerified() { s.MarkTOTPVerifiedAt(time.Now()) }

// MarkTOTPVerifiedAt is MarkTOTPVerified with an explicit clock.
func (s *State[ID]) MarkTOTPVerifiedAt(now time.Time) { s.totpVerifiedAt = now.UTC() }

// MarkReauthenticated records a password re-entry for this session.
func (s *State[ID]) MarkReauthenticated() { s.MarkReauthenticatedAt(time.Now()) }

// MarkReauthenticatedAt is MarkReauthenticated with an explicit clock.
func (s *State[ID]) MarkReauthenticatedAt(now time.Time) { s.reauthenticatedAt = now.UTC() }

// UpdateBanStatus caches status as of now.
func (s *State[ID]) UpdateBanStatus(status BanChecker) { s.UpdateBanStatusAt(status, time.Now()) }

// UpdateBanStatusAt caches status as of now.
func (s *State[ID]) UpdateBanStatusAt(status BanChecker, now time.Time) {
	s.banCheckedAt = now.UTC()
	s.isBanned = status != nil && status.IsBannedAt(now)
}

// Touch records activity.
func (s *State[ID]) Touch() { s.TouchAt(time.Now()) }

// TouchAt records activity at now.
func (s *State[ID]) TouchAt(now time.Time) { s.lastSeen = now.UTC() }

// RefreshVerification overwrites the cached email-verified flag.
func (s *State[ID]) RefreshVerification(verified bool) { s.emailVerified = verified }

// IsTOTPVerified reports whether TOTP was confirmed during this session.
func (s *State[ID]) IsTOTPVerified() bool { return !s.totpVerifiedAt.IsZero() }

// ReauthWithin reports whether the last reauthentication is younger than d.
// An absent timestamp reports false.
func (s *State[ID]) ReauthWithin(d time.Duration) bool {
	return s.ReauthWithinAt(d, time.Now())
}

// ReauthWithinAt is ReauthWithin evaluated at now.
func (s *State[ID]) ReauthWithinAt(d time.Duration, now time.Time) bool {
	if s.reauthenticatedAt.IsZero() {
		return false
	}
	return now.Sub(s.reauthenticatedAt) < d
}

// BanCacheStale reports whether the cached ban flag is older than maxAge.
// An absent timestamp reports true.
func (s *State[ID]) BanCacheStale(maxAge time.Duration) bool {
	return s.BanCacheStaleAt(maxAge, time.Now())
}

// BanCacheStaleAt is BanCacheStale evaluated at now.
func (s *State[ID]) BanCacheStaleAt(maxAge time.Duration, now time.Time) bool {
	if s.banCheckedAt.IsZero() {
		return true
	}
	return now.Sub(s.banCheckedAt) > maxAge
}
