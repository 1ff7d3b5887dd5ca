package goGuard

import (
	"context"
	"time"
)

// DefaultBanCacheAge is how long a cached ban flag is trusted before
// NotBanned asks the backend again.
const DefaultBanCacheAge = 5 * time.Minute

// ConditionKind enumerates requirement conditions.
type ConditionKind uint8

const (
	CondAuthenticated ConditionKind = iota + 1
	CondUnauthenticated
	CondVerified
	CondUnverified
	CondRoleAtLeast
	CondNotBanned
	CondTOTPVerified
	CondTOTPStrict
	CondReauthWithin
	CondCustom
)

func (k ConditionKind) String() string {
	switch k {
	case CondAuthenticated:
		return "authenticated"
	case CondUnauthenticated:
		return "unauthenticated"
	case CondVerified:
		return "verified"
	case CondUnverified:
		return "unverified"
	case CondRoleAtLeast:
		return "role_at_least"
	case CondNotBanned:
		return "not_banned"
	case CondTOTPVerified:
		return "totp_verified"
	case CondTOTPStrict:
		return "totp_strict"
	case CondReauthWithin:
		return "reauth_within"
	case CondCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Subject is what a custom predicate sees of the request. User holds the
// backend's user value and is nil when anonymous.
type Subject struct {
	Authenticated   bool
	UserID          any
	User            any
	RoleLevel       int32
	EmailVerified   bool
	TOTPVerified    bool
	AuthenticatedAt time.Time
}

// Predicate is an embedder-defined check. An error aborts evaluation as an
// internal error.
type Predicate func(ctx context.Context, subject Subject) (bool, error)

// Condition is one step of a requirement chain. Role applies to
// CondRoleAtLeast, MaxAge to CondReauthWithin, Name and Predicate to
// CondCustom.
type Condition struct {
	Kind      ConditionKind
	Role      int32
	MaxAge    time.Duration
	Name      string
	Predicate Predicate
}

// Requirements is an ordered, immutable chain of conditions. Every method
// returns a new value, so a base chain can be extended in several directions
// without interference.
type Requirements struct {
	conds       []Condition
	banCacheAge time.Duration
}

// AuthRequirements starts an empty chain. An empty chain allows everything.
func AuthRequirements() Requirements {
	return Requirements{}
}

func (r Requirements) with(c Condition) Requirements {
	conds := make([]Condition, len(r.conds), len(r.conds)+1)
	copy(conds, r.conds)
	r.conds = append(conds, c)
	return r
}

func (r Requirements) Authenticated() Requirements {
	return r.with(Condition{Kind: CondAuthenticated})
}

func (r Requirements) Unauthenticated() Requirements {
	return r.with(Condition{Kind: CondUnauthenticated})
}

// RequiresAuth is Authenticated.
func (r Requirements) RequiresAuth() Requirements { return r.Authenticated() }

// RequiresUnauth is Unauthenticated.
func (r Requirements) RequiresUnauth() Requirements { return r.Unauthenticated() }

func (r Requirements) Verified() Requirements {
	return r.with(Condition{Kind: CondVerified})
}

func (r Requirements) Unverified() Requirements {
	return r.with(Condition{Kind: CondUnverified})
}

// RoleAtLeast requires user.RoleLevel() >= level.
func (r Requirements) RoleAtLeast(level int32) Requirements {
	return r.with(Condition{Kind: CondRoleAtLeast, Role: level})
}

func (r Requirements) NotBanned() Requirements {
	return r.with(Condition{Kind: CondNotBanned})
}

// TOTPVerified requires TOTP confirmation in this session for users who have
// TOTP enabled. Users without TOTP pass.
func (r Requirements) TOTPVerified() Requirements {
	return r.with(Condition{Kind: CondTOTPVerified})
}

// TOTPStrict requires TOTP confirmation in this session regardless of the
// user's TOTP setting.
func (r Requirements) TOTPStrict() Requirements {
	return r.with(Condition{Kind: CondTOTPStrict})
}

// ReauthWithin requires a password confirmation less than d ago.
func (r Requirements) ReauthWithin(d time.Duration) Requirements {
	return r.with(Condition{Kind: CondReauthWithin, MaxAge: d})
}

// Custom appends an embedder-defined check failing with PermissionDenied.
func (r Requirements) Custom(name string, p Predicate) Requirements {
	return r.with(Condition{Kind: CondCustom, Name: name, Predicate: p})
}

// WithBanCacheAge overrides how long NotBanned trusts the cached ban flag.
// Zero falls back to the engine's Ban.CacheAge.
func (r Requirements) WithBanCacheAge(d time.Duration) Requirements {
	r.conds = append([]Condition(nil), r.conds...)
	r.banCacheAge = d
	return r
}

// Conditions returns a copy of the chain.
func (r Requirements) Conditions() []Condition {
	return append([]Condition(nil), r.conds...)
}

func (r Requirements) Len() int { return len(r.conds) }

// BanCacheAge reports the override set by WithBanCacheAge, or zero.
func (r Requirements) BanCacheAge() time.Duration { return r.banCacheAge }
