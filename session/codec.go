package session

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// CurrentSchemaVersion is the envelope version written by Encode.
const CurrentSchemaVersion = 1

// ErrCorruptState is returned by Decode for blobs that cannot be read.
var ErrCorruptState = errors.New("corrupt session state")

// ErrUnsupportedSchema is returned by Decode for envelopes newer than this package.
var ErrUnsupportedSchema = errors.New("unsupported session schema version")

type envelope[ID comparable] struct {
	SchemaVersion int            `json:"schema_version"`
	Auth          *stateWire[ID] `json:"auth"`
}

type stateWire[ID comparable] struct {
	UserID            ID         `json:"user_id"`
	AuthenticatedAt   time.Time  `json:"authenticated_at"`
	EmailVerified     bool       `json:"email_verified"`
	TOTPVerifiedAt    *time.Time `json:"totp_verified_at"`
	ReauthenticatedAt *time.Time `json:"reauthenticated_at"`
	BanCheckedAt      *time.Time `json:"ban_checked_at"`
	IsBanned          bool       `json:"is_banned"`
	Device            *string    `json:"device"`
	IPAddress         *string    `json:"ip_address"`
	LastSeen          time.Time  `json:"last_seen"`
	AuthHash          string     `json:"auth_hash,omitempty"`
}

// MarshalJSON renders the state in its wire shape.
func (s *State[ID]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

// UnmarshalJSON reads the wire shape.
func (s *State[ID]) UnmarshalJSON(data []byte) error {
	var w stateWire[ID]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.fromWire(&w)
	return nil
}

// Encode serializes a state into the stored envelope.
func Encode[ID comparable](s *State[ID]) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session state")
	}
	return json.Marshal(envelope[ID]{SchemaVersion: CurrentSchemaVersion, Auth: s.wire()})
}

// Decode parses a stored envelope.
func Decode[ID comparable](data []byte) (*State[ID], error) {
	var env envelope[ID]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if env.SchemaVersion == 0 || env.Auth == nil {
		return nil, ErrCorruptState
	}
	if env.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, env.SchemaVersion)
	}
	if env.Auth.AuthenticatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing authenticated_at", ErrCorruptState)
	}
	s := &State[ID]{}
	s.fromWire(env.Auth)
	return s, nil
}

func (s *State[ID]) wire() *stateWire[ID] {
	return &stateWire[ID]{
		UserID:            s.userID,
		AuthenticatedAt:   s.authenticatedAt,
		EmailVerified:     s.emailVerified,
		TOTPVerifiedAt:    optionalTime(s.totpVerifiedAt),
		ReauthenticatedAt: optionalTime(s.reauthenticatedAt),
		BanCheckedAt:      optionalTime(s.banCheckedAt),
		IsBanned:          s.isBanned,
		Device:            optionalString(s.device),
		IPAddress:         optionalString(s.ipAddress),
		LastSeen:          s.lastSeen,
		AuthHash:          s.authHash,
	}
}

func (s *State[ID]) fromWire(w *stateWire[ID]) {
	s.userID = w.UserID
	s.authenticatedAt = w.AuthenticatedAt.UTC()
	s.emailVerified = w.EmailVerified
	s.totpVerifiedAt = derefTime(w.TOTPVerifiedAt)
	s.reauthenticatedAt = derefTime(w.ReauthenticatedAt)
	s.banCheckedAt = derefTime(w.BanCheckedAt)
	s.isBanned = w.IsBanned
	s.device = derefString(w.Device)
	s.ipAddress = derefString(w.IPAddress)
	s.lastSeen = w.LastSeen.UTC()
	s.authHash = w.AuthHash
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
