package session

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

type fixedBan bool

func (b fixedBan) IsBannedAt(time.Time) bool { return bool(b) }

func TestNewStateStartsWithoutSessionScopedTimestamps(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStateAt(int64(42), true, now)

	if !s.AuthenticatedAt().Equal(now) || !s.LastSeen().Equal(now) {
		t.Fatalf("expected authenticated_at and last_seen at %v, got %v / %v", now, s.AuthenticatedAt(), s.LastSeen())
	}
	if s.IsTOTPVerified() {
		t.Fatal("fresh session must not be TOTP verified")
	}
	if !s.ReauthenticatedAt().IsZero() || !s.BanCheckedAt().IsZero() {
		t.Fatal("fresh session must not carry reauth or ban timestamps")
	}
	if s.ReauthWithinAt(time.Hour, now) {
		t.Fatal("absent reauth timestamp must report false")
	}
	if !s.BanCacheStaleAt(time.Hour, now) {
		t.Fatal("absent ban timestamp must report stale")
	}
}

func TestBanCacheStalenessBoundary(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 60 * time.Second

	stale := NewStateAt("u", true, now.Add(-time.Hour))
	stale.UpdateBanStatusAt(fixedBan(false), now.Add(-61*time.Second))
	if !stale.BanCacheStaleAt(maxAge, now) {
		t.Fatal("cache checked 61s ago must be stale for max age 60s")
	}

	fresh := NewStateAt("u", true, now.Add(-time.Hour))
	fresh.UpdateBanStatusAt(fixedBan(false), now.Add(-59*time.Second))
	if fresh.BanCacheStaleAt(maxAge, now) {
		t.Fatal("cache checked 59s ago must not be stale for max age 60s")
	}
}

func TestUpdateBanStatusCachesFlag(t *testing.T) {
	now := time.Now()
	s := NewStateAt("u", true, now)
	s.UpdateBanStatusAt(fixedBan(true), now)
	if !s.IsBanned() || !s.BanCheckedAt().Equal(now.UTC()) {
		t.Fatalf("expected banned flag cached at %v, got banned=%v at %v", now, s.IsBanned(), s.BanCheckedAt())
	}
	s.UpdateBanStatusAt(fixedBan(false), now.Add(time.Second))
	if s.IsBanned() {
		t.Fatal("expected ban flag cleared")
	}
}

func TestReauthWindow(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := NewStateAt("u", true, start)
	s.MarkReauthenticatedAt(start)

	if !s.ReauthWithinAt(5*time.Minute, start) {
		t.Fatal("expected reauth window open immediately after reauthentication")
	}
	if s.ReauthWithinAt(5*time.Minute, start.Add(5*time.Minute)) {
		t.Fatal("expected reauth window closed after 5 minutes")
	}

	// Repeated marks refresh the timestamp.
	s.MarkReauthenticatedAt(start.Add(4 * time.Minute))
	if !s.ReauthWithinAt(5*time.Minute, start.Add(5*time.Minute)) {
		t.Fatal("expected refreshed reauth window to still be open")
	}
}

func TestTouchNeverMovesAuthenticatedAt(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	s := NewStateAt("u", false, start)
	s.TouchAt(start.Add(time.Hour))
	s.MarkTOTPVerifiedAt(start.Add(time.Minute))
	s.RefreshVerification(true)

	if !s.AuthenticatedAt().Equal(start) {
		t.Fatalf("authenticated_at moved to %v", s.AuthenticatedAt())
	}
	if !s.LastSeen().Equal(start.Add(time.Hour)) {
		t.Fatalf("expected last_seen updated, got %v", s.LastSeen())
	}
	if !s.EmailVerified() || !s.IsTOTPVerified() {
		t.Fatal("expected verification and totp flags set")
	}
}

func TestEncodeDecodeWireShape(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	s := NewStateAt(int64(7), true, now).WithMetadata("Firefox", "203.0.113.9")
	s.MarkTOTPVerifiedAt(now)

	data, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for _, field := range []string{
		`"schema_version":1`, `"user_id":7`, `"authenticated_at"`, `"email_verified":true`,
		`"totp_verified_at":"2025-03-04T05:06:07Z"`, `"reauthenticated_at":null`,
		`"ban_checked_at":null`, `"is_banned":false`, `"device":"Firefox"`,
		`"ip_address":"203.0.113.9"`, `"last_seen"`,
	} {
		if !bytes.Contains(data, []byte(field)) {
			t.Fatalf("encoded state missing %s: %s", field, data)
		}
	}

	got, err := Decode[int64](data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID() != 7 || got.Device() != "Firefox" || !got.TOTPVerifiedAt().Equal(now) || !got.ReauthenticatedAt().IsZero() {
		t.Fatalf("decoded state mismatch: %+v", got)
	}
}

func TestDecodeRejectsCorruptAndFutureEnvelopes(t *testing.T) {
	cases := map[string][]byte{
		"garbage":       []byte("not json"),
		"empty object":  []byte(`{}`),
		"no auth":       []byte(`{"schema_version":1}`),
		"no login time": []byte(`{"schema_version":1,"auth":{"user_id":"u"}}`),
	}
	for name, data := range cases {
		if _, err := Decode[string](data); !errors.Is(err, ErrCorruptState) {
			t.Fatalf("%s: expected ErrCorruptState, got %v", name, err)
		}
	}

	future := []byte(`{"schema_version":99,"auth":{"user_id":"u","authenticated_at":"2025-01-01T00:00:00Z"}}`)
	if _, err := Decode[string](future); !errors.Is(err, ErrUnsupportedSchema) {
		t.Fatalf("expected ErrUnsupportedSchema, got %v", err)
	}
}

func FuzzDecode(f *testing.F) {
	seed, err := Encode(NewState("user-1", true).WithMetadata("d", "127.0.0.1"))
	if err == nil {
		f.Add(seed)
	}
	f.Add([]byte{})
	f.Add([]byte(`{"schema_version":1,"auth":null}`))
	f.Add([]byte(`{"schema_version":"1"}`))

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode[string](data)
		if err != nil {
			return
		}
		if _, err := Encode(s); err != nil {
			t.Fatalf("re-encode of decoded state failed: %v", err)
		}
	})
}
