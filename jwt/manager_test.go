package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte(strings.Repeat("s", 32))

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestSignParseRoundTripHS256(t *testing.T) {
	m, err := NewHS256(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Sign("sid-1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.SID != "sid-1" {
		t.Fatalf("expected sid-1, got %q", claims.SID)
	}

	if _, err := m.Sign(""); !errors.Is(err, ErrMissingSID) {
		t.Fatalf("expected ErrMissingSID, got %v", err)
	}
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewHS256([]byte("short"), time.Hour); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
	if _, err := NewManager(Config{TTL: time.Hour, SigningMethod: "rs256", PrivateKey: testSecret}); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
}

func TestParseRejectsTamperedAndForeignTokens(t *testing.T) {
	m, _ := NewHS256(testSecret, time.Hour)
	other, _ := NewHS256([]byte(strings.Repeat("o", 32)), time.Hour)

	token, _ := other.Sign("sid-1")
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected foreign key rejection, got %v", err)
	}

	good, _ := m.Sign("sid-1")
	tampered := good[:len(good)-2] + "xx"
	if _, err := m.Parse(tampered); err == nil {
		t.Fatal("expected tampered signature rejection")
	}
	if _, err := m.Parse("not-a-token"); err == nil {
		t.Fatal("expected garbage rejection")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseExpiryAndLeeway(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "goguard",
		Audience:      "web",
		Leeway:        30 * time.Second,
		Now:           clock,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Sign("s1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	now = now.Add(80 * time.Second)
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	now = now.Add(20 * time.Second)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected expired token to fail")
	}

	wrongIssuer := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"web"},
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute)),
	}}
	bad, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer).SignedString(priv)
	if _, err := m.Parse(bad); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	noExpiry := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{Issuer: "goguard", Audience: gjwt.ClaimStrings{"web"}}}
	bad, _ = gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, noExpiry).SignedString(priv)
	if _, err := m.Parse(bad); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, _ := tok.SignedString(priv1)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.Sign("s1")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func FuzzParse(f *testing.F) {
	m, err := NewHS256(testSecret, time.Hour)
	if err != nil {
		f.Fatal(err)
	}
	valid, err := m.Sign("seed")
	if err != nil {
		f.Fatal(err)
	}
	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.e30.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := m.Parse(token)
		if err == nil && claims.SID == "" {
			t.Fatal("accepted token without session id")
		}
	})
}

func TestVerifyOnlyManagerCannotSign(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Sign("s1"); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("expected ErrNoSigningKey, got %v", err)
	}
}

func TestHS256SecretRotation(t *testing.T) {
	oldSecret := []byte(strings.Repeat("a", 32))
	newSecret := []byte(strings.Repeat("b", 32))

	before, err := NewManager(Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: oldSecret, KeyID: "2024"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	after, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    newSecret,
		KeyID:         "2025",
		VerifyKeys:    map[string][]byte{"2024": oldSecret, "2025": newSecret},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	legacy, _ := before.Sign("sid-old")
	claims, err := after.Parse(legacy)
	if err != nil || claims.SID != "sid-old" {
		t.Fatalf("expected legacy token to verify, got %v", err)
	}
	current, _ := after.Sign("sid-new")
	if _, err := before.Parse(current); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected pinned kid to reject rotated token, got %v", err)
	}
}
