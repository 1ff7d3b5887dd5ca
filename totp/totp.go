// Package totp verifies RFC 6238 time-based one-time codes. Backends use it
// to implement goGuard.TOTPVerifier; the engine never sees secrets.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Algorithm names the HMAC hash.
type Algorithm string

const (
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

const secretBytes = 20

var (
	ErrInvalidConfig = errors.New("totp: invalid config")
	ErrEmptySecret   = errors.New("totp: empty secret")
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Config controls code generation. Skew is the number of periods accepted on
// either side of the current one.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm Algorithm
	Skew      int
}

// DefaultConfig matches common authenticator apps: 6 digits, 30 s, SHA1, one
// step of drift.
func DefaultConfig() Config {
	return Config{Issuer: "goGuard", Digits: 6, Period: 30, Algorithm: SHA1, Skew: 1}
}

// Verifier generates and checks codes. Safe for concurrent use.
type Verifier struct {
	cfg     Config
	newHash func() hash.Hash
	modulus uint32
}

func New(cfg Config) (*Verifier, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = SHA1
	}
	if cfg.Digits < 6 || cfg.Digits > 8 {
		return nil, fmt.Errorf("%w: digits must be 6..8", ErrInvalidConfig)
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive", ErrInvalidConfig)
	}
	if cfg.Skew < 0 {
		return nil, fmt.Errorf("%w: skew must not be negative", ErrInvalidConfig)
	}
	var h func() hash.Hash
	switch Algorithm(strings.ToUpper(string(cfg.Algorithm))) {
	case SHA1:
		h = sha1.New
	case SHA256:
		h = sha256.New
	case SHA512:
		h = sha512.New
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidConfig, cfg.Algorithm)
	}
	mod := uint32(1)
	for i := 0; i < cfg.Digits; i++ {
		mod *= 10
	}
	return &Verifier{cfg: cfg, newHash: h, modulus: mod}, nil
}

// NewSecret returns a random secret and its base32 form for enrollment.
func (v *Verifier) NewSecret() ([]byte, string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, secretEncoding.EncodeToString(raw), nil
}

// DecodeSecret accepts base32 with or without padding, in either case.
func DecodeSecret(encoded string) ([]byte, error) {
	encoded = strings.TrimRight(strings.ToUpper(strings.TrimSpace(encoded)), "=")
	return secretEncoding.DecodeString(encoded)
}

// ProvisioningURI builds the otpauth:// URI shown as a QR code.
func (v *Verifier) ProvisioningURI(secretBase32, account string) string {
	q := url.Values{}
	q.Set("secret", secretBase32)
	q.Set("issuer", v.cfg.Issuer)
	q.Set("period", strconv.Itoa(v.cfg.Period))
	q.Set("digits", strconv.Itoa(v.cfg.Digits))
	q.Set("algorithm", strings.ToUpper(string(v.cfg.Algorithm)))
	return "otpauth://totp/" + url.PathEscape(v.cfg.Issuer+":"+account) + "?" + q.Encode()
}

// Counter returns the time step containing t.
func (v *Verifier) Counter(t time.Time) int64 {
	return t.Unix() / int64(v.cfg.Period)
}

// Code returns the code for the step containing t.
func (v *Verifier) Code(secret []byte, t time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	return v.hotp(secret, v.Counter(t)), nil
}

// Verify checks code against the steps within Skew of now. A match at or
// before lastCounter is rejected as a replay; pass -1 when no code was used
// yet. The matched step is returned so callers can persist it.
func (v *Verifier) Verify(secret []byte, code string, now time.Time, lastCounter int64) (int64, bool, error) {
	if len(secret) == 0 {
		return 0, false, ErrEmptySecret
	}
	code = strings.TrimSpace(code)
	if len(code) != v.cfg.Digits || !digitsOnly(code) {
		return 0, false, nil
	}

	base := v.Counter(now)
	for step := -v.cfg.Skew; step <= v.cfg.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 || counter <= lastCounter {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(v.hotp(secret, counter)), []byte(code)) == 1 {
			return counter, true, nil
		}
	}
	return 0, false, nil
}

// hotp is RFC 4226 dynamic truncation.
func (v *Verifier) hotp(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	mac := hmac.New(v.newHash, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	off := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", v.cfg.Digits, bin%v.modulus)
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
