package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	minHMACSecret       = 32
	maxLeeway           = 2 * time.Minute
	defaultMaxFutureIAT = 10 * time.Minute
)

// Config configures a Manager. For HS256 PrivateKey is the shared secret.
// For Ed25519 either PublicKey or VerifyKeys must be set; PrivateKey is only
// needed to sign. Ed25519 keys may be raw bytes or PEM.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	// Now overrides time.Now when stamping and checking tokens.
	Now func() time.Time
}

// SessionClaims wraps a session ID in a signed token so a cookie value can be
// checked before any store lookup.
type SessionClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

var (
	ErrMissingSID   = errors.New("token has no session id")
	ErrFutureIAT    = errors.New("token iat too far in the future")
	ErrInvalidToken = errors.New("invalid session token")
	ErrNoSigningKey = errors.New("manager has no signing key")

	errMissingKID = errors.New("missing kid")
	errUnknownKID = errors.New("unknown kid")
)

// keys holds parsed key material. With byKID set, tokens must name one of its
// entries; otherwise verify is used and, when kid is pinned, the header must
// match it.
type keys struct {
	method jwt.SigningMethod
	sign   any
	verify any
	byKID  map[string]any
	kid    string
}

func (k *keys) forToken(t *jwt.Token) (any, error) {
	if t.Method.Alg() != k.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)
	if k.byKID != nil {
		if kid == "" {
			return nil, errMissingKID
		}
		key, ok := k.byKID[kid]
		if !ok {
			return nil, errUnknownKID
		}
		return key, nil
	}
	if k.kid != "" && kid != k.kid {
		return nil, errUnknownKID
	}
	if k.verify == nil {
		return nil, errUnknownKID
	}
	return k.verify, nil
}

// Manager signs and verifies session tokens. Safe for concurrent use.
type Manager struct {
	ttl          time.Duration
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	now          func() time.Time
	keys         keys
	parser       *jwt.Parser
}

func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.TTL <= 0:
		return nil, errors.New("jwt: ttl must be positive")
	case cfg.Leeway < 0 || cfg.Leeway > maxLeeway:
		return nil, fmt.Errorf("jwt: leeway must be within [0, %s]", maxLeeway)
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("jwt: max future iat must be within [0, 24h]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ks, err := loadKeys(cfg)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ks.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{
		ttl:          cfg.TTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		now:          cfg.Now,
		keys:         ks,
		parser:       jwt.NewParser(opts...),
	}, nil
}

// NewHS256 is the common case: a shared secret and a lifetime.
func NewHS256(secret []byte, ttl time.Duration) (*Manager, error) {
	return NewManager(Config{TTL: ttl, SigningMethod: MethodHS256, PrivateKey: secret})
}

func loadKeys(cfg Config) (keys, error) {
	ks := keys{kid: strings.TrimSpace(cfg.KeyID)}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACSecret {
			return ks, fmt.Errorf("jwt: hs256 secret must be at least %d bytes", minHMACSecret)
		}
		ks.method = jwt.SigningMethodHS256
		ks.sign, ks.verify = cfg.PrivateKey, cfg.PrivateKey
		if len(cfg.VerifyKeys) > 0 {
			ks.byKID = make(map[string]any, len(cfg.VerifyKeys))
			for kid, secret := range cfg.VerifyKeys {
				if strings.TrimSpace(kid) == "" {
					return ks, errors.New("jwt: verify key with empty kid")
				}
				ks.byKID[kid] = secret
			}
		}

	case MethodEd25519:
		ks.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := edPrivateKey(cfg.PrivateKey)
			if err != nil {
				return ks, err
			}
			ks.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := edPublicKey(cfg.PublicKey)
			if err != nil {
				return ks, err
			}
			ks.verify = pub
		}
		if len(cfg.VerifyKeys) > 0 {
			ks.byKID = make(map[string]any, len(cfg.VerifyKeys))
			for kid, raw := range cfg.VerifyKeys {
				if strings.TrimSpace(kid) == "" {
					return ks, errors.New("jwt: verify key with empty kid")
				}
				pub, err := edPublicKey(raw)
				if err != nil {
					return ks, fmt.Errorf("jwt: verify key %q: %w", kid, err)
				}
				ks.byKID[kid] = pub
			}
		}
		if ks.verify == nil && ks.byKID == nil {
			return ks, errors.New("jwt: ed25519 needs a public key or verify keys")
		}

	default:
		return ks, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	if ks.kid != "" && ks.byKID != nil {
		if _, ok := ks.byKID[ks.kid]; !ok {
			return ks, fmt.Errorf("jwt: key id %q missing from verify keys", ks.kid)
		}
	}
	return ks, nil
}

// Sign returns a token carrying sid, valid for the configured TTL.
func (m *Manager) Sign(sid string) (string, error) {
	if sid == "" {
		return "", ErrMissingSID
	}
	if m.keys.sign == nil {
		return "", ErrNoSigningKey
	}
	now := m.now()
	claims := SessionClaims{
		SID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.keys.kid != "" {
		token.Header["kid"] = m.keys.kid
	}
	return token.SignedString(m.keys.sign)
}

// Parse verifies raw and returns its claims. Every failure wraps
// ErrInvalidToken.
func (m *Manager) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.keys.forToken)
	switch {
	case err != nil:
	case !token.Valid:
		err = jwt.ErrTokenInvalidClaims
	case claims.SID == "":
		err = ErrMissingSID
	case claims.IssuedAt != nil && claims.IssuedAt.After(m.now().Add(m.maxFutureIAT)):
		err = ErrFutureIAT
	default:
		return claims, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
}

// TTL is the lifetime given to signed tokens.
func (m *Manager) TTL() time.Duration { return m.ttl }

func edPrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if len(raw) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(raw), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(raw)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: pem block is not an ed25519 private key")
	}
	return key, nil
}

func edPublicKey(raw []byte) (ed25519.PublicKey, error) {
	if len(raw) == ed25519.PublicKeySize {
		return ed25519.PublicKey(raw), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: pem block is not an ed25519 public key")
	}
	return key, nil
}
