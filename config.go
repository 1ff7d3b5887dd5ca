package goGuard

import (
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
)

// Config holds every engine setting. Build validates it once; the engine
// treats it as immutable afterwards.
type Config struct {
	Session  SessionConfig  `mapstructure:"session"`
	Cookie   CookieConfig   `mapstructure:"cookie"`
	Ban      BanConfig      `mapstructure:"ban"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Password PasswordConfig `mapstructure:"password"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DanglingPolicy decides what happens to a stored session whose user no
// longer exists in the backend.
type DanglingPolicy string

const (
	// DanglingInvalidate deletes the stored session.
	DanglingInvalidate DanglingPolicy = "invalidate"
	// DanglingKeep leaves the stored session in place. The request is still
	// anonymous.
	DanglingKeep DanglingPolicy = "keep"
)

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session persistence and expiry.
type SessionConfig struct {
	// TTL is the store-level lifetime written with every save.
	TTL time.Duration `mapstructure:"ttl"`
	// AbsoluteLifetime caps a session measured from login. Zero disables.
	AbsoluteLifetime time.Duration `mapstructure:"absolute_lifetime"`
	// IdleTimeout expires a session not seen for this long. Zero disables.
	IdleTimeout    time.Duration  `mapstructure:"idle_timeout"`
	Dangling       DanglingPolicy `mapstructure:"dangling"`
	VerifyAuthHash bool           `mapstructure:"verify_auth_hash"`

	RedisPrefix       string        `mapstructure:"redis_prefix"`
	SlidingExpiration bool          `mapstructure:"sliding_expiration"`
	JitterRange       time.Duration `mapstructure:"jitter_range"`
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig describes the session ID cookie. A non-empty SigningKey makes
// the cookie a signed token instead of the bare session ID.
type CookieConfig struct {
	Name       string `mapstructure:"name"`
	Path       string `mapstructure:"path"`
	Domain     string `mapstructure:"domain"`
	Secure     bool   `mapstructure:"secure"`
	HTTPOnly   bool   `mapstructure:"http_only"`
	SameSite   string `mapstructure:"same_site"`
	SigningKey string `mapstructure:"signing_key"`
}

// SameSiteMode maps the configured policy onto net/http.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax", "":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// BanConfig controls ban-cache behaviour for NotBanned conditions.
type BanConfig struct {
	CacheAge time.Duration `mapstructure:"cache_age"`
}

// OAuthConfig controls the OAuth login flow.
type OAuthConfig struct {
	CSRFTTL time.Duration `mapstructure:"csrf_ttl"`
}

// PasswordConfig holds argon2id parameters used by the reference backends.
type PasswordConfig struct {
	Memory        uint32 `mapstructure:"memory"` // KiB
	Time          uint32 `mapstructure:"time"`
	Parallelism   uint8  `mapstructure:"parallelism"`
	SaltLength    uint32 `mapstructure:"salt_length"`
	KeyLength     uint32 `mapstructure:"key_length"`
	MaxConcurrent int64  `mapstructure:"max_concurrent"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig = audit.Config

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
}

// DefaultConfig returns the settings used when the builder is given none.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:               7 * 24 * time.Hour,
			AbsoluteLifetime:  30 * 24 * time.Hour,
			IdleTimeout:       0,
			Dangling:          DanglingInvalidate,
			VerifyAuthHash:    true,
			RedisPrefix:       "gg:sess",
			SlidingExpiration: true,
			JitterRange:       30 * time.Second,
		},
		Cookie: CookieConfig{
			Name:     "goguard_session",
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
			SameSite: "lax",
		},
		Ban: BanConfig{
			CacheAge: DefaultBanCacheAge,
		},
		OAuth: OAuthConfig{
			CSRFTTL: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:        65536,
			Time:          3,
			Parallelism:   2,
			SaltLength:    16,
			KeyLength:     32,
			MaxConcurrent: 4,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session AbsoluteLifetime must be >= 0")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	switch c.Session.Dangling {
	case DanglingInvalidate, DanglingKeep:
	default:
		return errors.New("Session Dangling must be 'invalidate' or 'keep'")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if c.Session.JitterRange > time.Duration((math.MaxInt64-1)/2) {
		return errors.New("Session JitterRange is too large")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	if strings.TrimSpace(c.Cookie.Name) == "" {
		return errors.New("Cookie Name must not be empty")
	}
	switch strings.ToLower(c.Cookie.SameSite) {
	case "", "lax", "strict", "none":
	default:
		return errors.New("Cookie SameSite must be 'lax', 'strict' or 'none'")
	}
	if strings.EqualFold(c.Cookie.SameSite, "none") && !c.Cookie.Secure {
		return errors.New("Cookie SameSite=none requires Secure")
	}
	if c.Cookie.SigningKey != "" && len(c.Cookie.SigningKey) < 32 {
		return errors.New("Cookie SigningKey must be at least 32 bytes")
	}

	if c.Ban.CacheAge <= 0 {
		return errors.New("Ban CacheAge must be > 0")
	}
	if c.OAuth.CSRFTTL <= 0 {
		return errors.New("OAuth CSRFTTL must be > 0")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MaxConcurrent < 1 {
		return errors.New("Password MaxConcurrent must be >= 1")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	return nil
}
