package goGuard

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Ban.CacheAge != 5*time.Minute {
		t.Fatalf("expected 5m ban cache age, got %v", cfg.Ban.CacheAge)
	}
	if cfg.OAuth.CSRFTTL != 600*time.Second {
		t.Fatalf("expected 600s csrf ttl, got %v", cfg.OAuth.CSRFTTL)
	}
	if cfg.Session.Dangling != DanglingInvalidate {
		t.Fatalf("expected invalidate dangling policy, got %q", cfg.Session.Dangling)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "dangling keep valid",
			mutate:    func(c *Config) { c.Session.Dangling = DanglingKeep },
			wantValid: true,
		},
		{
			name:      "dangling unknown invalid",
			mutate:    func(c *Config) { c.Session.Dangling = "purge" },
			wantValid: false,
		},
		{
			name:      "session ttl zero invalid",
			mutate:    func(c *Config) { c.Session.TTL = 0 },
			wantValid: false,
		},
		{
			name:      "idle timeout disabled valid",
			mutate:    func(c *Config) { c.Session.IdleTimeout = 0 },
			wantValid: true,
		},
		{
			name:      "negative absolute lifetime invalid",
			mutate:    func(c *Config) { c.Session.AbsoluteLifetime = -time.Second },
			wantValid: false,
		},
		{
			name:      "blank redis prefix invalid",
			mutate:    func(c *Config) { c.Session.RedisPrefix = "  " },
			wantValid: false,
		},
		{
			name:      "samesite strict valid",
			mutate:    func(c *Config) { c.Cookie.SameSite = "Strict" },
			wantValid: true,
		},
		{
			name:      "samesite bogus invalid",
			mutate:    func(c *Config) { c.Cookie.SameSite = "sometimes" },
			wantValid: false,
		},
		{
			name: "samesite none without secure invalid",
			mutate: func(c *Config) {
				c.Cookie.SameSite = "none"
				c.Cookie.Secure = false
			},
			wantValid: false,
		},
		{
			name:      "short signing key invalid",
			mutate:    func(c *Config) { c.Cookie.SigningKey = "short" },
			wantValid: false,
		},
		{
			name:      "long signing key valid",
			mutate:    func(c *Config) { c.Cookie.SigningKey = strings.Repeat("k", 32) },
			wantValid: true,
		},
		{
			name:      "ban cache age zero invalid",
			mutate:    func(c *Config) { c.Ban.CacheAge = 0 },
			wantValid: false,
		},
		{
			name:      "weak argon2 memory invalid",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestCookieSameSiteMode(t *testing.T) {
	cases := map[string]http.SameSite{
		"":       http.SameSiteLaxMode,
		"lax":    http.SameSiteLaxMode,
		"STRICT": http.SameSiteStrictMode,
		"none":   http.SameSiteNoneMode,
	}
	for in, want := range cases {
		if got := (CookieConfig{SameSite: in}).SameSiteMode(); got != want {
			t.Fatalf("SameSite %q: expected %v, got %v", in, want, got)
		}
	}
}
