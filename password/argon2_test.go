package password

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGuard "github.com/MrEthical07/goGuard"
)

func mustHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	require.NoError(t, err)
	return h
}

func TestArgon2HashEncodesParameters(t *testing.T) {
	h := mustHasher(t, Config{Memory: 16384, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})

	encoded, err := h.Hash("open sesame 42")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=16384,t=2,p=2$"), encoded)

	again, err := h.Hash("open sesame 42")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salts must differ between hashes")

	ok, err := h.Verify("open sesame 42", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("open sesame 43", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArgon2LengthLimits(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxPasswordBytes = 32
	h := mustHasher(t, cfg)

	_, err := h.Hash("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	long := strings.Repeat("x", 33)
	_, err = h.Hash(long)
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	encoded, err := h.Hash(strings.Repeat("x", 32))
	require.NoError(t, err)
	_, err = h.Verify(long, encoded)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := mustHasher(t, fastConfig())
	encoded, err := weak.Hash("rotate me please")
	require.NoError(t, err)

	stronger := fastConfig()
	stronger.Memory = 16384
	strong := mustHasher(t, stronger)

	upgrade, err := strong.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, upgrade)

	upgrade, err = weak.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.False(t, upgrade)

	// Still verifiable with the stronger hasher: parameters come from the hash.
	ok, err := strong.Verify("rotate me please", encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestArgon2RejectsMalformedHashes(t *testing.T) {
	h := mustHasher(t, fastConfig())
	salt := "AAAAAAAAAAAAAAAAAAAAAA"

	cases := map[string]string{
		"empty":           "",
		"too few fields":  "$argon2id$v=19$m=8192,t=1,p=1$" + salt,
		"argon2i":         "$argon2i$v=19$m=8192,t=1,p=1$" + salt + "$AAAA",
		"old version":     "$argon2id$v=16$m=8192,t=1,p=1$" + salt + "$AAAA",
		"memory too low":  "$argon2id$v=19$m=1024,t=1,p=1$" + salt + "$AAAA",
		"zero time":       "$argon2id$v=19$m=8192,t=0,p=1$" + salt + "$AAAA",
		"duplicate param": "$argon2id$v=19$m=8192,m=8192,p=1$" + salt + "$AAAA",
		"unknown param":   "$argon2id$v=19$m=8192,t=1,x=1$" + salt + "$AAAA",
		"missing param":   "$argon2id$v=19$m=8192,t=1$" + salt + "$AAAA",
		"short salt":      "$argon2id$v=19$m=8192,t=1,p=1$AAAA$AAAA",
		"bad base64":      "$argon2id$v=19$m=8192,t=1,p=1$" + salt + "$!!!",
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := h.Verify("some password", encoded)
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestNewArgon2ValidatesConfig(t *testing.T) {
	base := fastConfig()
	mutate := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 4096 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	}
	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			cfg := base
			fn(&cfg)
			_, err := NewArgon2(cfg)
			assert.Error(t, err)
		})
	}
}

func TestFromConfig(t *testing.T) {
	v, err := FromConfig(goGuard.PasswordConfig{
		Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MaxConcurrent: 1,
	})
	require.NoError(t, err)

	encoded, err := v.Hash(context.Background(), "from config pw")
	require.NoError(t, err)
	ok, err := v.Verify(context.Background(), "from config pw", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = FromConfig(goGuard.PasswordConfig{Memory: 1})
	assert.Error(t, err)
}
