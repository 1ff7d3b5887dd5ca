package password

import (
	"context"

	"golang.org/x/sync/semaphore"

	goGuard "github.com/MrEthical07/goGuard"
)

// DefaultMaxConcurrent bounds simultaneous Argon2 computations when
// NewVerifier is given a non-positive limit.
const DefaultMaxConcurrent = 4

// Verifier runs Argon2 work under a weighted semaphore so a burst of logins
// cannot exhaust memory. Waiting honours ctx.
type Verifier struct {
	hasher *Argon2
	sem    *semaphore.Weighted
}

func NewVerifier(hasher *Argon2, maxConcurrent int64) *Verifier {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Verifier{hasher: hasher, sem: semaphore.NewWeighted(maxConcurrent)}
}

// FromConfig builds an Argon2 hasher and its verifier from the engine's
// password settings.
func FromConfig(cfg goGuard.PasswordConfig) (*Verifier, error) {
	hasher, err := NewArgon2(Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	return NewVerifier(hasher, cfg.MaxConcurrent), nil
}

// Verify is Argon2.Verify behind the semaphore. It returns ctx.Err() when the
// context ends before a slot frees up.
func (v *Verifier) Verify(ctx context.Context, password, encodedHash string) (bool, error) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer v.sem.Release(1)
	return v.hasher.Verify(password, encodedHash)
}

func (v *Verifier) Hash(ctx context.Context, password string) (string, error) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer v.sem.Release(1)
	return v.hasher.Hash(password)
}

// NeedsUpgrade does no key derivation and skips the semaphore.
func (v *Verifier) NeedsUpgrade(encodedHash string) (bool, error) {
	return v.hasher.NeedsUpgrade(encodedHash)
}
