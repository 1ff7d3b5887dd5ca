package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// DefaultCSRFTTL is how long an issued state token stays redeemable.
const DefaultCSRFTTL = 10 * time.Minute

const csrfTokenBytes = 32

// ErrEmptyToken is returned when storing an empty state token.
var ErrEmptyToken = errors.New("oauth: empty csrf token")

// CSRFStorage holds OAuth state tokens between the redirect and the
// callback. VerifyAndConsume must be atomic: of any number of concurrent
// calls for one stored token, exactly one returns true.
type CSRFStorage interface {
	Store(ctx context.Context, token string, ttl time.Duration) error
	VerifyAndConsume(ctx context.Context, token string) (bool, error)
}

// NewCSRFToken returns 32 random bytes, base64url without padding.
func NewCSRFToken() (string, error) {
	var raw [csrfTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
