package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCSRFStoreUnavailable wraps Redis transport failures.
var ErrCSRFStoreUnavailable = errors.New("oauth: csrf store unavailable")

const csrfKeyPrefix = "oauth:csrf:"

// RedisCSRFStore keeps tokens under "oauth:csrf:<token>". Consumption is a
// single DEL, so only the caller that actually removed the key succeeds.
type RedisCSRFStore struct {
	redis redis.UniversalClient
}

var _ CSRFStorage = (*RedisCSRFStore)(nil)

func NewRedisCSRFStore(client redis.UniversalClient) *RedisCSRFStore {
	return &RedisCSRFStore{redis: client}
}

// Store writes the token with SET NX. A collision with a live token is an
// error; with 256-bit tokens it indicates a broken random source.
func (s *RedisCSRFStore) Store(ctx context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return ErrEmptyToken
	}
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	ok, err := s.redis.SetNX(ctx, csrfKeyPrefix+token, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCSRFStoreUnavailable, err)
	}
	if !ok {
		return errors.New("oauth: csrf token already stored")
	}
	return nil
}

func (s *RedisCSRFStore) VerifyAndConsume(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := s.redis.Del(ctx, csrfKeyPrefix+token).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCSRFStoreUnavailable, err)
	}
	return n == 1, nil
}
