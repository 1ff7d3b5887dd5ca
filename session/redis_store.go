package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

const minSlidingTTL = time.Second

// RedisStore keeps session blobs in Redis under "<prefix>:<id>".
//
// With sliding expiration enabled, every Load pushes the key's expiry forward
// by the TTL it was last saved with, optionally randomised by a jitter so that
// sessions created together do not expire together.
type RedisStore struct {
	redis         redis.UniversalClient
	prefix        string
	sliding       bool
	slidingTTL    time.Duration
	jitterEnabled bool
	jitterRange   time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithSlidingExpiration renews the key to ttl on every Load.
func WithSlidingExpiration(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.sliding = ttl > 0
		s.slidingTTL = ttl
	}
}

// WithJitter randomises sliding renewals by up to ±jitterRange.
func WithJitter(jitterRange time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		s.jitterEnabled = jitterRange > 0
		s.jitterRange = jitterRange
	}
}

// NewRedisStore creates a store over client. An empty prefix defaults to "gg:sess".
func NewRedisStore(client redis.UniversalClient, prefix string, opts ...RedisStoreOption) *RedisStore {
	if prefix == "" {
		prefix = "gg:sess"
	}
	s := &RedisStore{redis: client, prefix: prefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	key := s.key(id)
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.sliding {
		next, err := s.nextSlidingTTL()
		if err != nil {
			return nil, err
		}
		if err := s.redis.Expire(ctx, key, next).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return data, nil
}

// Save implements Store. A non-positive ttl stores without expiry.
func (s *RedisStore) Save(ctx context.Context, id string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// TTL returns the remaining lifetime of a session key, or ErrNotFound.
func (s *RedisStore) TTL(ctx context.Context, id string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// -2: missing key, -1: no expiry.
	if ttl == -2 {
		return 0, ErrNotFound
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Count estimates live sessions by scanning the key prefix. O(keys); meant for
// operator tooling, not request paths.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	pattern := s.prefix + ":*"
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// Ping checks Redis availability and reports the round-trip latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) nextSlidingTTL() (time.Duration, error) {
	next := s.slidingTTL
	if s.jitterEnabled {
		jitter, err := randomJitter(s.jitterRange)
		if err != nil {
			return 0, err
		}
		next += jitter
	}
	if next < minSlidingTTL {
		next = minSlidingTTL
	}
	return next, nil
}

func randomJitter(jitterRange time.Duration) (time.Duration, error) {
	if jitterRange <= 0 {
		return 0, nil
	}
	max := jitterRange.Nanoseconds()
	if max > (math.MaxInt64-1)/2 {
		return 0, errors.New("jitter range too large")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max*2+1))
	if err != nil {
		return 0, err
	}
	return time.Duration(n.Int64() - max), nil
}
