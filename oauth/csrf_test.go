package oauth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCSRF(t *testing.T) (*RedisCSRFStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCSRFStore(client), mr
}

func consumeConcurrently(t *testing.T, store CSRFStorage, token string, n int) int64 {
	t.Helper()
	var (
		wg   sync.WaitGroup
		wins atomic.Int64
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := store.VerifyAndConsume(context.Background(), token)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return wins.Load()
}

func TestCSRFTokenShape(t *testing.T) {
	a, err := NewCSRFToken()
	require.NoError(t, err)
	b, err := NewCSRFToken()
	require.NoError(t, err)
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestCSRFSingleUseUnderConcurrency(t *testing.T) {
	redisStore, _ := newRedisCSRF(t)
	stores := map[string]CSRFStorage{
		"memory": NewMemoryCSRFStore(),
		"redis":  redisStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			token, err := NewCSRFToken()
			require.NoError(t, err)
			require.NoError(t, store.Store(context.Background(), token, time.Minute))

			assert.EqualValues(t, 1, consumeConcurrently(t, store, token, 32))

			ok, err := store.VerifyAndConsume(context.Background(), token)
			require.NoError(t, err)
			assert.False(t, ok, "token must not be redeemable twice")
		})
	}
}

func TestCSRFUnknownToken(t *testing.T) {
	redisStore, _ := newRedisCSRF(t)
	for _, store := range []CSRFStorage{NewMemoryCSRFStore(), redisStore} {
		ok, err := store.VerifyAndConsume(context.Background(), "never-issued")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestRedisCSRFKeyAndExpiry(t *testing.T) {
	store, mr := newRedisCSRF(t)
	require.NoError(t, store.Store(context.Background(), "tok", time.Minute))
	assert.True(t, mr.Exists("oauth:csrf:tok"))

	mr.FastForward(61 * time.Second)
	ok, err := store.VerifyAndConsume(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCSRFUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisCSRFStore(client)
	err := store.Store(context.Background(), "tok", time.Minute)
	assert.ErrorIs(t, err, ErrCSRFStoreUnavailable)
}

func TestMemoryCSRFExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryCSRFStore().WithClock(func() time.Time { return now })
	require.NoError(t, store.Store(context.Background(), "tok", time.Minute))

	now = now.Add(2 * time.Minute)
	ok, err := store.VerifyAndConsume(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, store.Len())

	assert.ErrorIs(t, store.Store(context.Background(), "", time.Minute), ErrEmptyToken)
}
