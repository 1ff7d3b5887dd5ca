package oauth

import (
	"context"
	"sync"
	"time"
)

// MemoryCSRFStore keeps tokens in process memory. Suitable for a single
// instance or tests.
type MemoryCSRFStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
	now    func() time.Time
}

var _ CSRFStorage = (*MemoryCSRFStore)(nil)

func NewMemoryCSRFStore() *MemoryCSRFStore {
	return &MemoryCSRFStore{tokens: make(map[string]time.Time), now: time.Now}
}

// WithClock replaces the store's clock. Used by tests.
func (s *MemoryCSRFStore) WithClock(now func() time.Time) *MemoryCSRFStore {
	s.now = now
	return s
}

func (s *MemoryCSRFStore) Store(_ context.Context, token string, ttl time.Duration) error {
	if token == "" {
		return ErrEmptyToken
	}
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for t, exp := range s.tokens {
		if !now.Before(exp) {
			delete(s.tokens, t)
		}
	}
	s.tokens[token] = now.Add(ttl)
	return nil
}

func (s *MemoryCSRFStore) VerifyAndConsume(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[token]
	if !ok {
		return false, nil
	}
	delete(s.tokens, token)
	return s.now().Before(exp), nil
}

// Len reports stored tokens, expired ones included until the next Store.
func (s *MemoryCSRFStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
