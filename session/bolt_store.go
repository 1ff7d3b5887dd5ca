package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var boltBucket = []byte("sessions")

// BoltStore persists sessions in a local BBolt file. Each value is an 8-byte
// big-endian expiry (unix nanoseconds, 0 for none) followed by the blob.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps an open database, creating the bucket if needed.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating session bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

// OpenBoltStore opens (or creates) a database file at path.
func OpenBoltStore(path string, options *bbolt.Options) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewBoltStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// WithClock replaces the store's clock. Used by tests.
func (s *BoltStore) WithClock(now func() time.Time) *BoltStore {
	s.now = now
	return s
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Load(_ context.Context, id string) ([]byte, error) {
	var out []byte
	expired := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(boltBucket).Get([]byte(id))
		if raw == nil {
			return ErrNotFound
		}
		if len(raw) < 8 {
			return fmt.Errorf("%w: short bbolt value", ErrCorruptState)
		}
		if s.isExpired(raw) {
			expired = true
			return nil
		}
		out = append([]byte(nil), raw[8:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		_ = s.Delete(context.Background(), id)
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *BoltStore) Save(_ context.Context, id string, data []byte, ttl time.Duration) error {
	value := make([]byte, 8+len(data))
	if ttl > 0 {
		binary.BigEndian.PutUint64(value[:8], uint64(s.now().Add(ttl).UnixNano()))
	}
	copy(value[8:], data)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(id), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *BoltStore) Delete(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Sweep removes every expired entry and reports how many were removed.
func (s *BoltStore) Sweep(ctx context.Context) (int, error) {
	var stale [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(v) >= 8 && s.isExpired(v) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
	})
	if err != nil || len(stale) == 0 {
		return 0, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *BoltStore) isExpired(value []byte) bool {
	exp := int64(binary.BigEndian.Uint64(value[:8]))
	return exp != 0 && s.now().UnixNano() >= exp
}
