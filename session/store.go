package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Load when no blob exists for the ID.
var ErrNotFound = errors.New("session not found")

// ErrStoreUnavailable wraps transport failures of a backing store.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store persists opaque session blobs keyed by session ID. Expiry is owned by
// the store.
type Store interface {
	Load(ctx context.Context, id string) ([]byte, error)
	Save(ctx context.Context, id string, data []byte, ttl time.Duration) error
	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
}

const sessionIDBytes = 16

// NewID returns a random session identifier: 16 bytes, base64url without padding.
func NewID() (string, error) {
	var raw [sessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidID reports whether id has the shape produced by NewID.
func ValidID(id string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	return err == nil && len(raw) == sessionIDBytes
}

// HandleOption configures a Handle.
type HandleOption func(*Handle)

// OnIssue registers a callback run whenever the handle adopts a new session ID.
func OnIssue(fn func(id string)) HandleOption {
	return func(h *Handle) { h.onIssue = fn }
}

// OnClear registers a callback run after the handle's session is deleted.
func OnClear(fn func()) HandleOption {
	return func(h *Handle) { h.onClear = fn }
}

// Handle is the raw session of a single request: a store plus the ID the
// client presented (possibly empty). It is not safe for concurrent use.
type Handle struct {
	store   Store
	id      string
	ttl     time.Duration
	onIssue func(string)
	onClear func()
}

// NewHandle binds id to store. Malformed IDs are discarded so that they are
// never used as store keys.
func NewHandle(store Store, id string, ttl time.Duration, opts ...HandleOption) *Handle {
	if id != "" && !ValidID(id) {
		id = ""
	}
	h := &Handle{store: store, id: id, ttl: ttl}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ID returns the current session ID, or "".
func (h *Handle) ID() string { return h.id }

// TTL returns the lifetime applied on Save.
func (h *Handle) TTL() time.Duration { return h.ttl }

// Load reads the blob. ErrNotFound when the handle has no ID or the store has no entry.
func (h *Handle) Load(ctx context.Context) ([]byte, error) {
	if h.id == "" {
		return nil, ErrNotFound
	}
	return h.store.Load(ctx, h.id)
}

// Save writes the blob, issuing an ID first if the handle has none.
func (h *Handle) Save(ctx context.Context, data []byte) error {
	if h.id == "" {
		if err := h.issue(); err != nil {
			return err
		}
	}
	return h.store.Save(ctx, h.id, data, h.ttl)
}

// Replace writes data under a fresh ID, then deletes the previous entry and
// adopts the new ID. On failure the handle keeps its old ID and the old entry
// is left in place.
func (h *Handle) Replace(ctx context.Context, data []byte) error {
	id, err := NewID()
	if err != nil {
		return err
	}
	if err := h.store.Save(ctx, id, data, h.ttl); err != nil {
		return err
	}
	if h.id != "" {
		if err := h.store.Delete(ctx, h.id); err != nil {
			_ = h.store.Delete(ctx, id)
			return err
		}
	}
	h.adopt(id)
	return nil
}

// Clear deletes the entry and forgets the ID.
func (h *Handle) Clear(ctx context.Context) error {
	if h.id != "" {
		if err := h.store.Delete(ctx, h.id); err != nil {
			return err
		}
	}
	h.id = ""
	if h.onClear != nil {
		h.onClear()
	}
	return nil
}

func (h *Handle) issue() error {
	id, err := NewID()
	if err != nil {
		return err
	}
	h.adopt(id)
	return nil
}

func (h *Handle) adopt(id string) {
	h.id = id
	if h.onIssue != nil {
		h.onIssue(id)
	}
}
