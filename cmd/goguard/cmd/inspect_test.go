package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/session"
)

func seedSession(t *testing.T, store session.Store, userID uuid.UUID) string {
	t.Helper()
	id, err := session.NewID()
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	st := session.NewStateAt(userID, true, now).WithMetadata("curl/8.0", "203.0.113.9")
	st.MarkReauthenticatedAt(now.Add(time.Minute))
	data, err := session.Encode(st)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), id, data, time.Hour))
	return id
}

func TestInspectSessionFromBolt(t *testing.T) {
	store, err := session.OpenBoltStore(filepath.Join(t.TempDir(), "sessions.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	userID := uuid.New()
	id := seedSession(t, store, userID)

	var out bytes.Buffer
	require.NoError(t, inspectSession(context.Background(), &out, store, goGuard.DefaultConfig(), id))

	var view sessionView
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	assert.Equal(t, id, view.SessionID)
	assert.Equal(t, userID, view.UserID)
	assert.True(t, view.EmailVerified)
	assert.Equal(t, "203.0.113.9", view.IP)
	require.NotNil(t, view.ReauthenticatedAt)
	assert.Nil(t, view.TOTPVerifiedAt)
	assert.Empty(t, view.TTL)
}

func TestInspectSessionReportsRedisTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewRedisStore(client, "gg:sess")

	id := seedSession(t, store, uuid.New())

	var out bytes.Buffer
	require.NoError(t, inspectSession(context.Background(), &out, store, goGuard.DefaultConfig(), id))
	assert.Contains(t, out.String(), `"ttl": "1h0m0s"`)
}

func TestInspectSessionAcceptsSignedCookie(t *testing.T) {
	store := session.NewMemoryStore()
	id := seedSession(t, store, uuid.New())

	cfg := goGuard.DefaultConfig()
	cfg.Cookie.SigningKey = "0123456789abcdef0123456789abcdef"
	signer, err := jwt.NewHS256([]byte(cfg.Cookie.SigningKey), cfg.Session.TTL)
	require.NoError(t, err)
	token, err := signer.Sign(id)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, inspectSession(context.Background(), &out, store, cfg, token))
	assert.Contains(t, out.String(), id)
}

func TestInspectSessionErrors(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()

	err := inspectSession(ctx, &bytes.Buffer{}, store, goGuard.DefaultConfig(), "not-a-session")
	require.Error(t, err)

	missing, err := session.NewID()
	require.NoError(t, err)
	err = inspectSession(ctx, &bytes.Buffer{}, store, goGuard.DefaultConfig(), missing)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
