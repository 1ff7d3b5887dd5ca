package goGuard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/session"
)

// Engine binds a backend, a session store and the ambient stack. It holds no
// per-request state and is safe for concurrent use.
type Engine[ID comparable, U AuthUser[ID]] struct {
	config  Config
	backend AuthBackend[ID, U]
	store   session.Store
	logger  *zap.Logger
	tracer  trace.Tracer
	audit   *audit.Dispatcher
	metrics *Metrics
	now     func() time.Time
}

// Close drains the audit dispatcher, waiting until ctx is done at most.
func (e *Engine[ID, U]) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	return e.audit.Close(ctx)
}

// Config returns a copy of the validated configuration.
func (e *Engine[ID, U]) Config() Config { return e.config }

func (e *Engine[ID, U]) Logger() *zap.Logger { return e.logger }

func (e *Engine[ID, U]) Backend() AuthBackend[ID, U] { return e.backend }

func (e *Engine[ID, U]) SessionStore() session.Store { return e.store }

// Metrics exposes the live counter set for exporters.
func (e *Engine[ID, U]) Metrics() *Metrics { return e.metrics }

func (e *Engine[ID, U]) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Now returns the engine clock's current time.
func (e *Engine[ID, U]) Now() time.Time { return e.now() }

func (e *Engine[ID, U]) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// NewHandle binds a client-presented session ID (possibly empty) to the
// engine's store with the configured TTL.
func (e *Engine[ID, U]) NewHandle(id string, opts ...session.HandleOption) *session.Handle {
	return session.NewHandle(e.store, id, e.config.Session.TTL, opts...)
}

// Load resolves handle into a request accessor. It never fails: every
// problem yields an anonymous accessor, with the cause logged.
func (e *Engine[ID, U]) Load(ctx context.Context, handle *session.Handle) *Session[ID, U] {
	s := &Session[ID, U]{engine: e, handle: handle}
	if handle == nil || handle.ID() == "" {
		return s
	}

	data, err := handle.Load(ctx)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricSessionLoadFailed)
			e.logger.Warn("session load failed", zap.Error(err))
		}
		return s
	}

	st, err := session.Decode[ID](data)
	if err != nil {
		e.metricInc(MetricSessionLoadFailed)
		e.logger.Warn("discarding undecodable session", zap.Error(err))
		if errors.Is(err, session.ErrCorruptState) {
			e.clearHandle(ctx, handle)
		}
		return s
	}

	now := e.now()
	if reason := e.expiryReason(st, now); reason != "" {
		e.expire(ctx, s, st.UserID(), reason)
		return s
	}

	user, found, err := e.backend.GetUser(ctx, st.UserID())
	if err != nil {
		e.metricInc(MetricSessionLoadFailed)
		e.logger.Error("backend user lookup failed", zap.Any("user_id", st.UserID()), zap.Error(err))
		return s
	}
	if !found {
		e.metricInc(MetricSessionDangling)
		e.logger.Warn("session references missing user",
			zap.Any("user_id", st.UserID()),
			zap.String("policy", string(e.config.Session.Dangling)),
		)
		ev := e.auditEvent(ctx, AuditSessionDangling, st.UserID(), true, fingerprint(handle.ID()))
		e.EmitAudit(ctx, ev)
		if e.config.Session.Dangling == DanglingInvalidate {
			e.clearHandle(ctx, handle)
		}
		return s
	}

	if e.config.Session.VerifyAuthHash && st.AuthHash() != "" && st.AuthHash() != authHash(user.SessionAuthHash()) {
		e.expire(ctx, s, st.UserID(), "credentials_changed")
		return s
	}

	s.state = st
	s.user = user
	s.hasUser = true
	return s
}

func (e *Engine[ID, U]) expiryReason(st *session.State[ID], now time.Time) string {
	if limit := e.config.Session.AbsoluteLifetime; limit > 0 && now.Sub(st.AuthenticatedAt()) > limit {
		return "absolute_lifetime"
	}
	if idle := e.config.Session.IdleTimeout; idle > 0 && now.Sub(st.LastSeen()) > idle {
		return "idle_timeout"
	}
	return ""
}

func (e *Engine[ID, U]) expire(ctx context.Context, s *Session[ID, U], userID ID, reason string) {
	e.metricInc(MetricSessionExpired)
	e.logger.Debug("session expired", zap.Any("user_id", userID), zap.String("reason", reason))
	ev := e.auditEvent(ctx, AuditSessionExpired, userID, true, fingerprint(s.handle.ID()))
	ev.Metadata = map[string]string{"reason": reason}
	e.EmitAudit(ctx, ev)
	e.clearHandle(ctx, s.handle)
	s.expired = true
}

func (e *Engine[ID, U]) clearHandle(ctx context.Context, handle *session.Handle) {
	if err := handle.Clear(ctx); err != nil {
		e.logger.Warn("session clear failed", zap.Error(err))
	}
}

// authHash fingerprints the user's session auth bytes for storage in the
// session record.
func authHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// fingerprint shortens a session ID for logs and audit events so the bearer
// value itself is never recorded.
func fingerprint(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(sessionID))
	return hex.EncodeToString(sum[:6])
}
