package goGuard

import (
	"context"
	"fmt"
	"io"

	"github.com/MrEthical07/goGuard/internal/audit"
)

// AuditEvent is one security-relevant record emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = audit.SinkFunc

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink writes audit events into a buffered channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// MultiSink fans events out to several sinks.
type MultiSink = audit.MultiSink

// Audit event types.
const (
	AuditLogin           = audit.TypeLogin
	AuditLogout          = audit.TypeLogout
	AuditLoginHookFailed = audit.TypeLoginHookFailed
	AuditLogoutHookFail  = audit.TypeLogoutHookFail
	AuditSessionDangling = audit.TypeSessionDangling
	AuditSessionExpired  = audit.TypeSessionExpired
	AuditAccessDenied    = audit.TypeAccessDenied
	AuditReauth          = audit.TypeReauth
	AuditTOTPConfirm     = audit.TypeTOTPConfirm
	AuditOAuthLogin      = audit.TypeOAuthLogin
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// auditEvent builds an event stamped with the engine clock and the request's
// client metadata.
func (e *Engine[ID, U]) auditEvent(ctx context.Context, eventType string, userID ID, hasUser bool, sessionID string) AuditEvent {
	ev := audit.NewEvent(eventType, e.now())
	if hasUser {
		ev.UserID = fmt.Sprint(userID)
	}
	ev.SessionID = sessionID
	ev.IP = clientIPFromContext(ctx)
	ev.UserAgent = userAgentFromContext(ctx)
	return ev
}

// EmitAudit queues event on the dispatcher. No-op when audit is disabled.
func (e *Engine[ID, U]) EmitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, event)
}

// AuditDropped reports how many events were dropped because the buffer was
// full.
func (e *Engine[ID, U]) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// NewAuditEvent builds an event for the accessor's user and session, for
// subsystems such as the OAuth flow that report through the engine's sink.
func (s *Session[ID, U]) NewAuditEvent(ctx context.Context, eventType string) AuditEvent {
	var userID ID
	if s.hasUser {
		userID = s.user.ID()
	}
	return s.engine.auditEvent(ctx, eventType, userID, s.hasUser, fingerprint(s.ID()))
}
