package goGuard

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MrEthical07/goGuard/session"
)

// Session is the per-request accessor: the raw handle, the decoded state and
// the resolved user. Create one with Engine.Load. It is not safe for
// concurrent use.
type Session[ID comparable, U AuthUser[ID]] struct {
	engine  *Engine[ID, U]
	handle  *session.Handle
	state   *session.State[ID]
	user    U
	hasUser bool
	expired bool
	touched bool
}

// Engine returns the engine that loaded the accessor.
func (s *Session[ID, U]) Engine() *Engine[ID, U] { return s.engine }

// Backend returns the engine's backend.
func (s *Session[ID, U]) Backend() AuthBackend[ID, U] { return s.engine.backend }

// Handle returns the raw session handle.
func (s *Session[ID, U]) Handle() *session.Handle { return s.handle }

// ID returns the current session ID, or "" for anonymous requests that never
// wrote a session.
func (s *Session[ID, U]) ID() string {
	if s.handle == nil {
		return ""
	}
	return s.handle.ID()
}

func (s *Session[ID, U]) User() (U, bool) { return s.user, s.hasUser }

func (s *Session[ID, U]) IsAuthenticated() bool { return s.hasUser }

// Expired reports whether Load discarded an expired or invalidated session
// during this request.
func (s *Session[ID, U]) Expired() bool { return s.expired }

// State returns a copy of the session record, or nil when anonymous.
func (s *Session[ID, U]) State() *session.State[ID] {
	if s.state == nil {
		return nil
	}
	return s.state.Clone()
}

// UserRequired returns the user or an Unauthenticated error. When the
// session expired during Load the error is SessionExpired instead.
func (s *Session[ID, U]) UserRequired() (U, error) {
	if !s.hasUser {
		var zero U
		return zero, s.missingUser()
	}
	return s.user, nil
}

// StateRequired is UserRequired for the session record.
func (s *Session[ID, U]) StateRequired() (*session.State[ID], error) {
	if s.state == nil {
		return nil, s.missingUser()
	}
	return s.state.Clone(), nil
}

func (s *Session[ID, U]) missingUser() error {
	if s.expired {
		return ErrSessionExpired
	}
	return ErrUnauthenticated
}

// Login starts a session for user, taking device and IP metadata from the
// context values set by WithUserAgent and WithClientIP.
func (s *Session[ID, U]) Login(ctx context.Context, user U) error {
	return s.LoginWithMetadata(ctx, user, userAgentFromContext(ctx), clientIPFromContext(ctx))
}

// LoginWithMetadata writes a fresh record under a new session ID, deletes the
// previous one and makes user the accessor's user. A write failure leaves the
// accessor, the handle and the stored previous session unchanged.
// The login hook runs last; its failure is returned as BackendError but the
// session stays established.
func (s *Session[ID, U]) LoginWithMetadata(ctx context.Context, user U, device, ip string) error {
	e := s.engine
	if s.handle == nil {
		return ErrSession.WithMessage("no session handle")
	}

	st := session.NewStateAt(user.ID(), user.EmailVerified(), e.now()).WithMetadata(device, ip)
	st.SetAuthHash(authHash(user.SessionAuthHash()))
	data, err := session.Encode(st)
	if err != nil {
		return WrapError(CodeInternalError, err)
	}

	if err := s.handle.Replace(ctx, data); err != nil {
		e.metricInc(MetricSessionWriteFailed)
		e.logger.Error("session write failed", zap.Error(err))
		return WrapError(CodeSessionError, err)
	}

	s.state = st
	s.user = user
	s.hasUser = true
	s.expired = false

	e.metricInc(MetricLogin)
	ev := e.auditEvent(ctx, AuditLogin, user.ID(), true, fingerprint(s.handle.ID()))
	ev.Success = true
	e.EmitAudit(ctx, ev)

	if hook, ok := e.backend.(LoginHook[U]); ok {
		if err := hook.OnLogin(ctx, user); err != nil {
			e.metricInc(MetricHookFailed)
			e.logger.Error("login hook failed", zap.Any("user_id", user.ID()), zap.Error(err))
			e.EmitAudit(ctx, e.auditEvent(ctx, AuditLoginHookFailed, user.ID(), true, fingerprint(s.handle.ID())))
			return wrapBackend(err)
		}
	}
	return nil
}

// Logout runs the logout hook when a session exists, deletes the stored
// session and resets the accessor. Logging out an anonymous accessor is a
// no-op.
func (s *Session[ID, U]) Logout(ctx context.Context) error {
	e := s.engine
	var hookErr error
	if s.state != nil {
		userID := s.state.UserID()
		if hook, ok := e.backend.(LogoutHook[ID]); ok {
			if err := hook.OnLogout(ctx, userID); err != nil {
				hookErr = err
				e.metricInc(MetricHookFailed)
				e.logger.Error("logout hook failed", zap.Any("user_id", userID), zap.Error(err))
				e.EmitAudit(ctx, e.auditEvent(ctx, AuditLogoutHookFail, userID, true, fingerprint(s.ID())))
			}
		}
		ev := e.auditEvent(ctx, AuditLogout, userID, true, fingerprint(s.ID()))
		ev.Success = true
		e.EmitAudit(ctx, ev)
		e.metricInc(MetricLogout)
	}

	if s.handle != nil {
		if err := s.handle.Clear(ctx); err != nil {
			e.metricInc(MetricSessionWriteFailed)
			return WrapError(CodeSessionError, err)
		}
	}

	var zero U
	s.state = nil
	s.user = zero
	s.hasUser = false

	if hookErr != nil {
		return wrapBackend(hookErr)
	}
	return nil
}

// MarkReauthenticated records a successful password confirmation.
func (s *Session[ID, U]) MarkReauthenticated(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	s.state.MarkReauthenticatedAt(s.engine.now())
	return s.persist(ctx)
}

// MarkTOTPVerified records a successful TOTP confirmation.
func (s *Session[ID, U]) MarkTOTPVerified(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	s.state.MarkTOTPVerifiedAt(s.engine.now())
	return s.persist(ctx)
}

// UpdateBanStatus caches status in the session record.
func (s *Session[ID, U]) UpdateBanStatus(ctx context.Context, status BanStatus) error {
	if s.state == nil {
		return nil
	}
	s.state.UpdateBanStatusAt(status, s.engine.now())
	return s.persist(ctx)
}

// RefreshVerification overwrites the cached email-verified flag.
func (s *Session[ID, U]) RefreshVerification(ctx context.Context, verified bool) error {
	if s.state == nil {
		return nil
	}
	s.state.RefreshVerification(verified)
	return s.persist(ctx)
}

// Touch moves last_seen to now and persists the record, including any
// in-memory refresh made while evaluating requirements.
func (s *Session[ID, U]) Touch(ctx context.Context) error {
	if s.state == nil {
		return nil
	}
	s.state.TouchAt(s.engine.now())
	return s.persist(ctx)
}

// TouchOnce is Touch limited to the first call on this accessor. Guards use
// it so nested guards write at most once per request.
func (s *Session[ID, U]) TouchOnce(ctx context.Context) error {
	if s.touched {
		return nil
	}
	s.touched = true
	return s.Touch(ctx)
}

// Reauthenticate checks password against the backend and opens the step-up
// window on success.
func (s *Session[ID, U]) Reauthenticate(ctx context.Context, password string) error {
	e := s.engine
	user, err := s.UserRequired()
	if err != nil {
		return err
	}
	ok, err := e.backend.VerifyPassword(ctx, user.ID(), password)
	if err != nil {
		return wrapBackend(err)
	}

	ev := e.auditEvent(ctx, AuditReauth, user.ID(), true, fingerprint(s.ID()))
	ev.Success = ok
	e.EmitAudit(ctx, ev)
	if !ok {
		e.metricInc(MetricReauthFailure)
		return ErrInvalidCredentials
	}
	e.metricInc(MetricReauthSuccess)
	return s.MarkReauthenticated(ctx)
}

// ConfirmTOTP checks code through the backend's TOTPVerifier and marks the
// session TOTP-verified on success.
func (s *Session[ID, U]) ConfirmTOTP(ctx context.Context, code string) error {
	e := s.engine
	user, err := s.UserRequired()
	if err != nil {
		return err
	}
	verifier, ok := e.backend.(TOTPVerifier[ID])
	if !ok {
		return ErrInternal.WithMessage("backend does not verify TOTP codes")
	}
	valid, err := verifier.VerifyTOTP(ctx, user.ID(), code)
	if err != nil {
		return wrapBackend(err)
	}

	ev := e.auditEvent(ctx, AuditTOTPConfirm, user.ID(), true, fingerprint(s.ID()))
	ev.Success = valid
	e.EmitAudit(ctx, ev)
	if !valid {
		e.metricInc(MetricTOTPFailure)
		return ErrTOTPInvalid
	}
	e.metricInc(MetricTOTPSuccess)
	return s.MarkTOTPVerified(ctx)
}

func (s *Session[ID, U]) persist(ctx context.Context) error {
	data, err := session.Encode(s.state)
	if err != nil {
		return WrapError(CodeInternalError, err)
	}
	if err := s.handle.Save(ctx, data); err != nil {
		s.engine.metricInc(MetricSessionWriteFailed)
		if errors.Is(err, session.ErrStoreUnavailable) {
			s.engine.logger.Warn("session store unavailable", zap.Error(err))
		}
		return WrapError(CodeSessionError, err)
	}
	return nil
}
