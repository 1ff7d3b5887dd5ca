package goGuard

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CheckRequirements evaluates reqs against sess in order and returns the
// first failure as an *Error, or nil when every condition holds.
//
// Refreshes made along the way (email verification flag, ban cache) change
// the in-memory record only. They reach the store on the next write, which
// for guarded requests is the touch after an allow.
func CheckRequirements[ID comparable, U AuthUser[ID]](ctx context.Context, sess *Session[ID, U], reqs Requirements) error {
	e := sess.engine
	ctx, span := e.tracer.Start(ctx, "goGuard.CheckRequirements",
		trace.WithAttributes(attribute.Int("goguard.conditions", reqs.Len())),
	)
	defer span.End()

	start := time.Now()
	err := evaluateAll(ctx, sess, reqs)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricCheckLatency, time.Since(start))
	}

	if err == nil {
		e.metricInc(MetricCheckAllowed)
		span.SetAttributes(attribute.Bool("goguard.allowed", true))
		return nil
	}

	ae := AsError(err)
	e.metricInc(MetricCheckDenied)
	span.SetAttributes(
		attribute.Bool("goguard.allowed", false),
		attribute.String("goguard.code", ae.Code.String()),
	)
	if ae.Code.Family() == FamilyInfrastructure {
		span.RecordError(err)
		span.SetStatus(codes.Error, ae.Code.String())
	}
	e.logger.Debug("requirements denied",
		zap.String("code", ae.Code.String()),
		zap.Any("context", ae.Context),
	)
	if sess.hasUser && ae.Code.Family() == FamilyAuthorization {
		ev := e.auditEvent(ctx, AuditAccessDenied, sess.user.ID(), true, fingerprint(sess.ID()))
		ev.Code = ae.Code.String()
		if cond, ok := ae.Context["condition"].(string); ok {
			ev.Metadata = map[string]string{"condition": cond}
		}
		e.EmitAudit(ctx, ev)
	}
	return ae
}

func evaluateAll[ID comparable, U AuthUser[ID]](ctx context.Context, sess *Session[ID, U], reqs Requirements) error {
	for _, c := range reqs.conds {
		if err := evaluate(ctx, sess, reqs, c); err != nil {
			ae := AsError(err).With("condition", c.Kind.String())
			if c.Kind == CondCustom {
				ae = ae.With("predicate", c.Name)
			}
			return ae
		}
	}
	return nil
}

func evaluate[ID comparable, U AuthUser[ID]](ctx context.Context, sess *Session[ID, U], reqs Requirements, c Condition) error {
	e := sess.engine

	switch c.Kind {
	case CondAuthenticated:
		if !sess.hasUser {
			return sess.missingUser()
		}
		return nil

	case CondUnauthenticated:
		if sess.hasUser {
			return ErrAlreadyAuthenticated
		}
		return nil

	case CondCustom:
		if c.Predicate == nil {
			return ErrInternal.WithMessage("custom condition has no predicate")
		}
		ok, err := c.Predicate(ctx, sess.subject())
		if err != nil {
			return WrapError(CodeInternalError, err)
		}
		if !ok {
			return ErrPermissionDenied
		}
		return nil
	}

	// Every remaining condition is about a user; none can hold without one.
	if !sess.hasUser {
		return sess.missingUser()
	}
	user, st := sess.user, sess.state
	now := e.now()

	switch c.Kind {
	case CondVerified, CondUnverified:
		live := user.EmailVerified()
		if st.EmailVerified() != live {
			st.RefreshVerification(live)
		}
		if c.Kind == CondVerified && !live {
			return ErrVerificationRequired
		}
		if c.Kind == CondUnverified && live {
			return ErrAlreadyVerified.WithMessage("This resource is for unverified users only")
		}
		return nil

	case CondRoleAtLeast:
		if level := user.RoleLevel(); level < c.Role {
			return ErrInsufficientRole.
				With("required_role", c.Role).
				With("user_role", level)
		}
		return nil

	case CondNotBanned:
		maxAge := reqs.banCacheAge
		if maxAge <= 0 {
			maxAge = e.config.Ban.CacheAge
		}
		var fetched *BanStatus
		if st.BanCacheStaleAt(maxAge, now) {
			e.metricInc(MetricBanCheck)
			status, err := e.backend.CheckBan(ctx, user.ID())
			if err != nil {
				return wrapBackend(err)
			}
			st.UpdateBanStatusAt(status, now)
			fetched = &status
			e.logger.Debug("ban cache refreshed", zap.Any("user_id", user.ID()), zap.Bool("banned", st.IsBanned()))
		} else {
			e.metricInc(MetricBanCacheHit)
		}
		if !st.IsBanned() {
			return nil
		}
		e.metricInc(MetricBanEnforced)
		banned := ErrBanned
		if fetched != nil {
			if fetched.Reason != "" {
				banned = banned.With("reason", fetched.Reason)
			}
			if fetched.Permanent() {
				banned = banned.With("permanent", true)
			} else {
				banned = banned.With("expires_at", fetched.ExpiresAt.UTC().Format(time.RFC3339))
			}
		}
		return banned

	case CondTOTPVerified:
		if user.TOTPEnabled() && !st.IsTOTPVerified() {
			return ErrTOTPRequired
		}
		return nil

	case CondTOTPStrict:
		if !st.IsTOTPVerified() {
			return ErrTOTPRequired
		}
		return nil

	case CondReauthWithin:
		if !st.ReauthWithinAt(c.MaxAge, now) {
			return ErrReauthRequired.With("max_age_seconds", int64(c.MaxAge/time.Second))
		}
		return nil
	}

	return ErrInternal.WithMessage("unknown condition")
}

func (s *Session[ID, U]) subject() Subject {
	if !s.hasUser {
		return Subject{}
	}
	return Subject{
		Authenticated:   true,
		UserID:          s.user.ID(),
		User:            s.user,
		RoleLevel:       s.user.RoleLevel(),
		EmailVerified:   s.user.EmailVerified(),
		TOTPVerified:    s.state.IsTOTPVerified(),
		AuthenticatedAt: s.state.AuthenticatedAt(),
	}
}
