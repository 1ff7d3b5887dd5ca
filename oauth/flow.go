package oauth

import (
	"context"
	"time"

	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
)

// Flow runs the authorization-code login for one provider and logs the
// resolved user into the request's session.
type Flow[ID comparable, U goGuard.AuthUser[ID]] struct {
	engine   *goGuard.Engine[ID, U]
	provider Provider
	csrf     CSRFStorage
	users    UserHandler[U]
	ttl      time.Duration
}

// NewFlow uses the engine's OAuth.CSRFTTL for state tokens.
func NewFlow[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], provider Provider, csrf CSRFStorage, users UserHandler[U]) *Flow[ID, U] {
	ttl := engine.Config().OAuth.CSRFTTL
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	return &Flow[ID, U]{engine: engine, provider: provider, csrf: csrf, users: users, ttl: ttl}
}

func (f *Flow[ID, U]) Provider() Provider { return f.provider }

// Begin returns the URL to redirect the browser to.
func (f *Flow[ID, U]) Begin(ctx context.Context) (string, error) {
	authURL, _, err := f.provider.AuthorizationURL(ctx, f.csrf, f.ttl)
	return authURL, err
}

// Complete handles the provider callback: it consumes the state token,
// exchanges the code, resolves the account and logs it into sess.
func (f *Flow[ID, U]) Complete(ctx context.Context, sess *goGuard.Session[ID, U], code, state string) (U, Resolution, error) {
	var zero U
	logger := f.engine.Logger().With(zap.String("provider", f.provider.ID()))
	metrics := f.engine.Metrics()

	ok, err := f.csrf.VerifyAndConsume(ctx, state)
	if err != nil {
		metrics.Inc(goGuard.MetricOAuthFailed)
		logger.Error("csrf store failed", zap.Error(err))
		return zero, 0, goGuard.WrapError(goGuard.CodeBackendError, err)
	}
	if !ok {
		metrics.Inc(goGuard.MetricCSRFRejected)
		logger.Info("oauth state rejected")
		return zero, 0, goGuard.ErrCSRFInvalid
	}

	token, err := f.provider.Exchange(ctx, code)
	if err != nil {
		metrics.Inc(goGuard.MetricOAuthFailed)
		logger.Warn("oauth code exchange failed", zap.Error(err))
		return zero, 0, err
	}
	info, err := f.provider.FetchUserInfo(ctx, token)
	if err != nil {
		metrics.Inc(goGuard.MetricOAuthFailed)
		logger.Warn("oauth user info failed", zap.Error(err))
		return zero, 0, err
	}

	user, res, err := FindOrCreate(ctx, f.users, f.provider.ID(), info)
	if err != nil {
		metrics.Inc(goGuard.MetricOAuthFailed)
		logger.Error("oauth account resolution failed", zap.Error(err))
		return zero, 0, err
	}
	switch res {
	case ResolvedExisting:
		metrics.Inc(goGuard.MetricOAuthFound)
	case ResolvedLinked:
		metrics.Inc(goGuard.MetricOAuthLinked)
	case ResolvedCreated:
		metrics.Inc(goGuard.MetricOAuthCreated)
	}

	if err := sess.Login(ctx, user); err != nil {
		return user, res, err
	}

	ev := sess.NewAuditEvent(ctx, goGuard.AuditOAuthLogin)
	ev.Success = true
	ev.Metadata = map[string]string{"provider": f.provider.ID(), "resolution": res.String()}
	f.engine.EmitAudit(ctx, ev)
	logger.Info("oauth login", zap.Any("user_id", user.ID()), zap.Stringer("resolution", res))
	return user, res, nil
}
