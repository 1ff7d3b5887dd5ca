package middleware

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the accessor attached by Guard or Attach.
func SessionFromContext[ID comparable, U goGuard.AuthUser[ID]](ctx context.Context) (*goGuard.Session[ID, U], bool) {
	s, ok := ctx.Value(sessionContextKey{}).(*goGuard.Session[ID, U])
	return s, ok && s != nil
}

// ErrorHandler writes the response for a denied request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type options struct {
	errorHandler ErrorHandler
	cookies      CookieCodec
	clientIP     func(*http.Request) string
}

// Option configures an Authorizer.
type Option func(*options)

// WithErrorHandler replaces the default JSON error writer.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		if h != nil {
			o.errorHandler = h
		}
	}
}

// WithCookieCodec replaces the codec built from the engine's cookie config.
func WithCookieCodec(c CookieCodec) Option {
	return func(o *options) {
		if c != nil {
			o.cookies = c
		}
	}
}

// WithClientIPFunc sets how the client address is derived. The default uses
// the host part of RemoteAddr.
func WithClientIPFunc(fn func(*http.Request) string) Option {
	return func(o *options) {
		if fn != nil {
			o.clientIP = fn
		}
	}
}

// Authorizer loads sessions from requests and checks requirements. Guard and
// the framework adapters are thin wrappers around it.
type Authorizer[ID comparable, U goGuard.AuthUser[ID]] struct {
	engine *goGuard.Engine[ID, U]
	opts   options
}

// NewAuthorizer panics when the engine's cookie config cannot produce a
// codec; Build has already validated it, so that only happens for engines
// assembled by hand.
func NewAuthorizer[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...Option) *Authorizer[ID, U] {
	o := options{
		errorHandler: func(w http.ResponseWriter, _ *http.Request, err error) { WriteError(w, err) },
		clientIP:     remoteHost,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cookies == nil {
		cfg := engine.Config()
		codec, err := NewCookies(cfg.Cookie, cfg.Session.TTL)
		if err != nil {
			panic("goguard/middleware: " + err.Error())
		}
		o.cookies = codec
	}
	return &Authorizer[ID, U]{engine: engine, opts: o}
}

// Load returns the request's accessor, reusing one already in the context.
// The returned request carries the accessor and the client metadata.
func (a *Authorizer[ID, U]) Load(w http.ResponseWriter, r *http.Request) (*goGuard.Session[ID, U], *http.Request) {
	if s, ok := SessionFromContext[ID, U](r.Context()); ok {
		return s, r
	}
	ctx := r.Context()
	if ip := a.opts.clientIP(r); ip != "" {
		ctx = goGuard.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = goGuard.WithUserAgent(ctx, ua)
	}

	handle := a.engine.NewHandle(a.opts.cookies.Read(r),
		session.OnIssue(func(id string) { a.opts.cookies.Write(w, id) }),
		session.OnClear(func() { a.opts.cookies.Expire(w) }),
	)
	s := a.engine.Load(ctx, handle)
	return s, r.WithContext(context.WithValue(ctx, sessionContextKey{}, s))
}

// Authorize loads the session and evaluates reqs. On allow the session is
// touched once per request; a failed touch is logged and does not deny.
func (a *Authorizer[ID, U]) Authorize(w http.ResponseWriter, r *http.Request, reqs goGuard.Requirements) (*goGuard.Session[ID, U], *http.Request, error) {
	s, r := a.Load(w, r)
	if err := goGuard.CheckRequirements(r.Context(), s, reqs); err != nil {
		return s, r, err
	}
	if err := s.TouchOnce(r.Context()); err != nil {
		a.engine.Logger().Warn("session touch failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	return s, r, nil
}

// Deny writes err through the configured error handler.
func (a *Authorizer[ID, U]) Deny(w http.ResponseWriter, r *http.Request, err error) {
	a.opts.errorHandler(w, r, err)
}

// Engine returns the wrapped engine.
func (a *Authorizer[ID, U]) Engine() *goGuard.Engine[ID, U] { return a.engine }

// Guard returns middleware that lets a request through only when reqs hold.
func Guard[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], reqs goGuard.Requirements, opts ...Option) func(http.Handler) http.Handler {
	a := NewAuthorizer(engine, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, r, err := a.Authorize(w, r, reqs)
			if err != nil {
				a.Deny(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Attach loads the session into the request context without enforcing
// anything. Handlers that log users in or out mount it.
func Attach[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...Option) func(http.Handler) http.Handler {
	a := NewAuthorizer(engine, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, r = a.Load(w, r)
			next.ServeHTTP(w, r)
		})
	}
}

func RequireUnauthenticated[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.AuthRequirements().Unauthenticated(), opts...)
}

func RequireAuthenticated[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.AuthRequirements().Authenticated(), opts...)
}

func RequireVerified[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.AuthRequirements().Authenticated().Verified(), opts...)
}

// RequireUnverified admits signed-in users who have not verified their email,
// e.g. for the resend-verification page.
func RequireUnverified[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.AuthRequirements().Authenticated().Unverified(), opts...)
}

// RequireRole admits verified users whose role level is at least level.
func RequireRole[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], level int32, opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.AuthRequirements().Authenticated().Verified().RoleAtLeast(level), opts...)
}

// RequireStepUp admits users who confirmed their password within d.
func RequireStepUp[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], d time.Duration, opts ...Option) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.AuthRequirements().Authenticated().ReauthWithin(d), opts...)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
