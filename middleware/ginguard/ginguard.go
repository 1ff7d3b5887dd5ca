// Package ginguard adapts goGuard guards to gin.
//
// The accessor is stored both on the request context (so
// middleware.SessionFromContext works in shared code) and under [ContextKey]
// on the gin context.
package ginguard

import (
	"time"

	"github.com/gin-gonic/gin"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
)

// ContextKey is the gin context key holding the *goGuard.Session.
const ContextKey = "goguard.session"

// Session returns the accessor attached by Guard or Attach.
func Session[ID comparable, U goGuard.AuthUser[ID]](c *gin.Context) (*goGuard.Session[ID, U], bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return middleware.SessionFromContext[ID, U](c.Request.Context())
	}
	s, ok := v.(*goGuard.Session[ID, U])
	return s, ok && s != nil
}

// Guard aborts the chain with the JSON error envelope unless reqs hold.
func Guard[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], reqs goGuard.Requirements, opts ...middleware.Option) gin.HandlerFunc {
	a := middleware.NewAuthorizer(engine, opts...)
	return func(c *gin.Context) {
		s, r, err := a.Authorize(c.Writer, c.Request, reqs)
		c.Request = r
		c.Set(ContextKey, s)
		if err != nil {
			status, body := middleware.NewErrorBody(err)
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

// Attach loads the session without enforcing anything.
func Attach[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...middleware.Option) gin.HandlerFunc {
	a := middleware.NewAuthorizer(engine, opts...)
	return func(c *gin.Context) {
		s, r := a.Load(c.Writer, c.Request)
		c.Request = r
		c.Set(ContextKey, s)
		c.Next()
	}
}

func RequireAuthenticated[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...middleware.Option) gin.HandlerFunc {
	return Guard(engine, goGuard.AuthRequirements().Authenticated(), opts...)
}

func RequireUnauthenticated[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], opts ...middleware.Option) gin.HandlerFunc {
	return Guard(engine, goGuard.AuthRequirements().Unauthenticated(), opts...)
}

func RequireRole[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], level int32, opts ...middleware.Option) gin.HandlerFunc {
	return Guard(engine, goGuard.AuthRequirements().Authenticated().Verified().RoleAtLeast(level), opts...)
}

func RequireStepUp[ID comparable, U goGuard.AuthUser[ID]](engine *goGuard.Engine[ID, U], d time.Duration, opts ...middleware.Option) gin.HandlerFunc {
	return Guard(engine, goGuard.AuthRequirements().Authenticated().ReauthWithin(d), opts...)
}
