// Package middleware adapts the goGuard engine to net/http.
//
// # Guards
//
//   - [Guard] enforces an arbitrary requirement chain.
//   - [RequireAuthenticated], [RequireUnauthenticated], [RequireVerified],
//     [RequireUnverified], [RequireRole] and [RequireStepUp] are the common
//     chains.
//   - [Attach] loads the session without enforcing anything.
//
// Every guard reads the session cookie through a [CookieCodec], loads the
// session once per request and stores the accessor in the request context
// for [SessionFromContext]. Denials are written as JSON:
//
//	{"error":{"code":"AUTH_BANNED","message":"Account banned","context":{...}}}
//
// Decisions stay in the engine; this package only translates between HTTP
// and engine calls.
package middleware
