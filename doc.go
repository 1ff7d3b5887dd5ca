// Package goGuard is a composable authentication and authorization engine for
// session-based web services.
//
// An [Engine] binds an embedder-supplied [AuthBackend] to a session store.
// Per request, [Engine.Load] turns a raw session handle into a [Session]
// accessor, and [CheckRequirements] evaluates an ordered [Requirements] chain
// against it, stopping at the first failing condition. Every failure is an
// [*Error] carrying one of a closed set of [ErrorCode] values.
//
// # Architecture boundaries
//
// goGuard does not know about HTTP. Transport adapters live in the middleware
// packages; the OAuth login flow lives in package oauth; storage for sessions
// lives in package session.
//
// # Concurrency
//
// Engine is safe for concurrent use after [Builder.Build]. Session accessors
// are request-scoped and must not be shared between goroutines.
package goGuard
