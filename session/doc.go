// Package session holds the per-login session record and the stores that
// persist it.
//
// # State
//
// [State] is the record written at login and mutated in place afterwards:
// identity, verification snapshot, TOTP and reauthentication timestamps, the
// ban cache, client metadata and last activity. Its JSON field names are the
// wire contract for anyone inspecting stored sessions; [Encode] wraps it in a
// versioned envelope.
//
// # Stores
//
// [Store] is a key/value contract over opaque blobs. [RedisStore],
// [MemoryStore] and [BoltStore] implement it. [Handle] binds a store to the
// session ID a request presented and handles ID issuance and rotation.
//
// This package does not resolve users or evaluate access policy; that
// belongs to the root package.
package session
