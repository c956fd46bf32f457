// Package session provides Redis-backed session persistence for goGuard.
//
// # Storage layout
//
// A session is a Redis hash keyed by its ID. Each user has an index set of
// active session IDs and all sessions share one expiry sorted set. Every
// state transition that touches more than one key runs as a Lua script, so
// single-session operations are atomic. All keys share the store prefix as a
// hash tag, so the scripts also run on Redis Cluster, where one store
// occupies a single slot.
//
// # Reconciling reads
//
// [Store.ValidateAndReconcile] and [Store.ListActive] revoke expired
// sessions as a side effect. [Store.Get] is the read-only lookup. Records
// are never deleted except by [Store.SweepExpired].
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT issue
// tokens, rate limit, or decide whether a login is allowed; those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import goGuard or jwt (no upward imports).
//   - Log or return full session IDs in errors.
package session
