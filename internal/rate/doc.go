// Package rate implements the fixed-window login attempt limiter with
// lockout, over a pluggable per-key atomic [Store].
//
// # Window semantics
//
// A record holds the failed attempts since FirstAttemptAt. Once the window
// has elapsed the record is stale and treated as absent. [Limiter.Check]
// converts a full window into a lockout lazily, at read time.
// [Limiter.Record] clears the record on success and counts failures.
//
// Keys are "<prefix>:<action>:<identifier>".
//
// # Concurrency
//
// Every call is a single-key atomic operation in the [Store]; RedisStore runs
// each one as a Lua script. Check and Record are still two calls, so N concurrent requests that all pass Check before
// any of them records can push Attempts up to MaxAttempts-1+N. The overrun
// is bounded by request concurrency and the next Check locks the key.
//
// # What this package must NOT do
//
//   - Decide what an identifier is (email, IP); callers pass it in.
//   - Rely on Sweep for correctness. Sweep only frees memory.
package rate
