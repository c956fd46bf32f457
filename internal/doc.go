// Package internal contains helpers that are private to goGuard: random
// one-time codes and value hashing.
//
// # Sub-packages
//
//   - rate: attempt-window rate limiter with Redis and in-memory stores
//   - stores: Redis-backed user profile store
//
// # What this package must NOT do
//
//   - Export types that appear in the public goGuard API.
//   - Be imported by any package outside the goGuard module.
package internal
