// Package stores provides the Redis-backed user profile store (the
// users/{uid} record: status flags, MFA enrollment, login metadata and
// hashed password history).
//
// # Design
//
// Each profile is one JSON value. Mutations use WATCH/MULTI optimistic
// transactions with retry on contention, so concurrent updates to the same
// profile never lose writes.
//
// # What this package must NOT do
//
//   - Import goGuard or any sibling internal package.
//   - Store plaintext passwords; history entries are argon2id hashes.
package stores
