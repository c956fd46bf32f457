// Package activity records the append-only audit trail of account events
// (logins, password changes, MFA enrollment, session revocations) and
// answers per-user queries over it.
//
// Entries live in a [Store]: [RedisStore] keeps a sorted set per user and
// [PostgresStore] writes the activity_logs table. Both return entries
// newest first. Entries are never updated or deleted by this package.
package activity
