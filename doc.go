// Package goGuard is a session and account-security layer that sits on top of
// an external identity provider. It adds password policy, attempt rate
// limiting, Redis-backed sessions, SMS second-factor enrollment and a
// per-user activity log to whatever service verifies credentials.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGuard is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (UserProfile, LoginResult, SweepReport, etc.). Reusable
// pieces live in leaf packages: password, session, activity, device, otp,
// identity and jwt. Rate limiting and the profile store live under internal/
// and are never exported.
//
// # Failure model
//
// The session store is the source of truth. ValidateSession answers nil for
// anything it cannot confirm, including store errors and deadlines. Login
// never fails on a session write: it returns a locally synthesized session
// flagged with SessionDegraded instead. Activity entries, profile touches and
// verification emails are best-effort and only logged on failure.
//
// # What this package must NOT do
//
//   - Verify credentials itself (the identity provider does).
//   - Log passwords, one-time codes or full session IDs.
//   - Import any sub-package that re-imports goGuard (no import cycles).
package goGuard
