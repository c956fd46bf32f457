// Package jwt issues and verifies short-lived access tokens bound to a
// goGuard session. The session store stays the source of truth: a valid
// token for a revoked session must be rejected by the caller.
package jwt
