// Package middleware adapts goGuard.Engine to net/http.
//
// # Guards
//
//   - [SessionPresence] redirects on the presence of the session cookie
//     alone. It is a routing convenience, not a security boundary.
//   - [RequireSession] validates the session cookie through
//     Engine.ValidateSession.
//   - [Guard] verifies a Bearer access token through
//     Engine.ValidateAccessToken.
//
// [SetSessionCookie] and [ClearSessionCookie] write the cookie the guards
// read, using the Engine's Security settings.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject.
package middleware
