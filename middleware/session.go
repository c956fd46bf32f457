package middleware

import (
	"context"
	"net"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session attached by [RequireSession] or
// [Guard].
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.Session)
	return sess, ok && sess != nil
}

// RequestContext returns r's context carrying the client IP and User-Agent,
// which the Engine records on sessions and activity entries.
func RequestContext(r *http.Request) context.Context {
	ctx := goGuard.WithClientIP(r.Context(), clientIP(r))
	return goGuard.WithUserAgent(ctx, r.UserAgent())
}

// RequireSession validates the session cookie and rejects the request with
// 401 when it is missing or no longer valid.
func RequireSession(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			cookie, err := r.Cookie(engine.Config().Session.CookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := RequestContext(r)
			sess := engine.ValidateSession(ctx, cookie.Value)
			if sess == nil {
				ClearSessionCookie(w, engine)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, sessionContextKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// clientIP prefers the chi RealIP-rewritten RemoteAddr; the port is dropped.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
