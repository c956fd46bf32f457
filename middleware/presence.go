package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// PresenceConfig lists the path prefixes [SessionPresence] routes on.
type PresenceConfig struct {
	CookieName string
	// Protected prefixes require the cookie; visitors without one are sent
	// to LoginPath with a redirect parameter.
	Protected []string
	// Auth prefixes are for signed-out visitors; visitors with a cookie are
	// sent to HomePath.
	Auth      []string
	LoginPath string
	HomePath  string
}

// DefaultPresenceConfig protects /dashboard and /Profile and treats the
// login, signup and forgot-password pages as signed-out only.
func DefaultPresenceConfig() PresenceConfig {
	return PresenceConfig{
		CookieName: "session",
		Protected:  []string{"/dashboard", "/Profile"},
		Auth:       []string{"/auth/login", "/auth/signup", "/auth/forgot-password"},
		LoginPath:  "/auth/login",
		HomePath:   "/dashboard",
	}
}

// SessionPresence redirects on whether a non-empty session cookie is
// present. It does not validate the cookie; pair it with [RequireSession] on anything
// that serves user data.
func SessionPresence(cfg PresenceConfig) func(http.Handler) http.Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			c, err := r.Cookie(cfg.CookieName)
			hasCookie := err == nil && c.Value != ""

			switch {
			case !hasCookie && matchPrefix(path, cfg.Protected):
				target := cfg.LoginPath + "?redirect=" + url.QueryEscape(path)
				http.Redirect(w, r, target, http.StatusFound)
				return
			case hasCookie && matchPrefix(path, cfg.Auth):
				http.Redirect(w, r, cfg.HomePath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
