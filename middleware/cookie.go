package middleware

import (
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/session"
)

// SetSessionCookie stores sess.SessionID in the session cookie. The cookie
// expires with the session.
func SetSessionCookie(w http.ResponseWriter, engine *goGuard.Engine, sess *session.Session) {
	if engine == nil || sess == nil {
		return
	}
	cfg := engine.Config()

	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    sess.SessionID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Security.RequireSecureCookies,
		SameSite: cfg.Security.SameSitePolicy,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, engine *goGuard.Engine) {
	if engine == nil {
		return
	}
	cfg := engine.Config()

	http.SetCookie(w, &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Security.RequireSecureCookies,
		SameSite: cfg.Security.SameSitePolicy,
	})
}
