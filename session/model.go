package session

import (
	"time"

	"github.com/MrEthical07/goGuard/device"
)

// Session is one authenticated device instance.
//
// A Session is created on login and afterwards only changes its
// LastActivityAt, its ExpiresAt (via [Store.Extend]) and the terminal
// transition of IsActive to false.
type Session struct {
	SessionID      string      `json:"sessionId"`
	UserID         string      `json:"userId"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	DeviceInfo     device.Info `json:"deviceInfo"`
	IPAddress      string      `json:"ipAddress"`
	IsActive       bool        `json:"isActive"`
}

// ValidAt reports whether the session is active and unexpired at now.
func (s *Session) ValidAt(now time.Time) bool {
	return s != nil && s.IsActive && now.Before(s.ExpiresAt)
}

// ShortID returns the first 8 characters of the session ID for log fields.
func ShortID(sessionID string) string {
	if len(sessionID) <= 8 {
		return sessionID
	}
	return sessionID[:8]
}
