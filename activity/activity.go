package activity

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/device"
)

// Action identifies a security-relevant account event.
type Action string

const (
	ActionLogin                 Action = "login"
	ActionLogout                Action = "logout"
	ActionSignup                Action = "signup"
	ActionPasswordChange        Action = "password_change"
	ActionPasswordResetRequest  Action = "password_reset_request"
	ActionPasswordResetComplete Action = "password_reset_complete"
	ActionEmailVerification     Action = "email_verification"
	ActionPhoneVerification     Action = "phone_verification"
	ActionSessionRevoked        Action = "session_revoked"
	ActionEmailVerificationSent Action = "email_verification_sent"
	ActionEmailVerified         Action = "email_verified"
	ActionPhoneVerificationSent Action = "phone_verification_sent"
	ActionPhoneVerified         Action = "phone_verified"
	ActionMFAEnabled            Action = "mfa_enabled"
	ActionMFADisabled           Action = "mfa_disabled"
	ActionSessionCreated        Action = "session_created"
	ActionAccountLocked         Action = "account_locked"
	ActionAccountUnlocked       Action = "account_unlocked"
	ActionLoginFailed           Action = "login_failed"
)

var labels = map[Action]string{
	ActionLogin:                 "Logged in",
	ActionLogout:                "Logged out",
	ActionSignup:                "Account created",
	ActionPasswordChange:        "Password changed",
	ActionPasswordResetRequest:  "Password reset requested",
	ActionPasswordResetComplete: "Password reset completed",
	ActionEmailVerification:     "Email verification",
	ActionPhoneVerification:     "Phone verification",
	ActionSessionRevoked:        "Session revoked",
	ActionEmailVerificationSent: "Verification email sent",
	ActionEmailVerified:         "Email verified",
	ActionPhoneVerificationSent: "Phone verification sent",
	ActionPhoneVerified:         "Phone verified",
	ActionMFAEnabled:            "2FA enabled",
	ActionMFADisabled:           "2FA disabled",
	ActionSessionCreated:        "New session created",
	ActionAccountLocked:         "Account locked",
	ActionAccountUnlocked:       "Account unlocked",
	ActionLoginFailed:           "Login failed",
}

// Label returns the human-readable label of action, or the raw action
// string when it has none.
func Label(action Action) string {
	if l, ok := labels[action]; ok {
		return l
	}
	return string(action)
}

// SecurityActions are the actions returned by [Log.SecurityEvents].
var SecurityActions = []Action{
	ActionPasswordChange,
	ActionPasswordResetRequest,
	ActionPasswordResetComplete,
	ActionMFAEnabled,
	ActionMFADisabled,
	ActionAccountLocked,
	ActionAccountUnlocked,
	ActionLoginFailed,
}

// Entry is one append-only activity record.
type Entry struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	Action     Action            `json:"action"`
	Success    bool              `json:"success"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	IPAddress  string            `json:"ipAddress"`
	UserAgent  string            `json:"userAgent"`
	DeviceInfo device.Info       `json:"deviceInfo"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Query selects entries of one user, newest first.
type Query struct {
	UserID string
	// Actions restricts results to these actions. Empty means all.
	Actions []Action
	// Since excludes entries older than this instant when non-zero.
	Since time.Time
	// Limit caps the result size. Zero or negative means unlimited.
	Limit int
}

func (q Query) matches(e *Entry) bool {
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if len(q.Actions) == 0 {
		return true
	}
	for _, a := range q.Actions {
		if e.Action == a {
			return true
		}
	}
	return false
}

// Store persists entries. Append must assign ID when it is empty.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
}

// ErrStoreUnavailable wraps any backing-store failure.
var ErrStoreUnavailable = errors.New("activity store unavailable")

// NopStore discards entries and lists nothing.
type NopStore struct{}

func (NopStore) Append(context.Context, *Entry) error { return nil }

func (NopStore) List(context.Context, Query) ([]Entry, error) { return []Entry{}, nil }
