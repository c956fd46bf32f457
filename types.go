package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/session"
)

// UserProfile is the per-user record stored next to the identity provider
// (`users/{uid}`).
type UserProfile = stores.Profile

// AccountStatus is the administrative state of a profile.
type AccountStatus = stores.AccountStatus

const (
	AccountActive    = stores.StatusActive
	AccountLocked    = stores.StatusLocked
	AccountSuspended = stores.StatusSuspended
)

// ProfileStore persists user profiles. Get and Update return
// [ErrProfileNotFound] for an unknown user, and Create returns
// [ErrProfileExists] when a profile is already present. Update applies fn
// atomically; an error from fn is returned unchanged and nothing is written.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*UserProfile, error)
	Create(ctx context.Context, p *UserProfile) error
	Update(ctx context.Context, userID string, fn func(*UserProfile) error) (*UserProfile, error)
}

// SignupRequest is the input of [Engine.Signup].
type SignupRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// LoginRequest is the input of [Engine.Login]. The client IP and user agent
// are read from the context (see [WithClientIP] and [WithUserAgent]).
type LoginRequest struct {
	Email      string
	Password   string
	RememberMe bool
}

// LoginResult is returned by a successful [Engine.Login].
type LoginResult struct {
	Profile *UserProfile
	Session *session.Session
	// SessionDegraded is set when the session store was unreachable and
	// Session was synthesized locally. Such a session does not validate.
	SessionDegraded bool

	// AccessToken is empty unless JWT issuance is enabled.
	AccessToken          string
	AccessTokenExpiresAt time.Time
}

// ChangePasswordRequest is the input of [Engine.ChangePassword].
type ChangePasswordRequest struct {
	UserID          string
	CurrentPassword string
	NewPassword     string
	// CurrentSessionID survives the optional revocation of other sessions.
	CurrentSessionID string
}

// CompletePasswordResetRequest is the input of [Engine.CompletePasswordReset].
type CompletePasswordResetRequest struct {
	Email          string
	VerificationID string
	Code           string
	NewPassword    string
}

// ProfileUpdate carries the user-editable profile fields. Nil fields are
// left untouched.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// AuthResult is returned by [Engine.ValidateAccessToken].
type AuthResult struct {
	UserID    string
	SessionID string
	MFA       bool
	Session   *session.Session
}

// RateLimitState is the read-only limiter view of one action.
type RateLimitState struct {
	Action    string        `json:"action"`
	Allowed   bool          `json:"allowed"`
	Remaining int           `json:"remaining"`
	ResetIn   time.Duration `json:"resetIn"`
}

// SweepReport counts what one [Engine.Sweep] pass removed.
type SweepReport struct {
	Sessions   int `json:"sessions"`
	RateLimits int `json:"rateLimits"`
}
