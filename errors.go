package goGuard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/password"
)

var (
	// ErrPasswordPolicy is matched by every [*PolicyError].
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrRateLimited is matched by every [*RateLimitError].
	ErrRateLimited = errors.New("too many attempts")
	// ErrAccountLocked is returned by Login for a locked profile.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountSuspended is returned by Login for a suspended profile.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAuthenticationFailed is the single error for bad credentials. It
	// never says whether the email or the password was wrong.
	ErrAuthenticationFailed = errors.New("invalid email or password")
	ErrSessionNotFound      = errors.New("session not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrAccountExists        = errors.New("account already exists")
	// ErrStoreUnavailable wraps persistence failures on user-invoked paths.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrProviderUnavailable wraps identity or OTP provider outages.
	ErrProviderUnavailable  = errors.New("identity provider unavailable")
	ErrPasswordReuse        = errors.New("password was used recently")
	ErrEmailAlreadyVerified = errors.New("email already verified")
	ErrOTPInvalid           = errors.New("invalid or expired verification code")
	ErrInvalidSession       = errors.New("invalid session")
	ErrInvalidStatus        = errors.New("invalid account status")
	ErrEngineNotReady       = errors.New("engine not initialized")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrInvalidPhone         = errors.New("invalid phone number")
	// ErrResetUnsupported is returned by CompletePasswordReset when the
	// OTP provider completes resets out of band.
	ErrResetUnsupported = errors.New("password reset is completed by the identity provider")

	// Profile store sentinels, re-exported for custom ProfileStore
	// implementations.
	ErrProfileNotFound = stores.ErrProfileNotFound
	ErrProfileExists   = stores.ErrProfileExists
)

// PolicyError carries the strength report of a rejected password.
type PolicyError struct {
	Feedback []string
	Strength password.Strength
}

func newPolicyError(s password.Strength) *PolicyError {
	return &PolicyError{Feedback: s.Feedback, Strength: s}
}

func (e *PolicyError) Error() string {
	if len(e.Feedback) == 0 {
		return ErrPasswordPolicy.Error()
	}
	return ErrPasswordPolicy.Error() + ": " + strings.Join(e.Feedback, "; ")
}

func (e *PolicyError) Is(target error) bool { return target == ErrPasswordPolicy }

// RateLimitError reports a rejected attempt and when the caller may retry.
type RateLimitError struct {
	Action  string
	ResetIn time.Duration
}

func (e *RateLimitError) Error() string {
	minutes := int((e.ResetIn + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%s: try again in %d minute(s)", ErrRateLimited, minutes)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
