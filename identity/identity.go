// Package identity defines the boundary to the external identity provider
// that owns credentials, email delivery and second-factor enrollment.
//
// goGuard never stores passwords itself. The Engine calls a [Provider] to
// create accounts, verify credentials and send mail, and layers sessions,
// rate limiting and policy on top.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned by VerifyCredentials for an unknown
	// email or a wrong password, without saying which.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrAccountExists is returned by CreateAccount for a taken email.
	ErrAccountExists = errors.New("identity: account already exists")
	// ErrUserNotFound is returned for an unknown user ID or email.
	ErrUserNotFound = errors.New("identity: user not found")
	// ErrInvalidAssertion is returned when a phone assertion or code is rejected.
	ErrInvalidAssertion = errors.New("identity: invalid phone assertion")
	// ErrUnavailable wraps transport failures talking to the provider.
	ErrUnavailable = errors.New("identity: provider unavailable")
)

// Account is the provider's view of a user.
type Account struct {
	UserID        string
	Email         string
	EmailVerified bool
	PhoneNumber   string
	CreatedAt     time.Time
}

// PhoneAssertion proves that a phone number was verified out of band.
type PhoneAssertion struct {
	PhoneNumber    string
	VerificationID string
	VerifiedAt     time.Time
}

// Provider is the credential-verification boundary consumed by the Engine.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (userID string, err error)
	VerifyCredentials(ctx context.Context, email, password string) (userID string, err error)
	SendEmailVerification(ctx context.Context, userID string) error
	SendPasswordReset(ctx context.Context, email string) error
	EnrollSecondFactor(ctx context.Context, userID string, assertion PhoneAssertion) error
	UpdatePassword(ctx context.Context, userID, newPassword string) error
	LookupAccount(ctx context.Context, userID string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// PhoneVerifier is implemented by providers that run SMS verification
// themselves.
type PhoneVerifier interface {
	StartPhoneVerification(ctx context.Context, phoneNumber string) (verificationID string, err error)
	ConfirmPhoneVerification(ctx context.Context, verificationID, code string) (PhoneAssertion, error)
}
