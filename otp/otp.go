// Package otp issues and checks one-time codes sent by email or SMS.
//
// [Provider] is the capability the Engine depends on. Two variants exist
// and one is chosen from configuration at startup: [Delegated] hands
// delivery and checking to the identity provider, and [Local] generates
// codes in-process, keeps their secrets in Redis and delivers them through
// a [Sender].
package otp

import (
	"context"
	"errors"
	"time"
)

// Channel is the delivery channel of a code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

var (
	// ErrCodeInvalid is returned for a wrong code.
	ErrCodeInvalid = errors.New("otp: invalid code")
	// ErrCodeExpired is returned when the verification ID is unknown,
	// expired or already used.
	ErrCodeExpired = errors.New("otp: code expired or already used")
	// ErrTooManyAttempts is returned once the attempt cap is exceeded; the
	// verification is discarded.
	ErrTooManyAttempts = errors.New("otp: too many attempts")
	// ErrUnsupported is returned when a variant cannot serve a channel.
	ErrUnsupported = errors.New("otp: unsupported operation")
	// ErrDelivery wraps sender failures.
	ErrDelivery = errors.New("otp: delivery failed")
	// ErrStoreUnavailable wraps code store failures.
	ErrStoreUnavailable = errors.New("otp: store unavailable")
)

// Verification is the result of a successful [Provider.VerifyOTP].
type Verification struct {
	ID          string
	Channel     Channel
	Destination string
	VerifiedAt  time.Time
}

// Provider sends and verifies one-time codes.
//
// SendEmailOTP may return an empty verification ID when the variant
// completes the flow out of band (for example a reset link).
type Provider interface {
	SendEmailOTP(ctx context.Context, email string) (verificationID string, err error)
	SendSMSOTP(ctx context.Context, phoneNumber string) (verificationID string, err error)
	VerifyOTP(ctx context.Context, verificationID, code string) (Verification, error)
}

// Message is one code delivery.
type Message struct {
	Channel Channel
	To      string
	Code    string
}

// Sender delivers a [Message].
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to [Sender].
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }
