package otp

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/identity"
)

// Delegated routes codes through the identity provider. Email codes become
// the provider's password-reset mail; SMS start and confirm go to a
// [identity.PhoneVerifier].
type Delegated struct {
	provider identity.Provider
	phones   identity.PhoneVerifier
}

// NewDelegated returns a Delegated provider. phones may be nil, in which
// case SMS operations return [ErrUnsupported].
func NewDelegated(provider identity.Provider, phones identity.PhoneVerifier) *Delegated {
	return &Delegated{provider: provider, phones: phones}
}

// SendEmailOTP triggers the provider's reset mail and returns an empty
// verification ID.
func (d *Delegated) SendEmailOTP(ctx context.Context, email string) (string, error) {
	if err := d.provider.SendPasswordReset(ctx, email); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return "", nil
}

func (d *Delegated) SendSMSOTP(ctx context.Context, phoneNumber string) (string, error) {
	if d.phones == nil {
		return "", ErrUnsupported
	}
	id, err := d.phones.StartPhoneVerification(ctx, phoneNumber)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return id, nil
}

func (d *Delegated) VerifyOTP(ctx context.Context, verificationID, code string) (Verification, error) {
	if d.phones == nil {
		return Verification{}, ErrUnsupported
	}
	assertion, err := d.phones.ConfirmPhoneVerification(ctx, verificationID, code)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidAssertion) {
			return Verification{}, ErrCodeInvalid
		}
		return Verification{}, err
	}
	return Verification{
		ID:          verificationID,
		Channel:     ChannelSMS,
		Destination: assertion.PhoneNumber,
		VerifiedAt:  assertion.VerifiedAt,
	}, nil
}
