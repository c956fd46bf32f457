package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/otp"
)

// RequestPasswordReset sends a reset code (local OTP) or the provider's
// reset mail (delegated OTP) to email and returns the verification ID,
// which is empty for the delegated flow.
//
// Every request counts against the password_reset budget whether or not
// the address exists, and the result does not reveal which is the case.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrInvalidEmail
	}
	rule := e.config.RateLimit.PasswordReset
	if err := e.checkLimit(ctx, ActionPasswordReset, email, rule); err != nil {
		return "", err
	}
	e.recordAttempt(ctx, ActionPasswordReset, email, false, rule)

	subject := e.activitySubject(ctx, email)
	verificationID, err := e.otp.SendEmailOTP(ctx, email)
	if err != nil {
		e.recordActivity(ctx, subject, activity.ActionPasswordResetRequest, false, nil)
		err = providerErr(err)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", err, nil)
		return "", err
	}

	e.recordActivity(ctx, subject, activity.ActionPasswordResetRequest, true, nil)
	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", "", nil, nil)
	return verificationID, nil
}

// CompletePasswordReset sets a new password after the emailed code has
// been verified. It is only available with the local OTP provider; the
// delegated provider completes resets itself and this returns
// [ErrResetUnsupported].
//
// A wrong, expired or foreign code returns [ErrOTPInvalid]. On success the
// login limiter of the address is cleared and, when configured, every
// session is revoked.
func (e *Engine) CompletePasswordReset(ctx context.Context, req CompletePasswordResetRequest) (err error) {
	ctx, span := e.startSpan(ctx, "CompletePasswordReset")
	defer func() { endSpan(span, err) }()

	if e.config.OTP.Provider != OTPProviderLocal {
		return ErrResetUnsupported
	}
	email := normalizeEmail(req.Email)
	if err := e.validatePassword(req.NewPassword); err != nil {
		return err
	}

	v, err := e.otp.VerifyOTP(ctx, req.VerificationID, req.Code)
	if err != nil {
		return otpErr(err)
	}
	if v.Channel != otp.ChannelEmail || normalizeEmail(v.Destination) != email {
		return ErrOTPInvalid
	}

	acc, err := e.identity.FindByEmail(ctx, email)
	if err != nil {
		// The code was valid for an address without an account.
		return ErrOTPInvalid
	}
	userID := acc.UserID

	profile, err := e.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return storeErr(err)
	}
	if profile != nil {
		if err := e.checkReuse(profile, req.NewPassword); err != nil {
			return err
		}
	}

	hash, err := e.historyHash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := e.identity.UpdatePassword(ctx, userID, req.NewPassword); err != nil {
		return providerErr(err)
	}

	now := e.now()
	if profile != nil {
		e.bestEffort(ctx, "record_password_reset", func(ctx context.Context) error {
			_, err := e.profiles.Update(ctx, userID, func(p *UserProfile) error {
				p.LastPasswordChangeAt = now
				p.LoginAttempts = 0
				e.appendHistory(p, hash)
				return nil
			})
			return err
		})
	}
	e.bestEffort(ctx, "reset_login_limit", func(ctx context.Context) error {
		return e.limiter.Reset(ctx, email, ActionLogin)
	})

	revokeErr := e.revokeAfterPasswordChange(ctx, userID, "")

	e.metricInc(MetricPasswordResetComplete)
	e.recordActivity(ctx, userID, activity.ActionPasswordResetComplete, true, nil)
	e.emitAudit(ctx, auditEventPasswordResetComplete, true, userID, "", nil, nil)
	return revokeErr
}

// activitySubject resolves email to a user ID for activity entries, falling
// back to the email itself.
func (e *Engine) activitySubject(ctx context.Context, email string) string {
	acc, err := e.identity.FindByEmail(ctx, email)
	if err != nil || acc.UserID == "" {
		return email
	}
	return acc.UserID
}

func otpErr(err error) error {
	switch {
	case errors.Is(err, otp.ErrCodeInvalid),
		errors.Is(err, otp.ErrCodeExpired),
		errors.Is(err, otp.ErrTooManyAttempts):
		return ErrOTPInvalid
	case errors.Is(err, otp.ErrStoreUnavailable):
		return storeErr(err)
	default:
		return providerErr(err)
	}
}
