package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/otp"
)

const mfaMethodSMS = "sms"

// SendSMSVerification sends a code to phoneNumber to start SMS second
// factor enrollment for userID and returns the verification ID to pass to
// [Engine.VerifySMSCode]. Sends count against the sms_otp budget of the
// user.
func (e *Engine) SendSMSVerification(ctx context.Context, userID, phoneNumber string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return "", ErrInvalidPhone
	}
	if _, err := e.loadProfile(ctx, userID); err != nil {
		return "", err
	}

	rule := e.config.RateLimit.SMS
	if err := e.checkLimit(ctx, ActionSMSOTP, userID, rule); err != nil {
		return "", err
	}
	e.recordAttempt(ctx, ActionSMSOTP, userID, false, rule)

	verificationID, err := e.otp.SendSMSOTP(ctx, phoneNumber)
	if err != nil {
		if !errors.Is(err, otp.ErrUnsupported) {
			err = providerErr(err)
		}
		e.recordActivity(ctx, userID, activity.ActionPhoneVerificationSent, false, nil)
		e.emitAudit(ctx, auditEventSMSCodeSent, false, userID, "", err, nil)
		return "", err
	}

	e.metricInc(MetricSMSCodeSent)
	e.recordActivity(ctx, userID, activity.ActionPhoneVerificationSent, true, map[string]string{
		"phone": maskPhone(phoneNumber),
	})
	e.emitAudit(ctx, auditEventSMSCodeSent, true, userID, "", nil, nil)
	return verificationID, nil
}

// VerifySMSCode checks the code sent by [Engine.SendSMSVerification],
// enrolls the phone as a second factor with the provider and enables SMS
// MFA on the profile.
func (e *Engine) VerifySMSCode(ctx context.Context, userID, verificationID, code string) (err error) {
	ctx, span := e.startSpan(ctx, "VerifySMSCode")
	defer func() { endSpan(span, err) }()

	if _, err := e.loadProfile(ctx, userID); err != nil {
		return err
	}
	rule := e.config.RateLimit.SMS
	if err := e.checkLimit(ctx, ActionSMSOTP, userID, rule); err != nil {
		return err
	}

	v, err := e.otp.VerifyOTP(ctx, verificationID, code)
	if err == nil && v.Channel != otp.ChannelSMS {
		err = otp.ErrCodeInvalid
	}
	if err != nil {
		err = otpErr(err)
		if errors.Is(err, ErrOTPInvalid) {
			e.recordAttempt(ctx, ActionSMSOTP, userID, false, rule)
		}
		e.metricInc(MetricSMSCodeFailure)
		e.recordActivity(ctx, userID, activity.ActionPhoneVerified, false, nil)
		e.emitAudit(ctx, auditEventSMSCodeVerify, false, userID, "", err, nil)
		return err
	}

	assertion := identity.PhoneAssertion{
		PhoneNumber:    v.Destination,
		VerificationID: v.ID,
		VerifiedAt:     v.VerifiedAt,
	}
	if err := e.identity.EnrollSecondFactor(ctx, userID, assertion); err != nil {
		if errors.Is(err, identity.ErrInvalidAssertion) {
			return ErrOTPInvalid
		}
		return providerErr(err)
	}

	if _, err := e.updateProfile(ctx, userID, func(p *UserProfile) error {
		p.PhoneNumber = v.Destination
		p.MFAEnabled = true
		p.MFAMethods = []string{mfaMethodSMS}
		return nil
	}); err != nil {
		return err
	}

	e.recordAttempt(ctx, ActionSMSOTP, userID, true, rule)
	e.metricInc(MetricSMSCodeVerified)
	e.metricInc(MetricMFAEnabled)
	e.recordActivity(ctx, userID, activity.ActionPhoneVerified, true, nil)
	e.recordActivity(ctx, userID, activity.ActionMFAEnabled, true, map[string]string{"method": mfaMethodSMS})
	e.emitAudit(ctx, auditEventSMSCodeVerify, true, userID, "", nil, nil)
	return nil
}

// DisableMFA turns SMS MFA off after re-verifying the current password.
func (e *Engine) DisableMFA(ctx context.Context, userID, currentPassword string) error {
	profile, err := e.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	uid, err := e.identity.VerifyCredentials(ctx, profile.Email, currentPassword)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrUserNotFound) {
			e.emitAudit(ctx, auditEventMFADisabled, false, userID, "", ErrAuthenticationFailed, nil)
			return ErrAuthenticationFailed
		}
		return providerErr(err)
	}
	if uid != userID {
		return ErrAuthenticationFailed
	}

	if _, err := e.updateProfile(ctx, userID, func(p *UserProfile) error {
		p.MFAEnabled = false
		p.MFAMethods = []string{}
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricMFADisabled)
	e.recordActivity(ctx, userID, activity.ActionMFADisabled, true, nil)
	e.emitAudit(ctx, auditEventMFADisabled, true, userID, "", nil, nil)
	return nil
}

// maskPhone keeps the last two digits.
func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return "**"
	}
	return strings.Repeat("*", len(phone)-2) + phone[len(phone)-2:]
}
