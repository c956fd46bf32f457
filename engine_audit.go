package goGuard

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventLoginBlocked          = "login_account_blocked"
	auditEventSessionDegraded       = "session_degraded"
	auditEventSignup                = "signup"
	auditEventLogoutSession         = "logout_session"
	auditEventSessionRevoked        = "session_revoked"
	auditEventLogoutAll             = "logout_all"
	auditEventSessionExtended       = "session_extended"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetComplete = "password_reset_complete"
	auditEventEmailVerificationSent = "email_verification_sent"
	auditEventSMSCodeSent           = "sms_code_sent"
	auditEventSMSCodeVerify         = "sms_code_verify"
	auditEventMFADisabled           = "mfa_disabled"
	auditEventAccountStatusChange   = "account_status_change"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventRateLimitReset        = "rate_limit_reset"
	auditEventSweep                 = "sweep"
)

// AuditErrorCode is the stable, non-sensitive error classification carried
// in [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrAuthenticationFailed AuditErrorCode = "authentication_failed"
	auditErrRateLimited          AuditErrorCode = "rate_limited"
	auditErrSessionNotFound      AuditErrorCode = "session_not_found"
	auditErrInvalidSession       AuditErrorCode = "invalid_session"
	auditErrUserNotFound         AuditErrorCode = "user_not_found"
	auditErrAccountLocked        AuditErrorCode = "account_locked"
	auditErrAccountSuspended     AuditErrorCode = "account_suspended"
	auditErrPasswordPolicy       AuditErrorCode = "password_policy"
	auditErrPasswordReuse        AuditErrorCode = "password_reuse"
	auditErrOTPInvalid           AuditErrorCode = "otp_invalid"
	auditErrDuplicate            AuditErrorCode = "duplicate"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: shortID(sessionID),
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, action, identifier string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		return map[string]string{
			"action":     action,
			"identifier": identifier,
		}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return auditErrAuthenticationFailed
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrInvalidSession):
		return auditErrInvalidSession
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountSuspended):
		return auditErrAccountSuspended
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrOTPInvalid):
		return auditErrOTPInvalid
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrProviderUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
