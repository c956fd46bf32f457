package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/identity"
)

// ChangePassword replaces the password of a signed-in user.
//
// The new password must pass the policy and must not match any of the
// recent hashed passwords. The current password is re-verified with the
// provider before anything changes. When
// Security.RevokeSessionsOnPasswordChange is set, every other session is
// revoked; CurrentSessionID survives.
func (e *Engine) ChangePassword(ctx context.Context, req ChangePasswordRequest) (err error) {
	ctx, span := e.startSpan(ctx, "ChangePassword")
	defer func() { endSpan(span, err) }()

	fail := func(err error) error {
		e.metricInc(MetricPasswordChangeFailure)
		e.recordActivity(ctx, req.UserID, activity.ActionPasswordChange, false, map[string]string{
			"reason": string(auditErrorCode(err)),
		})
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, req.UserID, req.CurrentSessionID, err, nil)
		return err
	}

	if req.UserID == "" {
		return ErrUserNotFound
	}
	profile, err := e.loadProfile(ctx, req.UserID)
	if err != nil {
		return err
	}
	if err := e.validatePassword(req.NewPassword); err != nil {
		return fail(err)
	}
	if err := e.checkReuse(profile, req.NewPassword); err != nil {
		return fail(err)
	}

	uid, err := e.identity.VerifyCredentials(ctx, profile.Email, req.CurrentPassword)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrUserNotFound) {
			return fail(ErrAuthenticationFailed)
		}
		return providerErr(err)
	}
	if uid != req.UserID {
		return fail(ErrAuthenticationFailed)
	}

	hash, err := e.historyHash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := e.identity.UpdatePassword(ctx, req.UserID, req.NewPassword); err != nil {
		return fail(providerErr(err))
	}

	now := e.now()
	e.bestEffort(ctx, "record_password_change", func(ctx context.Context) error {
		_, err := e.profiles.Update(ctx, req.UserID, func(p *UserProfile) error {
			p.LastPasswordChangeAt = now
			e.appendHistory(p, hash)
			return nil
		})
		return err
	})

	revokeErr := e.revokeAfterPasswordChange(ctx, req.UserID, req.CurrentSessionID)

	e.metricInc(MetricPasswordChangeSuccess)
	e.recordActivity(ctx, req.UserID, activity.ActionPasswordChange, true, nil)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, req.UserID, req.CurrentSessionID, nil, nil)
	return revokeErr
}

// revokeAfterPasswordChange revokes every session of userID except
// keepSessionID when the configuration asks for it. The password has
// already changed when this runs, so a failure is reported but not undone.
func (e *Engine) revokeAfterPasswordChange(ctx context.Context, userID, keepSessionID string) error {
	if !e.config.Security.RevokeSessionsOnPasswordChange {
		return nil
	}
	n, err := e.sessions.RevokeAll(ctx, userID, keepSessionID)
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricSessionRevoked, uint64(n))
	}
	if err != nil {
		return fmt.Errorf("password changed but sessions were not revoked: %w", storeErr(err))
	}
	if n > 0 {
		e.recordActivity(ctx, userID, activity.ActionSessionRevoked, true, map[string]string{
			"count":  strconv.Itoa(n),
			"reason": "password_change",
		})
	}
	return nil
}
