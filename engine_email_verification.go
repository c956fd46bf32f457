package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/identity"
)

// ResendEmailVerification asks the provider to send another verification
// email. It returns [ErrEmailAlreadyVerified] once the address is verified
// and brings the profile flag in line with the provider.
func (e *Engine) ResendEmailVerification(ctx context.Context, userID string) error {
	acc, err := e.identity.LookupAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return providerErr(err)
	}

	if acc.EmailVerified {
		e.bestEffort(ctx, "sync_email_verified", func(ctx context.Context) error {
			_, err := e.profiles.Update(ctx, userID, func(p *UserProfile) error {
				p.EmailVerified = true
				return nil
			})
			if errors.Is(err, ErrProfileNotFound) {
				return nil
			}
			return err
		})
		return ErrEmailAlreadyVerified
	}

	if err := e.identity.SendEmailVerification(ctx, userID); err != nil {
		err = providerErr(err)
		e.recordActivity(ctx, userID, activity.ActionEmailVerificationSent, false, nil)
		e.emitAudit(ctx, auditEventEmailVerificationSent, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricEmailVerificationSent)
	e.recordActivity(ctx, userID, activity.ActionEmailVerificationSent, true, nil)
	e.emitAudit(ctx, auditEventEmailVerificationSent, true, userID, "", nil, nil)
	return nil
}
