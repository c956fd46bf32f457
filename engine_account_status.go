package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/activity"
)

// SetAccountStatus changes the administrative status of userID. Locking or
// suspending an account revokes all of its sessions; Login rejects it from
// then on. Reactivating clears the login limiter of the account's email.
func (e *Engine) SetAccountStatus(ctx context.Context, userID string, status AccountStatus) (*UserProfile, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	var previous AccountStatus
	profile, err := e.updateProfile(ctx, userID, func(p *UserProfile) error {
		previous = p.AccountStatus
		p.AccountStatus = status
		if status == AccountActive {
			p.LoginAttempts = 0
		}
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, auditEventAccountStatusChange, false, userID, "", err, nil)
		return nil, err
	}

	var revokeErr error
	switch status {
	case AccountLocked, AccountSuspended:
		n, err := e.sessions.RevokeAll(ctx, userID, "")
		if n > 0 && e.metrics != nil {
			e.metrics.Add(MetricSessionRevoked, uint64(n))
		}
		if err != nil {
			revokeErr = storeErr(err)
		}
		e.recordActivity(ctx, userID, activity.ActionAccountLocked, true, map[string]string{
			"status": string(status),
		})
	case AccountActive:
		if previous != AccountActive {
			e.bestEffort(ctx, "reset_login_limit", func(ctx context.Context) error {
				return e.limiter.Reset(ctx, profile.Email, ActionLogin)
			})
			e.recordActivity(ctx, userID, activity.ActionAccountUnlocked, true, nil)
		}
	}

	e.metricInc(MetricAccountStatusChanged)
	e.emitAudit(ctx, auditEventAccountStatusChange, revokeErr == nil, userID, "", revokeErr, func() map[string]string {
		return map[string]string{
			"from": string(previous),
			"to":   string(status),
		}
	})
	if revokeErr != nil {
		return profile, errors.Join(errors.New("status changed but sessions were not revoked"), revokeErr)
	}
	return profile, nil
}
