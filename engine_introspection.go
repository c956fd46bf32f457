package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/activity"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings Redis through the session store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}
	rtt, err := e.sessions.Ping(ctx)
	return HealthStatus{RedisAvailable: err == nil, RedisLatency: rtt}
}

// ActiveSessionCount returns the number of indexed sessions of userID.
// The index may still hold expired sessions that no validation or listing
// has reconciled yet.
func (e *Engine) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserNotFound
	}
	n, err := e.sessions.ActiveSessionCount(ctx, userID)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// RateLimitStatus reports the limiter state of identifier for every action
// without changing it. Login and password_reset budgets are keyed by email,
// sms_otp by user ID.
func (e *Engine) RateLimitStatus(ctx context.Context, identifier string) ([]RateLimitState, error) {
	rules := e.limitRules()
	out := make([]RateLimitState, 0, len(rules))
	for _, action := range rateActions {
		res, err := e.limiter.Peek(ctx, identifier, action, rules[action].rate())
		if err != nil {
			return nil, storeErr(err)
		}
		out = append(out, RateLimitState{
			Action:    action,
			Allowed:   res.Allowed,
			Remaining: res.Remaining,
			ResetIn:   res.ResetIn,
		})
	}
	return out, nil
}

// ResetRateLimit clears every limiter record of identifier, lifting any
// lockout.
func (e *Engine) ResetRateLimit(ctx context.Context, identifier string) error {
	var errs []error
	for _, action := range rateActions {
		if err := e.limiter.Reset(ctx, identifier, action); err != nil {
			errs = append(errs, storeErr(err))
		}
	}
	err := errors.Join(errs...)
	e.emitAudit(ctx, auditEventRateLimitReset, err == nil, "", "", err, func() map[string]string {
		return map[string]string{"identifier": identifier}
	})
	return err
}

var rateActions = []string{ActionLogin, ActionPasswordReset, ActionSMSOTP}

func (e *Engine) limitRules() map[string]LimitRule {
	return map[string]LimitRule{
		ActionLogin:         e.config.RateLimit.Login,
		ActionPasswordReset: e.config.RateLimit.PasswordReset,
		ActionSMSOTP:        e.config.RateLimit.SMS,
	}
}

// UserActivity returns the newest activity entries of userID. A limit of
// zero uses the configured default.
func (e *Engine) UserActivity(ctx context.Context, userID string, limit int) ([]activity.Entry, error) {
	entries, err := e.activity.ForUser(ctx, userID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// UserActivityByAction is UserActivity restricted to one action.
func (e *Engine) UserActivityByAction(ctx context.Context, userID string, action activity.Action, limit int) ([]activity.Entry, error) {
	entries, err := e.activity.ForUserByAction(ctx, userID, action, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// SecurityActivity returns the newest security-relevant entries of userID.
func (e *Engine) SecurityActivity(ctx context.Context, userID string, limit int) ([]activity.Entry, error) {
	entries, err := e.activity.SecurityEvents(ctx, userID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}

// FailedLoginsSince returns the failed logins recorded for userID since the
// given instant.
func (e *Engine) FailedLoginsSince(ctx context.Context, userID string, since time.Time) ([]activity.Entry, error) {
	entries, err := e.activity.FailedLoginsSince(ctx, userID, since)
	if err != nil {
		return nil, storeErr(err)
	}
	return entries, nil
}
