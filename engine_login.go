package goGuard

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Login authenticates email and password and opens a session.
//
// Flow:
//   - the login limiter is consulted first; a locked identifier gets a
//     [*RateLimitError] without reaching the provider
//   - the provider verifies the credentials; a rejection is recorded as a
//     failed attempt and surfaces as [ErrAuthenticationFailed]
//   - the profile is loaded, or created on first login; a locked or
//     suspended profile is rejected
//   - a session is created; if the session store fails, a local session is
//     synthesized and SessionDegraded is set on the result
//   - the limiter record is cleared
//
// A provider outage returns [ErrProviderUnavailable] and does not count as
// a failed attempt.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	ctx, span := e.startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	email := normalizeEmail(req.Email)
	rule := e.config.RateLimit.Login

	if err := e.checkLimit(ctx, ActionLogin, email, rule); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", err, nil)
		}
		return nil, err
	}

	userID, err := e.identity.VerifyCredentials(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrUserNotFound) {
			e.loginFailed(ctx, email)
			return nil, ErrAuthenticationFailed
		}
		return nil, providerErr(err)
	}
	span.SetAttributes(attribute.String("goguard.user_id", userID))

	profile, err := e.profileForLogin(ctx, userID, email)
	if err != nil {
		if errors.Is(err, ErrAccountLocked) || errors.Is(err, ErrAccountSuspended) {
			e.metricInc(MetricLoginAccountBlocked)
			e.recordActivity(ctx, userID, activity.ActionLoginFailed, false, map[string]string{
				"reason": string(profile.AccountStatus),
			})
			e.emitAudit(ctx, auditEventLoginBlocked, false, userID, "", err, nil)
			return nil, err
		}
		return nil, err
	}

	ua := userAgentFromContext(ctx)
	info := device.Parse(ua)
	ip := clientIPFromContext(ctx)

	result = &LoginResult{Profile: profile}
	sess, err := e.sessions.Create(ctx, userID, req.RememberMe, info, ip)
	if err != nil {
		e.metricInc(MetricBestEffortFailure)
		e.metricInc(MetricLoginSessionDegraded)
		e.logger.Warn().Err(err).Str("op", "create_session").Str("user_id", userID).Msg("session store failed, using local session")
		e.emitAudit(ctx, auditEventSessionDegraded, false, userID, "", storeErr(err), nil)
		sess = e.localSession(userID, req.RememberMe, info, ip)
		result.SessionDegraded = true
	} else {
		e.metricInc(MetricSessionCreated)
	}
	result.Session = sess

	if e.jwtManager != nil && !result.SessionDegraded {
		token, exp, err := e.jwtManager.CreateAccess(userID, sess.SessionID, profile.MFAEnabled, sess.ExpiresAt)
		if err != nil {
			return nil, err
		}
		result.AccessToken = token
		result.AccessTokenExpiresAt = exp
	}

	e.recordAttempt(ctx, ActionLogin, email, true, rule)
	e.recordActivity(ctx, userID, activity.ActionLogin, true, map[string]string{
		"browser": info.Browser,
		"os":      info.OS,
		"device":  info.Device,
	})

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userID, sess.SessionID, nil, func() map[string]string {
		return map[string]string{
			"remember_me": fmt.Sprint(req.RememberMe),
			"degraded":    fmt.Sprint(result.SessionDegraded),
		}
	})
	return result, nil
}

// loginFailed records a rejected credential check. The activity entry is
// keyed by the user ID when the email belongs to a known account and by
// the email otherwise.
func (e *Engine) loginFailed(ctx context.Context, email string) {
	e.recordAttempt(ctx, ActionLogin, email, false, e.config.RateLimit.Login)
	e.metricInc(MetricLoginFailure)

	subject := email
	if acc, err := e.identity.FindByEmail(ctx, email); err == nil && acc.UserID != "" {
		subject = acc.UserID
		e.bestEffort(ctx, "count_login_attempt", func(ctx context.Context) error {
			_, err := e.profiles.Update(ctx, acc.UserID, func(p *UserProfile) error {
				p.LoginAttempts++
				return nil
			})
			if errors.Is(err, ErrProfileNotFound) {
				return nil
			}
			return err
		})
	}
	e.recordActivity(ctx, subject, activity.ActionLoginFailed, false, map[string]string{
		"reason": "invalid_credentials",
	})
	e.emitAudit(ctx, auditEventLoginFailure, false, "", "", ErrAuthenticationFailed, nil)
}

// profileForLogin returns the profile of a verified user. A missing
// profile is created from the provider account; creating it is
// best-effort. On a locked or suspended profile the profile is returned
// alongside the error.
func (e *Engine) profileForLogin(ctx context.Context, userID, email string) (*UserProfile, error) {
	p, err := e.profiles.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrProfileNotFound) {
		return nil, storeErr(err)
	}

	now := e.now()
	if p == nil {
		p = &UserProfile{
			UserID:               userID,
			Email:                email,
			MFAMethods:           []string{},
			AccountStatus:        AccountActive,
			CreatedAt:            now,
			LastLoginAt:          now,
			LastPasswordChangeAt: now,
		}
		if acc, err := e.identity.LookupAccount(ctx, userID); err == nil {
			p.EmailVerified = acc.EmailVerified
			p.PhoneNumber = acc.PhoneNumber
		}
		e.bestEffort(ctx, "create_profile", func(ctx context.Context) error {
			err := e.profiles.Create(ctx, p)
			if errors.Is(err, ErrProfileExists) {
				return nil
			}
			return err
		})
		return p, nil
	}

	switch p.AccountStatus {
	case AccountLocked:
		return p, ErrAccountLocked
	case AccountSuspended:
		return p, ErrAccountSuspended
	}

	p.LoginAttempts = 0
	p.LastLoginAt = now
	e.bestEffort(ctx, "touch_profile", func(ctx context.Context) error {
		_, err := e.profiles.Update(ctx, userID, func(cur *UserProfile) error {
			cur.LoginAttempts = 0
			cur.LastLoginAt = now
			return nil
		})
		return err
	})
	return p, nil
}

// localSession builds the stand-in session returned when the session store
// is down. It is never persisted, so it does not validate.
func (e *Engine) localSession(userID string, rememberMe bool, info device.Info, ip string) *session.Session {
	now := e.now()
	ttl := e.config.Session.DefaultTTL
	if rememberMe {
		ttl = e.config.Session.RememberMeTTL
	}
	return &session.Session{
		SessionID:      "session-" + uuid.NewString(),
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		DeviceInfo:     info,
		IPAddress:      ip,
		IsActive:       true,
	}
}

// Logout revokes sessionID of userID and records the logout. An empty
// sessionID only records the activity.
func (e *Engine) Logout(ctx context.Context, userID, sessionID string) error {
	if userID == "" {
		return ErrUserNotFound
	}
	if sessionID != "" {
		if err := e.sessions.Revoke(ctx, userID, sessionID); err != nil {
			err = storeErr(err)
			e.emitAudit(ctx, auditEventLogoutSession, false, userID, sessionID, err, nil)
			return err
		}
		e.metricInc(MetricSessionRevoked)
	}

	e.recordActivity(ctx, userID, activity.ActionLogout, true, nil)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, sessionID, nil, nil)
	return nil
}
