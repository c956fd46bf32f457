package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/session"
)

// ValidateSession returns the session when it is active and unexpired,
// touching its last activity. It returns nil otherwise, including when the
// store fails or the deadline passes: a validation that cannot complete
// never counts as success.
//
// An expired session is revoked as a side effect.
func (e *Engine) ValidateSession(ctx context.Context, sessionID string) *session.Session {
	if sessionID == "" {
		e.metricInc(MetricSessionRejected)
		return nil
	}

	start := time.Now()
	if timeout := e.config.Session.ValidateTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := e.startSpan(ctx, "ValidateSession")
	sess, err := e.sessions.ValidateAndReconcile(ctx, sessionID)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	endSpan(span, err)

	if e.metrics != nil {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricSessionRejected)
		e.logger.Warn().Err(err).Str("session", shortID(sessionID)).Msg("session validation failed")
		return nil
	}
	if sess == nil {
		e.metricInc(MetricSessionRejected)
		return nil
	}
	e.metricInc(MetricSessionValidated)
	return sess
}

// ValidateAccessToken verifies a bearer token issued by Login and checks
// that the session it is bound to is still valid. Revoking the session
// invalidates the token immediately.
func (e *Engine) ValidateAccessToken(ctx context.Context, token string) (*AuthResult, error) {
	if e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(token)
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	sess := e.ValidateSession(ctx, claims.SID)
	if sess == nil || sess.UserID != claims.UID {
		return nil, ErrInvalidSession
	}
	return &AuthResult{
		UserID:    claims.UID,
		SessionID: claims.SID,
		MFA:       claims.MFA,
		Session:   sess,
	}, nil
}

// ListSessions returns userID's valid sessions, most recently active first.
// Expired sessions found on the way are revoked.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	sessions, err := e.sessions.ListActive(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return sessions, nil
}

// ownedSession returns sessionID when it belongs to userID, and
// [ErrSessionNotFound] otherwise.
func (e *Engine) ownedSession(ctx context.Context, userID, sessionID string) (*session.Session, error) {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, storeErr(err)
	}
	if sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// RevokeSession revokes one session of userID, typically from a "signed in
// devices" list. Revoking an already revoked session succeeds; a session
// that does not exist or belongs to another user returns
// [ErrSessionNotFound].
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	sess, err := e.ownedSession(ctx, userID, sessionID)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, sessionID, err, nil)
		return err
	}
	if err := e.sessions.Revoke(ctx, userID, sessionID); err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventSessionRevoked, false, userID, sessionID, err, nil)
		return err
	}

	e.metricInc(MetricSessionRevoked)
	e.recordActivity(ctx, userID, activity.ActionSessionRevoked, true, map[string]string{
		"session": shortID(sessionID),
		"device":  sess.DeviceInfo.String(),
	})
	e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sessionID, nil, nil)
	return nil
}

// RevokeAllSessions revokes every session of userID except
// exceptSessionID, which may be empty. Revocations are independent: on a
// partial failure the revoked sessions stay revoked and the joined error is
// returned with the count.
func (e *Engine) RevokeAllSessions(ctx context.Context, userID, exceptSessionID string) (int, error) {
	if userID == "" {
		return 0, ErrUserNotFound
	}
	n, err := e.sessions.RevokeAll(ctx, userID, exceptSessionID)
	if n > 0 && e.metrics != nil {
		e.metrics.Add(MetricSessionRevoked, uint64(n))
	}
	if err != nil {
		err = storeErr(err)
		e.emitAudit(ctx, auditEventLogoutAll, false, userID, exceptSessionID, err, nil)
		return n, err
	}

	e.metricInc(MetricLogoutAll)
	e.recordActivity(ctx, userID, activity.ActionSessionRevoked, true, map[string]string{
		"count": strconv.Itoa(n),
		"scope": "all",
	})
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, exceptSessionID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(n)}
	})
	return n, nil
}

// ExtendSession pushes the expiry of one of userID's sessions out by
// additional, or by the configured default extension when additional is
// not positive. It returns the new expiry.
func (e *Engine) ExtendSession(ctx context.Context, userID, sessionID string, additional time.Duration) (time.Time, error) {
	if additional <= 0 {
		additional = e.config.Session.DefaultExtension
	}
	if _, err := e.ownedSession(ctx, userID, sessionID); err != nil {
		return time.Time{}, err
	}

	expiresAt, err := e.sessions.Extend(ctx, sessionID, additional)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return time.Time{}, ErrSessionNotFound
		}
		return time.Time{}, storeErr(err)
	}
	e.emitAudit(ctx, auditEventSessionExtended, true, userID, sessionID, nil, func() map[string]string {
		return map[string]string{"expires_at": expiresAt.UTC().Format(time.RFC3339)}
	})
	return expiresAt, nil
}
