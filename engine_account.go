package goGuard

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/identity"
	"go.opentelemetry.io/otel/attribute"
)

// Signup creates an account at the identity provider and its profile.
//
// The password is checked against the configured policy before the
// provider is called, so a rejected password never creates an account.
// The verification email is best-effort. Signup does not log the user in.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (profile *UserProfile, err error) {
	ctx, span := e.startSpan(ctx, "Signup")
	defer func() { endSpan(span, err) }()

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		e.metricInc(MetricSignupFailure)
		return nil, ErrInvalidEmail
	}
	if err := e.validatePassword(req.Password); err != nil {
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, auditEventSignup, false, "", "", err, func() map[string]string {
			return map[string]string{"reason": "password_policy"}
		})
		return nil, err
	}

	userID, err := e.identity.CreateAccount(ctx, email, req.Password)
	if err != nil {
		e.metricInc(MetricSignupFailure)
		if errors.Is(err, identity.ErrAccountExists) {
			err = ErrAccountExists
		} else {
			err = providerErr(err)
		}
		e.emitAudit(ctx, auditEventSignup, false, "", "", err, nil)
		return nil, err
	}
	span.SetAttributes(attribute.String("goguard.user_id", userID))

	e.bestEffort(ctx, "send_email_verification", func(ctx context.Context) error {
		return e.identity.SendEmailVerification(ctx, userID)
	})

	now := e.now()
	profile = &UserProfile{
		UserID:               userID,
		Email:                email,
		DisplayName:          strings.TrimSpace(req.DisplayName),
		MFAMethods:           []string{},
		AccountStatus:        AccountActive,
		CreatedAt:            now,
		LastPasswordChangeAt: now,
	}
	hash, err := e.historyHash(req.Password)
	if err != nil {
		e.metricInc(MetricSignupFailure)
		return nil, err
	}
	e.appendHistory(profile, hash)
	if err := e.profiles.Create(ctx, profile); err != nil {
		e.metricInc(MetricSignupFailure)
		if errors.Is(err, ErrProfileExists) {
			return nil, ErrAccountExists
		}
		return nil, storeErr(err)
	}

	e.recordActivity(ctx, userID, activity.ActionSignup, true, nil)
	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignup, true, userID, "", nil, nil)
	return profile, nil
}

// GetProfile returns the stored profile of userID.
func (e *Engine) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	return e.loadProfile(ctx, userID)
}

// UpdateProfile applies the user-editable fields of upd.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*UserProfile, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	return e.updateProfile(ctx, userID, func(p *UserProfile) error {
		if upd.DisplayName != nil {
			p.DisplayName = strings.TrimSpace(*upd.DisplayName)
		}
		if upd.PhotoURL != nil {
			p.PhotoURL = strings.TrimSpace(*upd.PhotoURL)
		}
		return nil
	})
}
