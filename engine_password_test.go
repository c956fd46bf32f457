package goGuard

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goGuard/activity"
)

const newTestPassword = "Brand-New-Pass7?"

func TestChangePasswordValidation(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "rita@example.com")
	ctx := context.Background()

	tests := []struct {
		name    string
		current string
		next    string
		want    error
	}{
		{"weak new password", testPassword, "short", ErrPasswordPolicy},
		{"reused password", testPassword, testPassword, ErrPasswordReuse},
		{"wrong current password", "Wrong-pass-1!", newTestPassword, ErrAuthenticationFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := env.engine.ChangePassword(ctx, ChangePasswordRequest{
				UserID:          p.UserID,
				CurrentPassword: tc.current,
				NewPassword:     tc.next,
			})
			mustErrIs(t, err, tc.want)
		})
	}

	err := env.engine.ChangePassword(ctx, ChangePasswordRequest{UserID: "nobody", CurrentPassword: testPassword, NewPassword: newTestPassword})
	mustErrIs(t, err, ErrUserNotFound)
}

func TestChangePasswordRevokesOtherSessions(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "sam@example.com")
	ctx := context.Background()

	current := env.login(t, "sam@example.com", testPassword)
	other := env.login(t, "sam@example.com", testPassword)

	err := env.engine.ChangePassword(ctx, ChangePasswordRequest{
		UserID:           p.UserID,
		CurrentPassword:  testPassword,
		NewPassword:      newTestPassword,
		CurrentSessionID: current.Session.SessionID,
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}

	if env.engine.ValidateSession(ctx, current.Session.SessionID) == nil {
		t.Fatal("current session must survive")
	}
	if env.engine.ValidateSession(ctx, other.Session.SessionID) != nil {
		t.Fatal("other sessions must be revoked")
	}

	_, err = env.engine.Login(ctx, LoginRequest{Email: "sam@example.com", Password: testPassword})
	mustErrIs(t, err, ErrAuthenticationFailed)
	env.login(t, "sam@example.com", newTestPassword)

	stored, _ := env.engine.GetProfile(ctx, p.UserID)
	if len(stored.PasswordHistory) != 2 || stored.LastPasswordChangeAt.IsZero() {
		t.Fatalf("expected history of 2, got %d", len(stored.PasswordHistory))
	}

	// The original password is still inside the reuse window.
	err = env.engine.ChangePassword(ctx, ChangePasswordRequest{
		UserID:          p.UserID,
		CurrentPassword: newTestPassword,
		NewPassword:     testPassword,
	})
	mustErrIs(t, err, ErrPasswordReuse)

	events, err := env.engine.SecurityActivity(ctx, p.UserID, 0)
	if err != nil {
		t.Fatalf("security activity: %v", err)
	}
	var changes int
	for _, e := range events {
		if e.Action == activity.ActionPasswordChange && e.Success {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("expected one successful change entry, got %d", changes)
	}
}

func TestChangePasswordKeepsSessionsWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RevokeSessionsOnPasswordChange = false
	env, done := newTestEnv(t, cfg)
	defer done()
	p := env.signup(t, "tess@example.com")
	other := env.login(t, "tess@example.com", testPassword)

	err := env.engine.ChangePassword(context.Background(), ChangePasswordRequest{
		UserID: p.UserID, CurrentPassword: testPassword, NewPassword: newTestPassword,
	})
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if env.engine.ValidateSession(context.Background(), other.Session.SessionID) == nil {
		t.Fatal("sessions must survive when revocation is disabled")
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "uma@example.com")
	old := env.login(t, "uma@example.com", testPassword)
	ctx := context.Background()

	id, err := env.engine.RequestPasswordReset(ctx, "UMA@example.com")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	code := env.codes.lastCode(t, "uma@example.com")

	bad := "000000"
	if bad == code {
		bad = "111111"
	}
	err = env.engine.CompletePasswordReset(ctx, CompletePasswordResetRequest{
		Email: "uma@example.com", VerificationID: id, Code: bad, NewPassword: newTestPassword,
	})
	mustErrIs(t, err, ErrOTPInvalid)

	err = env.engine.CompletePasswordReset(ctx, CompletePasswordResetRequest{
		Email: "other@example.com", VerificationID: id, Code: code, NewPassword: newTestPassword,
	})
	mustErrIs(t, err, ErrOTPInvalid)

	// A foreign-address attempt consumed the code; issue a fresh one.
	id, err = env.engine.RequestPasswordReset(ctx, "uma@example.com")
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	code = env.codes.lastCode(t, "uma@example.com")
	err = env.engine.CompletePasswordReset(ctx, CompletePasswordResetRequest{
		Email: "uma@example.com", VerificationID: id, Code: code, NewPassword: newTestPassword,
	})
	if err != nil {
		t.Fatalf("complete reset: %v", err)
	}

	env.login(t, "uma@example.com", newTestPassword)
	if env.engine.ValidateSession(ctx, old.Session.SessionID) != nil {
		t.Fatal("reset must revoke existing sessions")
	}
	entries, _ := env.engine.UserActivityByAction(ctx, p.UserID, activity.ActionPasswordResetComplete, 0)
	if len(entries) != 1 {
		t.Fatalf("expected reset completion entry, got %d", len(entries))
	}
}

func TestPasswordResetIsRateLimited(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.RequestPasswordReset(ctx, "victim@example.com"); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	_, err := env.engine.RequestPasswordReset(ctx, "victim@example.com")
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.Action != ActionPasswordReset {
		t.Fatalf("expected password reset limit, got %v", err)
	}

	if err := env.engine.ResetRateLimit(ctx, "victim@example.com"); err != nil {
		t.Fatalf("reset limit: %v", err)
	}
	if _, err := env.engine.RequestPasswordReset(ctx, "victim@example.com"); err != nil {
		t.Fatalf("expected request after reset: %v", err)
	}

	entries, _ := env.engine.UserActivityByAction(ctx, "victim@example.com", activity.ActionPasswordResetRequest, 0)
	if len(entries) != 4 {
		t.Fatalf("expected reset requests keyed by email, got %d", len(entries))
	}
}

func TestPasswordResetDelegated(t *testing.T) {
	cfg := testConfig()
	cfg.OTP.Provider = OTPProviderDelegated
	env, done := newTestEnv(t, cfg)
	defer done()
	env.signup(t, "vic@example.com")
	ctx := context.Background()

	id, err := env.engine.RequestPasswordReset(ctx, "vic@example.com")
	if err != nil || id != "" {
		t.Fatalf("expected delegated reset mail, got id=%q err=%v", id, err)
	}
	err = env.engine.CompletePasswordReset(ctx, CompletePasswordResetRequest{Email: "vic@example.com"})
	mustErrIs(t, err, ErrResetUnsupported)
}
