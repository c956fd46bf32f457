package goGuard

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/activity"
)

func TestUpdateProfileAppliesOnlySetFields(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "zoe@example.com")
	ctx := context.Background()

	name := "  Zoe Q  "
	got, err := env.engine.UpdateProfile(ctx, p.UserID, ProfileUpdate{DisplayName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayName != "Zoe Q" || got.Email != "zoe@example.com" {
		t.Fatalf("unexpected profile %+v", got)
	}

	photo := "https://example.com/z.png"
	got, err = env.engine.UpdateProfile(ctx, p.UserID, ProfileUpdate{PhotoURL: &photo})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DisplayName != "Zoe Q" || got.PhotoURL != photo {
		t.Fatalf("unexpected profile %+v", got)
	}

	_, err = env.engine.UpdateProfile(ctx, "missing", ProfileUpdate{DisplayName: &name})
	mustErrIs(t, err, ErrUserNotFound)
	_, err = env.engine.GetProfile(ctx, "missing")
	mustErrIs(t, err, ErrUserNotFound)
}

func TestResendEmailVerification(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "abe@example.com")
	ctx := context.Background()

	if err := env.engine.ResendEmailVerification(ctx, p.UserID); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if err := env.idp.MarkEmailVerified(p.UserID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	mustErrIs(t, env.engine.ResendEmailVerification(ctx, p.UserID), ErrEmailAlreadyVerified)

	stored, _ := env.engine.GetProfile(ctx, p.UserID)
	if !stored.EmailVerified {
		t.Fatal("expected profile flag synced from provider")
	}
	mustErrIs(t, env.engine.ResendEmailVerification(ctx, "missing"), ErrUserNotFound)
}

func TestAccountStatusActivity(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "bea@example.com")
	ctx := context.Background()

	if _, err := env.engine.SetAccountStatus(ctx, p.UserID, AccountLocked); err != nil {
		t.Fatalf("lock: %v", err)
	}
	env.clock.Advance(time.Second)
	if _, err := env.engine.SetAccountStatus(ctx, p.UserID, AccountActive); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	events, err := env.engine.SecurityActivity(ctx, p.UserID, 10)
	if err != nil {
		t.Fatalf("security activity: %v", err)
	}
	if len(events) != 2 || events[0].Action != activity.ActionAccountUnlocked || events[1].Action != activity.ActionAccountLocked {
		t.Fatalf("unexpected events %+v", events)
	}

	_, err = env.engine.SetAccountStatus(ctx, "missing", AccountLocked)
	mustErrIs(t, err, ErrUserNotFound)
}

func TestHealthAndSecurityReport(t *testing.T) {
	env, done := newTestEnv(t, jwtTestConfig())
	defer done()

	if h := env.engine.Health(context.Background()); !h.RedisAvailable {
		t.Fatalf("expected healthy redis, got %+v", h)
	}
	r := env.engine.SecurityReport()
	if !r.JWTEnabled || r.SigningAlgorithm != "hs256" || !r.HashedReuseHistory || r.LoginLimit.MaxAttempts != 5 {
		t.Fatalf("unexpected report %+v", r)
	}

	env.mr.Close()
	if h := env.engine.Health(context.Background()); h.RedisAvailable {
		t.Fatal("expected unhealthy redis")
	}
}
