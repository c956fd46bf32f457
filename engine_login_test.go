package goGuard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/identity/memory"
)

func TestSignupRejectsWeakPasswordBeforeProvider(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	_, err := env.engine.Signup(context.Background(), SignupRequest{Email: "weak@example.com", Password: "aaaaaaaa"})
	mustErrIs(t, err, ErrPasswordPolicy)

	var pe *PolicyError
	if !errors.As(err, &pe) || len(pe.Feedback) == 0 {
		t.Fatalf("expected policy feedback, got %v", err)
	}
	if _, err := env.idp.FindByEmail(context.Background(), "weak@example.com"); !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("expected no provider account, got %v", err)
	}
}

func TestSignupCreatesProfileAndSendsVerification(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	p := env.signup(t, " Alice@Example.com ")
	if p.Email != "alice@example.com" || p.AccountStatus != AccountActive {
		t.Fatalf("unexpected profile %+v", p)
	}
	if len(p.PasswordHistory) != 1 || strings.Contains(p.PasswordHistory[0], testPassword) {
		t.Fatalf("expected one hashed history entry, got %v", p.PasswordHistory)
	}
	if _, ok := env.idp.LastMessage(memory.KindEmailVerification, "alice@example.com"); !ok {
		t.Fatal("expected verification email")
	}

	entries, err := env.engine.UserActivity(context.Background(), p.UserID, 0)
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != activity.ActionSignup {
		t.Fatalf("expected signup entry, got %+v", entries)
	}

	_, err = env.engine.Signup(context.Background(), SignupRequest{Email: "alice@example.com", Password: testPassword})
	mustErrIs(t, err, ErrAccountExists)
}

func TestLoginCreatesValidSession(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "bob@example.com")

	ctx := WithUserAgent(WithClientIP(context.Background(), "198.51.100.7"),
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	res, err := env.engine.Login(ctx, LoginRequest{Email: "bob@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.SessionDegraded || res.Session.UserID != p.UserID || res.Session.IPAddress != "198.51.100.7" {
		t.Fatalf("unexpected result %+v", res.Session)
	}
	if res.Session.DeviceInfo.Browser != "Chrome" {
		t.Fatalf("expected parsed device info, got %+v", res.Session.DeviceInfo)
	}
	if got := res.Session.ExpiresAt.Sub(res.Session.CreatedAt); got != 24*time.Hour {
		t.Fatalf("expected 24h session, got %v", got)
	}

	env.clock.Advance(time.Minute)
	sess := env.engine.ValidateSession(context.Background(), res.Session.SessionID)
	if sess == nil || !sess.LastActivityAt.Equal(env.clock.Now()) {
		t.Fatalf("expected touched session, got %+v", sess)
	}

	stored, err := env.engine.GetProfile(context.Background(), p.UserID)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if stored.LastLoginAt.IsZero() {
		t.Fatal("expected last login to be recorded")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestLoginRememberMeUsesLongTTL(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	env.signup(t, "long@example.com")

	res, err := env.engine.Login(context.Background(), LoginRequest{
		Email: "long@example.com", Password: testPassword, RememberMe: true,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got := res.Session.ExpiresAt.Sub(res.Session.CreatedAt); got != 7*24*time.Hour {
		t.Fatalf("expected 7d session, got %v", got)
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	env.signup(t, "carol@example.com")

	_, wrongPassword := env.engine.Login(context.Background(), LoginRequest{Email: "carol@example.com", Password: "Nope-nope-1!"})
	_, unknownEmail := env.engine.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: testPassword})

	mustErrIs(t, wrongPassword, ErrAuthenticationFailed)
	mustErrIs(t, unknownEmail, ErrAuthenticationFailed)
	if wrongPassword.Error() != unknownEmail.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPassword, unknownEmail)
	}
}

func TestLoginLocksOutAfterMaxFailures(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	env.signup(t, "dave@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.engine.Login(ctx, LoginRequest{Email: "dave@example.com", Password: "Wrong-pass-1!"})
		mustErrIs(t, err, ErrAuthenticationFailed)
	}

	_, err := env.engine.Login(ctx, LoginRequest{Email: "dave@example.com", Password: testPassword})
	mustErrIs(t, err, ErrRateLimited)
	var rl *RateLimitError
	if !errors.As(err, &rl) || rl.ResetIn != 30*time.Minute || rl.Action != ActionLogin {
		t.Fatalf("unexpected rate limit error %#v", err)
	}

	env.clock.Advance(30*time.Minute + time.Second)
	env.login(t, "dave@example.com", testPassword)
}

func TestLoginConcurrentFailuresAllCounted(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Login = LimitRule{MaxAttempts: 1000, Window: 15 * time.Minute, Lockout: 30 * time.Minute}
	env, done := newTestEnv(t, cfg)
	defer done()
	env.signup(t, "burst@example.com")

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Login(context.Background(), LoginRequest{Email: "burst@example.com", Password: "Wrong-pass-1!"})
			if !errors.Is(err, ErrAuthenticationFailed) {
				t.Errorf("expected ErrAuthenticationFailed, got %v", err)
			}
		}()
	}
	wg.Wait()

	if s := env.loginLimit(t, "burst@example.com"); s.Remaining != 1000-n {
		t.Fatalf("expected %d remaining, got %+v", 1000-n, s)
	}
}

func TestLoginSuccessClearsFailures(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "erin@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, LoginRequest{Email: "erin@example.com", Password: "Wrong-pass-1!"})
	}
	if s := env.loginLimit(t, "erin@example.com"); s.Remaining != 2 {
		t.Fatalf("expected 2 remaining, got %+v", s)
	}
	stored, _ := env.engine.GetProfile(ctx, p.UserID)
	if stored.LoginAttempts != 3 {
		t.Fatalf("expected 3 counted attempts, got %d", stored.LoginAttempts)
	}

	env.login(t, "erin@example.com", testPassword)
	if s := env.loginLimit(t, "erin@example.com"); !s.Allowed || s.Remaining != 5 {
		t.Fatalf("expected cleared limiter, got %+v", s)
	}
	stored, _ = env.engine.GetProfile(ctx, p.UserID)
	if stored.LoginAttempts != 0 {
		t.Fatalf("expected attempts reset, got %d", stored.LoginAttempts)
	}

	failed, err := env.engine.FailedLoginsSince(ctx, p.UserID, env.clock.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("failed logins: %v", err)
	}
	if len(failed) != 3 {
		t.Fatalf("expected 3 failed login entries, got %d", len(failed))
	}
}

func TestLoginProviderOutageDoesNotCountAttempt(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	env.signup(t, "frank@example.com")

	env.idp.FailNext(identity.ErrUnavailable)
	_, err := env.engine.Login(context.Background(), LoginRequest{Email: "frank@example.com", Password: testPassword})
	mustErrIs(t, err, ErrProviderUnavailable)
	if errors.Is(err, ErrAuthenticationFailed) {
		t.Fatal("outage must not look like bad credentials")
	}
	if s := env.loginLimit(t, "frank@example.com"); s.Remaining != 5 {
		t.Fatalf("expected no counted attempt, got %+v", s)
	}
}

func TestLoginCreatesMissingProfile(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	uid, err := env.idp.CreateAccount(context.Background(), "legacy@example.com", testPassword)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	res := env.login(t, "legacy@example.com", testPassword)
	if res.Profile.UserID != uid || res.Profile.AccountStatus != AccountActive {
		t.Fatalf("unexpected profile %+v", res.Profile)
	}
	if _, err := env.engine.GetProfile(context.Background(), uid); err != nil {
		t.Fatalf("expected profile to be persisted: %v", err)
	}
}

func TestLoginRejectsLockedAndSuspendedAccounts(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "gina@example.com")
	ctx := context.Background()

	first := env.login(t, "gina@example.com", testPassword)

	for _, tc := range []struct {
		status AccountStatus
		want   error
	}{
		{AccountLocked, ErrAccountLocked},
		{AccountSuspended, ErrAccountSuspended},
	} {
		if _, err := env.engine.SetAccountStatus(ctx, p.UserID, tc.status); err != nil {
			t.Fatalf("set %s: %v", tc.status, err)
		}
		_, err := env.engine.Login(ctx, LoginRequest{Email: "gina@example.com", Password: testPassword})
		mustErrIs(t, err, tc.want)
	}
	if env.engine.ValidateSession(ctx, first.Session.SessionID) != nil {
		t.Fatal("expected sessions revoked on lock")
	}

	if _, err := env.engine.SetAccountStatus(ctx, p.UserID, AccountActive); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	env.login(t, "gina@example.com", testPassword)

	_, err := env.engine.SetAccountStatus(ctx, p.UserID, AccountStatus("deleted"))
	mustErrIs(t, err, ErrInvalidStatus)
}

func TestLoginDegradesWhenSessionStoreDown(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Backend = "memory"
	cfg.Activity.Backend = "none"
	cfg.OTP.Provider = OTPProviderDelegated
	env, done := newTestEnv(t, cfg, withProfiles(newMemProfiles()))
	defer done()
	env.signup(t, "hank@example.com")

	env.mr.Close()

	res, err := env.engine.Login(context.Background(), LoginRequest{Email: "hank@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("login must survive session store outage: %v", err)
	}
	if !res.SessionDegraded || !strings.HasPrefix(res.Session.SessionID, "session-") {
		t.Fatalf("expected synthesized session, got %+v", res.Session)
	}
	if res.AccessToken != "" {
		t.Fatal("degraded session must not carry an access token")
	}
	if env.engine.ValidateSession(context.Background(), res.Session.SessionID) != nil {
		t.Fatal("validation against a down store must fail")
	}
	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricLoginSessionDegraded] != 1 || snap.Counters[MetricBestEffortFailure] == 0 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}

	// Same clock instant: stand-in IDs must still differ.
	again, err := env.engine.Login(context.Background(), LoginRequest{Email: "hank@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("second degraded login: %v", err)
	}
	if again.Session.SessionID == res.Session.SessionID {
		t.Fatalf("degraded logins share session id %s", res.Session.SessionID)
	}
}

func TestLoginFailsClosedWhenLimiterDown(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	env.signup(t, "ivy@example.com")

	env.mr.Close()
	_, err := env.engine.Login(context.Background(), LoginRequest{Email: "ivy@example.com", Password: testPassword})
	mustErrIs(t, err, ErrStoreUnavailable)
}

func TestLogoutRevokesSession(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	p := env.signup(t, "jane@example.com")
	res := env.login(t, "jane@example.com", testPassword)
	ctx := context.Background()

	if err := env.engine.Logout(ctx, p.UserID, res.Session.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if env.engine.ValidateSession(ctx, res.Session.SessionID) != nil {
		t.Fatal("expected revoked session")
	}
	if err := env.engine.Logout(ctx, p.UserID, res.Session.SessionID); err != nil {
		t.Fatalf("second logout must be idempotent: %v", err)
	}

	entries, err := env.engine.UserActivityByAction(ctx, p.UserID, activity.ActionLogout, 0)
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected 2 logout entries, got %d (%v)", len(entries), err)
	}
}
