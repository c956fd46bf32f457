package goGuard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/identity/memory"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "Correct-Horse9!"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureSender struct {
	mu   sync.Mutex
	sent []otp.Message
}

func (c *captureSender) Send(_ context.Context, msg otp.Message) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) lastCode(t *testing.T, to string) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].To == to {
			return c.sent[i].Code
		}
	}
	t.Fatalf("no code sent to %s", to)
	return ""
}

// memProfiles is a ProfileStore that keeps working when Redis is down.
type memProfiles struct {
	mu       sync.Mutex
	profiles map[string]UserProfile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{profiles: make(map[string]UserProfile)}
}

func (m *memProfiles) Get(_ context.Context, userID string) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (m *memProfiles) Create(_ context.Context, p *UserProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.UserID]; ok {
		return ErrProfileExists
	}
	m.profiles[p.UserID] = *p
	return nil
}

func (m *memProfiles) Update(_ context.Context, userID string, fn func(*UserProfile) error) (*UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	if err := fn(&p); err != nil {
		return nil, err
	}
	m.profiles[userID] = p
	return &p, nil
}

type testEnv struct {
	engine *Engine
	mr     *miniredis.Miniredis
	idp    *memory.Provider
	clock  *testClock
	codes  *captureSender
}

func fastHashConfig() password.Config {
	return password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.OTP.Provider = OTPProviderLocal
	cfg.Metrics.Enabled = true
	return cfg
}

type envOption func(*Builder)

func withProfiles(p ProfileStore) envOption {
	return func(b *Builder) { b.WithProfileStore(p) }
}

func withAudit(sink AuditSink) envOption {
	return func(b *Builder) { b.WithAuditSink(sink) }
}

func newTestEnv(t testing.TB, cfg Config, opts ...envOption) (*testEnv, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	idp, err := memory.New(fastHashConfig())
	if err != nil {
		t.Fatalf("identity provider: %v", err)
	}

	// Redis TTLs are absolute wall-clock times, so the fake clock starts now.
	clock := &testClock{now: time.Now().Truncate(time.Millisecond)}
	codes := &captureSender{}

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityProvider(idp).
		WithPhoneVerifier(idp).
		WithOTPSenders(codes, codes).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		rdb.Close()
		mr.Close()
		t.Fatalf("build: %v", err)
	}

	env := &testEnv{engine: engine, mr: mr, idp: idp, clock: clock, codes: codes}
	return env, func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	}
}

func (env *testEnv) signup(t testing.TB, email string) *UserProfile {
	t.Helper()
	p, err := env.engine.Signup(context.Background(), SignupRequest{
		Email:       email,
		Password:    testPassword,
		DisplayName: "Test User",
	})
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return p
}

func (env *testEnv) login(t testing.TB, email, pw string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), LoginRequest{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return res
}

func (env *testEnv) loginLimit(t *testing.T, email string) RateLimitState {
	t.Helper()
	states, err := env.engine.RateLimitStatus(context.Background(), email)
	if err != nil {
		t.Fatalf("rate limit status: %v", err)
	}
	for _, s := range states {
		if s.Action == ActionLogin {
			return s
		}
	}
	t.Fatal("login state missing")
	return RateLimitState{}
}

func mustErrIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
