package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory struct {
	name string
	make func(t *testing.T) (Store, func())
}

func stores() []storeFactory {
	return []storeFactory{
		{name: "memory", make: func(t *testing.T) (Store, func()) {
			return NewMemoryStore(), func() {}
		}},
		{name: "redis", make: func(t *testing.T) (Store, func()) {
			t.Helper()
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis start: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisStore(rdb), func() {
				rdb.Close()
				mr.Close()
			}
		}},
	}
}

// miniredis evaluates PEXPIREAT against wall time, so the fake clock starts
// at the real current time.
func newLimiterTest(t *testing.T, store Store) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Now().Truncate(time.Millisecond)}
	return New(store, "rl").WithClock(clock.Now), clock
}

func TestLimiterLocksAfterMaxFailures(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, _ := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := DefaultConfig()

			for i := 0; i < cfg.MaxAttempts; i++ {
				res, err := l.Check(ctx, "a@x.io", "login", cfg)
				if err != nil {
					t.Fatalf("check %d: %v", i, err)
				}
				if !res.Allowed || res.Remaining != cfg.MaxAttempts-i {
					t.Fatalf("check %d: unexpected result %+v", i, res)
				}
				if err := l.Record(ctx, "a@x.io", false, "login", cfg); err != nil {
					t.Fatalf("record %d: %v", i, err)
				}
			}

			res, err := l.Check(ctx, "a@x.io", "login", cfg)
			if err != nil {
				t.Fatalf("check after limit: %v", err)
			}
			if res.Allowed || res.Remaining != 0 || res.ResetIn != cfg.LockoutDuration {
				t.Fatalf("expected lockout, got %+v", res)
			}
		})
	}
}

func TestLimiterLockoutCountsDown(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, clock := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := Config{MaxAttempts: 2, Window: time.Minute, LockoutDuration: 10 * time.Minute}

			_ = l.Record(ctx, "u", false, "sms", cfg)
			_ = l.Record(ctx, "u", false, "sms", cfg)
			if res, _ := l.Check(ctx, "u", "sms", cfg); res.Allowed {
				t.Fatalf("expected lockout, got %+v", res)
			}

			clock.Advance(4 * time.Minute)
			res, err := l.Check(ctx, "u", "sms", cfg)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if res.Allowed || res.ResetIn != 6*time.Minute {
				t.Fatalf("expected 6m remaining lockout, got %+v", res)
			}

			clock.Advance(7 * time.Minute)
			res, err = l.Check(ctx, "u", "sms", cfg)
			if err != nil {
				t.Fatalf("check after lockout: %v", err)
			}
			if !res.Allowed || res.Remaining != cfg.MaxAttempts {
				t.Fatalf("expected fresh budget after lockout, got %+v", res)
			}
		})
	}
}

func TestLimiterSuccessResets(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, _ := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := DefaultConfig()

			for i := 0; i < 3; i++ {
				_ = l.Record(ctx, "u", false, "login", cfg)
			}
			if err := l.Record(ctx, "u", true, "login", cfg); err != nil {
				t.Fatalf("record success: %v", err)
			}
			rec, err := store.Get(ctx, l.Key("login", "u"))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if rec != nil {
				t.Fatalf("expected record deleted, got %+v", rec)
			}
		})
	}
}

func TestLimiterWindowExpiryRestartsCount(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, clock := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := DefaultConfig()

			for i := 0; i < 4; i++ {
				_ = l.Record(ctx, "u", false, "login", cfg)
			}
			clock.Advance(cfg.Window + time.Second)

			res, err := l.Check(ctx, "u", "login", cfg)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if !res.Allowed || res.Remaining != cfg.MaxAttempts || res.ResetIn != cfg.Window {
				t.Fatalf("expected fresh window, got %+v", res)
			}

			_ = l.Record(ctx, "u", false, "login", cfg)
			rec, _ := store.Get(ctx, l.Key("login", "u"))
			if rec == nil || rec.Attempts != 1 {
				t.Fatalf("expected restarted count 1, got %+v", rec)
			}
		})
	}
}

func TestLimiterRecordKeepsActiveLockOnRestart(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, clock := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := Config{MaxAttempts: 1, Window: time.Minute, LockoutDuration: time.Hour}

			_ = l.Record(ctx, "u", false, "login", cfg)
			if res, _ := l.Check(ctx, "u", "login", cfg); res.Allowed {
				t.Fatalf("expected lockout, got %+v", res)
			}
			clock.Advance(2 * time.Minute)
			_ = l.Record(ctx, "u", false, "login", cfg)

			rec, _ := store.Get(ctx, l.Key("login", "u"))
			if rec == nil || rec.Attempts != 1 || rec.LockedUntil.IsZero() {
				t.Fatalf("expected restarted window with lock kept, got %+v", rec)
			}
			res, _ := l.Check(ctx, "u", "login", cfg)
			if res.Allowed || res.ResetIn != 58*time.Minute {
				t.Fatalf("expected lockout to survive restart, got %+v", res)
			}
		})
	}
}

func TestLimiterConcurrentFailuresAllCounted(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, _ := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := Config{MaxAttempts: 1000, Window: time.Minute, LockoutDuration: time.Minute}

			const n = 50
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- l.Record(ctx, "u", false, "login", cfg)
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				if err != nil {
					t.Fatalf("record: %v", err)
				}
			}

			rec, err := store.Get(ctx, l.Key("login", "u"))
			if err != nil || rec == nil {
				t.Fatalf("get: %v %v", rec, err)
			}
			if rec.Attempts != n {
				t.Fatalf("expected %d attempts, got %d", n, rec.Attempts)
			}
			res, err := l.Check(ctx, "u", "login", cfg)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if res.Remaining != cfg.MaxAttempts-n {
				t.Fatalf("expected %d remaining, got %+v", cfg.MaxAttempts-n, res)
			}
		})
	}
}

func TestLimiterConcurrentCheckLocksOnce(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, clock := newLimiterTest(t, store)
			ctx := context.Background()
			cfg := Config{MaxAttempts: 2, Window: time.Minute, LockoutDuration: 10 * time.Minute}

			_ = l.Record(ctx, "u", false, "login", cfg)
			_ = l.Record(ctx, "u", false, "login", cfg)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if res, err := l.Check(ctx, "u", "login", cfg); err != nil || res.Allowed {
						t.Errorf("expected lockout, got %+v %v", res, err)
					}
				}()
			}
			wg.Wait()

			rec, _ := store.Get(ctx, l.Key("login", "u"))
			if rec == nil || !rec.LockedUntil.Equal(clock.Now().Add(cfg.LockoutDuration)) {
				t.Fatalf("expected a single lockout from now, got %+v", rec)
			}
		})
	}
}

func TestLimiterPeekDoesNotWrite(t *testing.T) {
	store := NewMemoryStore()
	l, clock := newLimiterTest(t, store)
	ctx := context.Background()
	cfg := Config{MaxAttempts: 2, Window: time.Minute, LockoutDuration: time.Hour}

	_ = l.Record(ctx, "u", false, "reset", cfg)
	_ = l.Record(ctx, "u", false, "reset", cfg)

	res, err := l.Peek(ctx, "u", "reset", cfg)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected peek to report exhausted budget, got %+v", res)
	}
	rec, _ := store.Get(ctx, l.Key("reset", "u"))
	if !rec.LockedUntil.IsZero() {
		t.Fatal("peek must not convert the record into a lockout")
	}

	clock.Advance(2 * time.Minute)
	res, _ = l.Peek(ctx, "u", "reset", cfg)
	if !res.Allowed || res.Remaining != 2 {
		t.Fatalf("expected fresh budget after window, got %+v", res)
	}
	if store.Len() != 1 {
		t.Fatal("peek must not delete stale records")
	}
}

func TestLimiterActionsAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	l, _ := newLimiterTest(t, store)
	ctx := context.Background()
	cfg := Config{MaxAttempts: 1, Window: time.Minute, LockoutDuration: time.Hour}

	_ = l.Record(ctx, "u", false, "login", cfg)
	if res, _ := l.Check(ctx, "u", "login", cfg); res.Allowed {
		t.Fatal("expected login locked")
	}
	if res, _ := l.Check(ctx, "u", "password_reset", cfg); !res.Allowed {
		t.Fatal("expected password_reset unaffected")
	}
}

func TestLimiterSweepRemovesOnlyStale(t *testing.T) {
	for _, sf := range stores() {
		t.Run(sf.name, func(t *testing.T) {
			store, done := sf.make(t)
			defer done()
			l, clock := newLimiterTest(t, store)
			ctx := context.Background()
			short := Config{MaxAttempts: 5, Window: time.Minute, LockoutDuration: time.Minute}
			locked := Config{MaxAttempts: 1, Window: time.Minute, LockoutDuration: time.Hour}

			_ = l.Record(ctx, "old", false, "login", short)
			_ = l.Record(ctx, "held", false, "login", locked)
			_, _ = l.Check(ctx, "held", "login", locked)

			clock.Advance(2 * time.Minute)
			_ = l.Record(ctx, "new", false, "login", short)

			removed, err := l.Sweep(ctx, DefaultConfig())
			if err != nil {
				t.Fatalf("sweep: %v", err)
			}
			if removed != 1 {
				t.Fatalf("expected 1 removed, got %d", removed)
			}
			for _, id := range []string{"held", "new"} {
				rec, err := store.Get(ctx, l.Key("login", id))
				if err != nil || rec == nil {
					t.Fatalf("expected %s kept, got %v %v", id, rec, err)
				}
			}
		})
	}
}

func TestLimiterReset(t *testing.T) {
	store := NewMemoryStore()
	l, _ := newLimiterTest(t, store)
	ctx := context.Background()
	cfg := Config{MaxAttempts: 1, Window: time.Minute, LockoutDuration: time.Hour}

	_ = l.Record(ctx, "u", false, "sms", cfg)
	_, _ = l.Check(ctx, "u", "sms", cfg)
	if err := l.Reset(ctx, "u", "sms"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if res, _ := l.Check(ctx, "u", "sms", cfg); !res.Allowed {
		t.Fatalf("expected budget restored, got %+v", res)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	l := New(NewRedisStore(rdb), "rl")
	_, err = l.Check(context.Background(), "u", "login", DefaultConfig())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRedisStoreSetsTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := New(NewRedisStore(rdb), "rl")
	ctx := context.Background()
	cfg := Config{MaxAttempts: 3, Window: time.Minute, LockoutDuration: time.Hour}
	if err := l.Record(ctx, "u", false, "login", cfg); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ttl := mr.TTL(l.Key("login", "u")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window TTL, got %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists(l.Key("login", "u")) {
		t.Fatal("expected key to expire with the window")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	bad := DefaultConfig()
	bad.Window = 0
	if err := bad.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
