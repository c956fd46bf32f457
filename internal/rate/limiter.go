package rate

import (
	"context"
	"fmt"
	"time"
)

// Config is the per-action attempt budget.
type Config struct {
	MaxAttempts     int
	Window          time.Duration
	LockoutDuration time.Duration
}

// DefaultConfig returns 5 attempts per 15 minutes with a 30 minute lockout.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
	}
}

// Validate checks that every field is positive.
func (c Config) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: MaxAttempts must be > 0", ErrInvalidConfig)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: Window must be > 0", ErrInvalidConfig)
	}
	if c.LockoutDuration <= 0 {
		return fmt.Errorf("%w: LockoutDuration must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Result is the outcome of a check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter enforces [Config] budgets over a [Store].
type Limiter struct {
	store  Store
	prefix string
	now    func() time.Time
}

// New returns a Limiter writing keys under prefix.
func New(store Store, prefix string) *Limiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Limiter{
		store:  store,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Key returns the store key for an (action, identifier) pair.
func (l *Limiter) Key(action, identifier string) string {
	return l.prefix + ":" + action + ":" + identifier
}

// Check reports whether identifier may attempt action.
//
// Check mutates state: a stale record is deleted, and a record that has
// reached MaxAttempts is converted into a lockout ending LockoutDuration
// from now.
func (l *Limiter) Check(ctx context.Context, identifier, action string, cfg Config) (Result, error) {
	return l.store.Check(ctx, l.Key(action, identifier), l.now(), cfg)
}

// Peek computes the same answer as Check without writing anything.
func (l *Limiter) Peek(ctx context.Context, identifier, action string, cfg Config) (Result, error) {
	now := l.now()
	cur, err := l.store.Get(ctx, l.Key(action, identifier))
	if err != nil {
		return Result{}, err
	}

	res, _, _ := decide(cur, now, cfg)
	return res, nil
}

// Record registers the outcome of an attempt. Success deletes the record.
// A failure opens a window, restarts an expired one, or increments the
// count. An active lockout survives a window restart.
func (l *Limiter) Record(ctx context.Context, identifier string, success bool, action string, cfg Config) error {
	key := l.Key(action, identifier)
	if success {
		return l.store.Delete(ctx, key)
	}
	_, err := l.store.Fail(ctx, key, l.now(), cfg)
	return err
}

// Reset deletes the record for (action, identifier).
func (l *Limiter) Reset(ctx context.Context, identifier, action string) error {
	return l.store.Delete(ctx, l.Key(action, identifier))
}

// Sweep deletes records whose window and lockout have both ended. Records
// written without an expiry are judged against fallback. It returns the
// number of records removed.
func (l *Limiter) Sweep(ctx context.Context, fallback Config) (int, error) {
	now := l.now()
	var stale []string

	err := l.store.Scan(ctx, l.prefix+":", func(key string, rec *Record) error {
		if rec.staleAt(now, fallback) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		deleted, err := l.store.DeleteIfStale(ctx, key, now, fallback)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	return removed, nil
}

func fresh(cfg Config) Result {
	return Result{Allowed: true, Remaining: cfg.MaxAttempts, ResetIn: cfg.Window}
}
