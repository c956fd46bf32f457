package rate

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is the persisted state for one (action, identifier) key.
type Record struct {
	Attempts       int
	FirstAttemptAt time.Time
	// LockedUntil is zero when no lockout has been applied.
	LockedUntil time.Time
	// ExpiresAt is when both the window and any lockout are over. Stores
	// may use it as a TTL.
	ExpiresAt time.Time
}

func (r *Record) lockedAt(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

func (r *Record) expiry(cfg Config) time.Time {
	end := r.FirstAttemptAt.Add(cfg.Window)
	if r.LockedUntil.After(end) {
		return r.LockedUntil
	}
	return end
}

func (r *Record) staleAt(now time.Time, fallback Config) bool {
	if r.lockedAt(now) {
		return false
	}
	if !r.ExpiresAt.IsZero() {
		return !now.Before(r.ExpiresAt)
	}
	return now.Sub(r.FirstAttemptAt) > fallback.Window
}

// Store is the persistence abstraction behind [Limiter]. Check, Fail and
// DeleteIfStale must each be atomic per key: no concurrent caller may observe
// or overwrite a half-applied decision.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	// Check applies the Check decision at now, persisting a lockout or
	// deleting a stale record as needed.
	Check(ctx context.Context, key string, now time.Time, cfg Config) (Result, error)
	// Fail counts one failed attempt and returns the stored record.
	Fail(ctx context.Context, key string, now time.Time, cfg Config) (*Record, error)
	Delete(ctx context.Context, key string) error
	// DeleteIfStale removes the record when both its window and any lockout
	// are over at now.
	DeleteIfStale(ctx context.Context, key string, now time.Time, fallback Config) (bool, error)
	Scan(ctx context.Context, prefix string, fn func(key string, rec *Record) error) error
}

// decide is the Check state machine. write reports whether next must be
// stored; a nil next with write=true deletes the record.
func decide(cur *Record, now time.Time, cfg Config) (res Result, next *Record, write bool) {
	switch {
	case cur == nil:
		return fresh(cfg), nil, false
	case cur.lockedAt(now):
		return Result{Allowed: false, Remaining: 0, ResetIn: cur.LockedUntil.Sub(now)}, cur, false
	case now.Sub(cur.FirstAttemptAt) > cfg.Window:
		return fresh(cfg), nil, true
	case cur.Attempts >= cfg.MaxAttempts:
		locked := *cur
		locked.LockedUntil = now.Add(cfg.LockoutDuration)
		locked.ExpiresAt = locked.expiry(cfg)
		return Result{Allowed: false, Remaining: 0, ResetIn: cfg.LockoutDuration}, &locked, true
	default:
		return Result{
			Allowed:   true,
			Remaining: cfg.MaxAttempts - cur.Attempts,
			ResetIn:   cfg.Window - now.Sub(cur.FirstAttemptAt),
		}, cur, false
	}
}

// countFailure opens a window, restarts an expired one, or increments the
// count. An active lockout survives a window restart.
func countFailure(cur *Record, now time.Time, cfg Config) Record {
	var next Record
	switch {
	case cur == nil:
		next = Record{Attempts: 1, FirstAttemptAt: now}
	case now.Sub(cur.FirstAttemptAt) > cfg.Window:
		next = Record{Attempts: 1, FirstAttemptAt: now}
		if cur.lockedAt(now) {
			next.LockedUntil = cur.LockedUntil
		}
	default:
		next = *cur
		next.Attempts++
	}
	next.ExpiresAt = next.expiry(cfg)
	return next
}

// MemoryStore is a process-local [Store] guarded by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) Check(_ context.Context, key string, now time.Time, cfg Config) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, next, write := decide(m.lookup(key), now, cfg)
	if write {
		m.store(key, next)
	}
	return res, nil
}

func (m *MemoryStore) Fail(_ context.Context, key string, now time.Time, cfg Config) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := countFailure(m.lookup(key), now, cfg)
	m.records[key] = next
	return &next, nil
}

func (m *MemoryStore) DeleteIfStale(_ context.Context, key string, now time.Time, fallback Config) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.lookup(key)
	if cur == nil || !cur.staleAt(now, fallback) {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

func (m *MemoryStore) lookup(key string) *Record {
	rec, ok := m.records[key]
	if !ok {
		return nil
	}
	return &rec
}

func (m *MemoryStore) store(key string, next *Record) {
	if next == nil {
		delete(m.records, key)
		return
	}
	m.records[key] = *next
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Scan visits a snapshot of matching records in key order, so fn may call
// back into the store.
func (m *MemoryStore) Scan(ctx context.Context, prefix string, fn func(key string, rec *Record) error) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.records))
	snapshot := make(map[string]Record, len(m.records))
	for k, v := range m.records {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			snapshot[k] = v
		}
	}
	m.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := snapshot[k]
		if err := fn(k, &rec); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
