package activity

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultLimit is the page size used when a caller passes limit <= 0.
const DefaultLimit = 50

// Log is the append-only activity trail consumed by the Engine.
//
// Record never fails the caller: store errors are logged and dropped.
// The query methods do return store errors.
type Log struct {
	store        Store
	logger       zerolog.Logger
	now          func() time.Time
	defaultLimit int
}

// NewLog wraps store. A nil store behaves like [NopStore].
func NewLog(store Store, logger zerolog.Logger) *Log {
	if store == nil {
		store = NopStore{}
	}
	return &Log{
		store:        store,
		logger:       logger.With().Str("component", "activity").Logger(),
		now:          time.Now,
		defaultLimit: DefaultLimit,
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// WithDefaultLimit overrides [DefaultLimit].
func (l *Log) WithDefaultLimit(n int) *Log {
	if n > 0 {
		l.defaultLimit = n
	}
	return l
}

// Record appends e, stamping Timestamp when it is zero. It returns the
// stored entry ID, or "" when the write failed.
func (l *Log) Record(ctx context.Context, e Entry) string {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if err := l.store.Append(ctx, &e); err != nil {
		l.logger.Warn().
			Err(err).
			Str("user_id", e.UserID).
			Str("action", string(e.Action)).
			Msg("activity write failed")
		return ""
	}
	return e.ID
}

// ForUser returns the most recent entries of userID.
func (l *Log) ForUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return l.store.List(ctx, Query{UserID: userID, Limit: l.limit(limit)})
}

// ForUserByAction returns the most recent entries of userID for one action.
func (l *Log) ForUserByAction(ctx context.Context, userID string, action Action, limit int) ([]Entry, error) {
	return l.store.List(ctx, Query{UserID: userID, Actions: []Action{action}, Limit: l.limit(limit)})
}

// FailedLoginsSince returns every login_failed entry of userID at or after
// since. A zero since returns all of them.
func (l *Log) FailedLoginsSince(ctx context.Context, userID string, since time.Time) ([]Entry, error) {
	return l.store.List(ctx, Query{UserID: userID, Actions: []Action{ActionLoginFailed}, Since: since})
}

// SecurityEvents returns the most recent entries whose action is one of
// [SecurityActions].
func (l *Log) SecurityEvents(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return l.store.List(ctx, Query{UserID: userID, Actions: SecurityActions, Limit: l.limit(limit)})
}

func (l *Log) limit(n int) int {
	if n <= 0 {
		return l.defaultLimit
	}
	return n
}
