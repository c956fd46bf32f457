package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/device"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps any Redis I/O failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned by explicit by-ID operations on an absent session.
	ErrNotFound = errors.New("session not found")
	// ErrIDCollision is returned when every generated ID already existed.
	ErrIDCollision = errors.New("session id collision")
	// ErrCorrupt is returned when a stored session hash cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
)

const (
	// DefaultTTL is the lifetime of a session created without remember-me.
	DefaultTTL = 24 * time.Hour
	// RememberMeTTL is the lifetime of a remember-me session.
	RememberMeTTL = 7 * 24 * time.Hour

	createAttempts = 3
	sweepBatch     = 500
)

// Store is a Redis-backed session store.
//
// Each session is a hash at {prefix}:s:<sid>. Active session IDs are indexed
// per user in the set {prefix}:u:<uid>, and every session ID is scored by
// expiry in the sorted set {prefix}:exp so [Store.SweepExpired] never scans
// the keyspace. The braces are a Redis Cluster hash tag: every key of one
// store lives in the same slot, which lets the Lua scripts reach the user
// index named inside the session hash.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	defaultTTL  time.Duration
	rememberTTL time.Duration
	now         func() time.Time
	newID       func() string
}

// NewStore creates a session [Store] backed by rdb. Zero TTLs fall back to
// [DefaultTTL] and [RememberMeTTL].
func NewStore(rdb redis.UniversalClient, prefix string, defaultTTL, rememberTTL time.Duration) *Store {
	if prefix == "" {
		prefix = "gs"
	}
	if !strings.Contains(prefix, "{") {
		prefix = "{" + prefix + "}"
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if rememberTTL <= 0 {
		rememberTTL = RememberMeTTL
	}
	return &Store{
		redis:       rdb,
		prefix:      prefix,
		defaultTTL:  defaultTTL,
		rememberTTL: rememberTTL,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// WithClock replaces the time source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

func (s *Store) expiryKey() string {
	return s.prefix + ":exp"
}

// Create persists a new session for userID. The expiry is now plus the
// remember-me or default TTL. An empty ip is stored as "unknown".
//
//	Performance: 1 Lua EVALSHA (EXISTS + HSET + SADD + ZADD), retried on ID collision.
func (s *Store) Create(ctx context.Context, userID string, rememberMe bool, info device.Info, ip string) (*Session, error) {
	if userID == "" {
		return nil, errors.New("session: empty user id")
	}
	if ip == "" {
		ip = unknownClient
	}

	ttl := s.defaultTTL
	if rememberMe {
		ttl = s.rememberTTL
	}
	now := s.now().Truncate(time.Millisecond)

	sess := &Session{
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		DeviceInfo:     info,
		IPAddress:      ip,
		IsActive:       true,
	}

	for i := 0; i < createAttempts; i++ {
		sess.SessionID = s.newID()
		created, err := createLua.Run(
			ctx,
			s.redis,
			[]string{s.key(sess.SessionID), s.userKey(userID), s.expiryKey()},
			createArgs(sess)...,
		).Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if created == 1 {
			return sess, nil
		}
	}
	return nil, ErrIDCollision
}

// ValidateAndReconcile returns the session when it is valid and touches its
// LastActivityAt. It returns (nil, nil) when the session is absent, inactive
// or expired. An expired session is revoked as a side effect.
//
//	Performance: 1 Lua EVALSHA.
func (s *Store) ValidateAndReconcile(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	now := s.now()

	res, err := validateLua.Run(ctx, s.redis, []string{s.key(sessionID)}, sessionID, now.UnixMilli(), s.userPrefix()).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: invalid validate script response", ErrRedisUnavailable)
	}
	code, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid validate script status", ErrRedisUnavailable)
	}

	switch code {
	case statusAbsent, statusExpired, statusRevoked:
		return nil, nil
	case statusValid:
		if len(res) < 2 {
			return nil, fmt.Errorf("%w: missing session payload", ErrRedisUnavailable)
		}
		vals, err := pairsToMap(res[1])
		if err != nil {
			return nil, err
		}
		return decodeHash(sessionID, vals)
	default:
		return nil, fmt.Errorf("%w: unknown validate script status", ErrRedisUnavailable)
	}
}

// Get fetches a session without touching or reconciling it. It returns
// [ErrNotFound] when the session does not exist.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	vals, err := s.redis.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	sess, err := decodeHash(sessionID, vals)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Revoke marks the session inactive and drops it from the user index. It
// is idempotent: absent or already revoked sessions are not an error. A
// session owned by a different user is left untouched.
func (s *Store) Revoke(ctx context.Context, userID, sessionID string) error {
	_, err := s.revoke(ctx, userID, sessionID)
	return err
}

func (s *Store) revoke(ctx context.Context, userID, sessionID string) (int64, error) {
	n, err := revokeLua.Run(ctx, s.redis, []string{s.key(sessionID)}, sessionID, userID, s.userPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// RevokeAll revokes every indexed session of userID except exceptSessionID
// (empty revokes all). Each revocation is independent; failures are joined
// and the sessions that could be revoked stay revoked. It returns the number
// of sessions that transitioned to inactive.
func (s *Store) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	ids, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return 0, err
	}

	var (
		revoked int
		errs    []error
	)
	for _, sid := range ids {
		if sid == exceptSessionID {
			continue
		}
		n, err := s.revoke(ctx, userID, sid)
		if err != nil {
			errs = append(errs, fmt.Errorf("revoke %s: %w", ShortID(sid), err))
			continue
		}
		if n == 1 {
			revoked++
		}
	}
	return revoked, errors.Join(errs...)
}

// ListActive returns userID's valid sessions, most recently active first.
// Expired sessions found during the scan are revoked, and index entries
// pointing at missing or inactive records are pruned.
//
//	Performance: SMEMBERS + 1 pipelined HGETALL per session, plus one EVALSHA per reconciled entry.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, sid := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	var (
		out   = make([]*Session, 0, len(ids))
		prune []any
	)
	for i, cmd := range cmds {
		sess, err := decodeHash(ids[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		switch {
		case sess == nil, sess.UserID != userID, !sess.IsActive:
			prune = append(prune, ids[i])
		case !now.Before(sess.ExpiresAt):
			if err := expireLua.Run(ctx, s.redis, []string{s.key(sess.SessionID)}, sess.SessionID, now.UnixMilli(), s.userPrefix()).Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		default:
			out = append(out, sess)
		}
	}

	if len(prune) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), prune...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

// Extend pushes the session's expiry out by additional and returns the new
// expiry. It returns [ErrNotFound] when the session does not exist.
func (s *Store) Extend(ctx context.Context, sessionID string, additional time.Duration) (time.Time, error) {
	ms, err := extendLua.Run(ctx, s.redis, []string{s.key(sessionID), s.expiryKey()}, sessionID, additional.Milliseconds()).Int64()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ms < 0 {
		return time.Time{}, ErrNotFound
	}
	return time.UnixMilli(ms), nil
}

// SweepExpired physically deletes every session whose expiry has passed,
// active or not, and returns how many records were removed.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := s.now().UnixMilli()
	removed := 0

	for {
		ids, err := s.redis.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(now, 10),
			Count: sweepBatch,
		}).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, sid := range ids {
			n, err := sweepLua.Run(ctx, s.redis, []string{s.key(sid), s.expiryKey()}, sid, now, s.userPrefix()).Int64()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			removed += int(n)
		}

		if len(ids) < sweepBatch {
			return removed, nil
		}
	}
}

// ActiveSessionIDs returns the indexed session IDs of userID. The index may
// briefly include sessions that have expired but not yet been reconciled.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ActiveSessionCount returns the size of userID's session index.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(n), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
