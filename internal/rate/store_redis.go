package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldAttempts = "attempts"
	fieldFirst    = "first"
	fieldLocked   = "locked"
	fieldExpires  = "expires"

	scanBatch = 256
)

// RedisStore keeps one hash per key and sets PEXPIREAT to the record's
// ExpiresAt, so Redis drops stale records on its own. Sweep remains useful
// for records written before a TTL was applied.
//
// Check, Fail and DeleteIfStale each run as one Lua script, so concurrent
// failures on a key are never lost.
type RedisStore struct {
	redis redis.UniversalClient
}

// NewRedisStore wraps rdb.
func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{redis: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	vals, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return decodeRecord(vals), nil
}

func (s *RedisStore) Check(ctx context.Context, key string, now time.Time, cfg Config) (Result, error) {
	vals, err := checkLua.Run(ctx, s.redis, []string{key},
		now.UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.MaxAttempts,
		cfg.LockoutDuration.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, s.wrap(ctx, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("%w: check returned %d values", ErrStoreUnavailable, len(vals))
	}
	return Result{
		Allowed:   vals[0] == 1,
		Remaining: int(vals[1]),
		ResetIn:   time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

func (s *RedisStore) Fail(ctx context.Context, key string, now time.Time, cfg Config) (*Record, error) {
	vals, err := failLua.Run(ctx, s.redis, []string{key},
		now.UnixMilli(),
		cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	if len(vals) != 4 {
		return nil, fmt.Errorf("%w: fail returned %d values", ErrStoreUnavailable, len(vals))
	}
	return &Record{
		Attempts:       int(vals[0]),
		FirstAttemptAt: msTime(vals[1]),
		LockedUntil:    msTime(vals[2]),
		ExpiresAt:      msTime(vals[3]),
	}, nil
}

func (s *RedisStore) DeleteIfStale(ctx context.Context, key string, now time.Time, fallback Config) (bool, error) {
	n, err := sweepLua.Run(ctx, s.redis, []string{key},
		now.UnixMilli(),
		fallback.Window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, s.wrap(ctx, err)
	}
	return n == 1, nil
}

func (s *RedisStore) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Scan(ctx context.Context, prefix string, fn func(key string, rec *Record) error) error {
	iter := s.redis.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		rec, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		if err := fn(key, rec); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// decodeRecord returns nil for an empty hash. Unparseable fields decode as
// zero values.
func decodeRecord(vals map[string]string) *Record {
	if len(vals) == 0 {
		return nil
	}
	attempts, _ := strconv.Atoi(vals[fieldAttempts])
	return &Record{
		Attempts:       attempts,
		FirstAttemptAt: msField(vals[fieldFirst]),
		LockedUntil:    msField(vals[fieldLocked]),
		ExpiresAt:      msField(vals[fieldExpires]),
	}
}

func msField(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return msTime(ms)
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
