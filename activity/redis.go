package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisPageSize = 200

// RedisStore keeps one sorted set per user at <prefix>:<userID>, scored by
// timestamp in unix milliseconds with JSON-encoded entries as members.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore wraps rdb. An empty prefix defaults to "gact".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gact"
	}
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStore) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	err = s.redis.ZAdd(ctx, s.key(e.UserID), redis.Z{
		Score:  float64(e.Timestamp.UnixMilli()),
		Member: string(raw),
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// List pages through the user's set newest first, filtering by action, so
// an action filter never truncates results early.
func (s *RedisStore) List(ctx context.Context, q Query) ([]Entry, error) {
	min := "-inf"
	if !q.Since.IsZero() {
		min = strconv.FormatInt(q.Since.UnixMilli(), 10)
	}

	out := make([]Entry, 0)
	var offset int64
	for {
		members, err := s.redis.ZRevRangeByScore(ctx, s.key(q.UserID), &redis.ZRangeBy{
			Min:    min,
			Max:    "+inf",
			Offset: offset,
			Count:  redisPageSize,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		for _, m := range members {
			var e Entry
			if err := json.Unmarshal([]byte(m), &e); err != nil {
				continue
			}
			if !q.matches(&e) {
				continue
			}
			out = append(out, e)
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}

		if len(members) < redisPageSize {
			return out, nil
		}
		offset += int64(len(members))
	}
}
