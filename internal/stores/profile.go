package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AccountStatus is the administrative state of an account.
type AccountStatus string

const (
	StatusActive    AccountStatus = "active"
	StatusLocked    AccountStatus = "locked"
	StatusSuspended AccountStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusLocked, StatusSuspended:
		return true
	}
	return false
}

// Profile is the per-user record kept next to the identity provider.
type Profile struct {
	UserID        string        `json:"uid"`
	Email         string        `json:"email"`
	EmailVerified bool          `json:"emailVerified"`
	DisplayName   string        `json:"displayName,omitempty"`
	PhotoURL      string        `json:"photoURL,omitempty"`
	PhoneNumber   string        `json:"phoneNumber,omitempty"`
	MFAEnabled    bool          `json:"mfaEnabled"`
	MFAMethods    []string      `json:"mfaMethods"`
	AccountStatus AccountStatus `json:"accountStatus"`
	LoginAttempts int           `json:"loginAttempts"`

	CreatedAt            time.Time `json:"createdAt"`
	LastLoginAt          time.Time `json:"lastLoginAt,omitempty"`
	LastPasswordChangeAt time.Time `json:"lastPasswordChangeAt,omitempty"`

	// PasswordHistory holds argon2id hashes, newest first.
	PasswordHistory []string `json:"passwordHistory,omitempty"`
}

// PushPasswordHash prepends hash to the history and keeps at most keep
// entries. keep <= 0 clears the history.
func (p *Profile) PushPasswordHash(hash string, keep int) {
	if keep <= 0 {
		p.PasswordHistory = nil
		return
	}
	next := make([]string, 0, keep)
	next = append(next, hash)
	for _, h := range p.PasswordHistory {
		if len(next) == keep {
			break
		}
		next = append(next, h)
	}
	p.PasswordHistory = next
}

var (
	ErrProfileNotFound    = errors.New("profile not found")
	ErrProfileExists      = errors.New("profile already exists")
	ErrProfileUnavailable = errors.New("profile store unavailable")
	ErrProfileContention  = errors.New("profile update contention")
)

const profileMaxRetries = 8

// RedisProfileStore stores one JSON profile per user at <prefix>:<uid>.
type RedisProfileStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisProfileStore wraps rdb. An empty prefix defaults to "gusr".
func NewRedisProfileStore(rdb redis.UniversalClient, prefix string) *RedisProfileStore {
	if prefix == "" {
		prefix = "gusr"
	}
	return &RedisProfileStore{redis: rdb, prefix: prefix}
}

func (s *RedisProfileStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Get returns the profile or [ErrProfileNotFound].
func (s *RedisProfileStore) Get(ctx context.Context, userID string) (*Profile, error) {
	raw, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProfileUnavailable, err)
	}
	return &p, nil
}

// Create stores p unless a profile already exists.
func (s *RedisProfileStore) Create(ctx context.Context, p *Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ok, err := s.redis.SetNX(ctx, s.key(p.UserID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	if !ok {
		return ErrProfileExists
	}
	return nil
}

// Update applies fn to the stored profile inside WATCH/MULTI and retries
// on a concurrent write. An error from fn aborts without writing and is
// returned as is.
func (s *RedisProfileStore) Update(ctx context.Context, userID string, fn func(*Profile) error) (*Profile, error) {
	key := s.key(userID)
	var (
		out   *Profile
		fnErr error
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				fnErr = ErrProfileNotFound
				return fnErr
			}
			return err
		}
		var p Profile
		if err := json.Unmarshal(raw, &p); err != nil {
			fnErr = fmt.Errorf("%w: decode: %v", ErrProfileUnavailable, err)
			return fnErr
		}
		if err := fn(&p); err != nil {
			fnErr = err
			return err
		}
		next, err := json.Marshal(&p)
		if err != nil {
			fnErr = err
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err == nil {
			out = &p
		}
		return err
	}

	for i := 0; i < profileMaxRetries; i++ {
		fnErr = nil
		err := s.redis.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return out, nil
		case fnErr != nil:
			return nil, fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
		}
	}
	return nil, ErrProfileContention
}
