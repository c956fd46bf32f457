package otp

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	potp "github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

const secretBytes = 20

// LocalConfig tunes [Local].
type LocalConfig struct {
	Prefix      string
	CodeTTL     time.Duration
	Digits      int
	MaxAttempts int
}

// DefaultLocalConfig returns 6-digit codes valid for 5 minutes with 5 attempts.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{
		Prefix:      "gotp",
		CodeTTL:     5 * time.Minute,
		Digits:      6,
		MaxAttempts: 5,
	}
}

// KEYS: verification. Returns {0} when absent, else
// {1, secret, channel, dest, issued, attempts}.
const consumeAttemptScript = `
local v = redis.call("HMGET", KEYS[1], "secret", "channel", "dest", "issued")
if not v[1] then
  return {0}
end
local attempts = redis.call("HINCRBY", KEYS[1], "attempts", 1)
return {1, v[1], v[2], v[3], v[4], attempts}
`

var consumeAttemptLua = redis.NewScript(consumeAttemptScript)

// Local generates codes with a per-verification time-step secret held in
// Redis. Every verification is single use, expires after CodeTTL and is
// discarded after MaxAttempts wrong codes.
type Local struct {
	redis  redis.UniversalClient
	cfg    LocalConfig
	email  Sender
	sms    Sender
	now    func() time.Time
	newID  func() string
	digits potp.Digits
}

// NewLocal returns a Local provider. A nil sender makes its channel
// return [ErrUnsupported].
func NewLocal(rdb redis.UniversalClient, cfg LocalConfig, email, sms Sender) (*Local, error) {
	def := DefaultLocalConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = def.CodeTTL
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, errors.New("otp: digits must be 6 or 8")
	}
	if cfg.CodeTTL < time.Second {
		return nil, errors.New("otp: code ttl must be >= 1s")
	}
	return &Local{
		redis:  rdb,
		cfg:    cfg,
		email:  email,
		sms:    sms,
		now:    time.Now,
		newID:  uuid.NewString,
		digits: potp.Digits(cfg.Digits),
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (l *Local) WithClock(now func() time.Time) *Local {
	l.now = now
	return l
}

func (l *Local) key(id string) string {
	return l.cfg.Prefix + ":" + id
}

func (l *Local) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(l.cfg.CodeTTL / time.Second),
		Skew:      0,
		Digits:    l.digits,
		Algorithm: potp.AlgorithmSHA1,
	}
}

func (l *Local) SendEmailOTP(ctx context.Context, email string) (string, error) {
	return l.issue(ctx, ChannelEmail, email, l.email)
}

func (l *Local) SendSMSOTP(ctx context.Context, phoneNumber string) (string, error) {
	return l.issue(ctx, ChannelSMS, phoneNumber, l.sms)
}

func (l *Local) issue(ctx context.Context, ch Channel, to string, sender Sender) (string, error) {
	if sender == nil {
		return "", ErrUnsupported
	}
	if to == "" {
		return "", fmt.Errorf("%w: empty destination", ErrDelivery)
	}

	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	issued := l.now().Truncate(time.Millisecond)

	code, err := totp.GenerateCodeCustom(secret, issued, l.opts())
	if err != nil {
		return "", err
	}

	id := l.newID()
	key := l.key(id)
	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"secret", secret,
			"channel", string(ch),
			"dest", to,
			"issued", issued.UnixMilli(),
			"attempts", 0,
		)
		pipe.PExpire(ctx, key, l.cfg.CodeTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := sender.Send(ctx, Message{Channel: ch, To: to, Code: code}); err != nil {
		_ = l.redis.Del(ctx, key).Err()
		return "", fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return id, nil
}

func (l *Local) VerifyOTP(ctx context.Context, verificationID, code string) (Verification, error) {
	if verificationID == "" {
		return Verification{}, ErrCodeExpired
	}
	key := l.key(verificationID)

	res, err := consumeAttemptLua.Run(ctx, l.redis, []string{key}).Slice()
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) < 6 {
		return Verification{}, ErrCodeExpired
	}

	secret, _ := res[1].(string)
	channel, _ := res[2].(string)
	dest, _ := res[3].(string)
	issuedRaw, _ := res[4].(string)
	attempts, _ := res[5].(int64)

	if attempts > int64(l.cfg.MaxAttempts) {
		_ = l.redis.Del(ctx, key).Err()
		return Verification{}, ErrTooManyAttempts
	}

	issuedMS, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil {
		return Verification{}, ErrCodeExpired
	}
	issued := time.UnixMilli(issuedMS)
	now := l.now()
	if now.Sub(issued) >= l.cfg.CodeTTL {
		_ = l.redis.Del(ctx, key).Err()
		return Verification{}, ErrCodeExpired
	}

	ok, err := totp.ValidateCustom(code, secret, issued, l.opts())
	if err != nil || !ok {
		return Verification{}, ErrCodeInvalid
	}

	deleted, err := l.redis.Del(ctx, key).Result()
	if err != nil {
		return Verification{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if deleted == 0 {
		return Verification{}, ErrCodeExpired
	}

	return Verification{
		ID:          verificationID,
		Channel:     Channel(channel),
		Destination: dest,
		VerifiedAt:  now,
	}, nil
}
