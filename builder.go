package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

const tracerName = "github.com/MrEthical07/goGuard"

// Builder assembles an [Engine]. It is single use: a second Build fails.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *zerolog.Logger
	now    func() time.Time

	identity      identity.Provider
	phones        identity.PhoneVerifier
	profiles      ProfileStore
	activityStore activity.Store
	otpProvider   otp.Provider
	emailSender   otp.Sender
	smsSender     otp.Sender
	auditSink     AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, rate limits, profiles,
// activity and local OTP codes. It is required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithIdentityProvider sets the credential-verification boundary. It is
// required.
func (b *Builder) WithIdentityProvider(p identity.Provider) *Builder {
	b.identity = p
	return b
}

// WithPhoneVerifier enables SMS codes for the "delegated" OTP provider.
func (b *Builder) WithPhoneVerifier(pv identity.PhoneVerifier) *Builder {
	b.phones = pv
	return b
}

// WithProfileStore replaces the Redis profile store.
func (b *Builder) WithProfileStore(s ProfileStore) *Builder {
	b.profiles = s
	return b
}

// WithActivityStore sets the activity backend. It is required when
// Activity.Backend is "postgres" and overrides the Redis store otherwise.
func (b *Builder) WithActivityStore(s activity.Store) *Builder {
	b.activityStore = s
	return b
}

// WithOTPProvider bypasses OTP.Provider selection entirely.
func (b *Builder) WithOTPProvider(p otp.Provider) *Builder {
	b.otpProvider = p
	return b
}

// WithOTPSenders sets the delivery channels of the "local" OTP provider.
// Missing senders log a masked code instead of delivering it.
func (b *Builder) WithOTPSenders(email, sms otp.Sender) *Builder {
	b.emailSender = email
	b.smsSender = sms
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock replaces the time source of the engine and every store it
// builds. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "goguard").Logger()
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- SESSIONS --------
	sessions := session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.DefaultTTL, cfg.Session.RememberMeTTL).
		WithClock(now)

	// -------- RATE LIMITS --------
	var rateStore rate.Store
	switch cfg.RateLimit.Backend {
	case "memory":
		rateStore = rate.NewMemoryStore()
	default:
		rateStore = rate.NewRedisStore(b.redis)
	}
	limiter := rate.New(rateStore, cfg.RateLimit.Prefix).WithClock(now)

	// -------- PROFILES --------
	profiles := b.profiles
	if profiles == nil {
		profiles = stores.NewRedisProfileStore(b.redis, cfg.Profile.RedisPrefix)
	}

	// -------- ACTIVITY --------
	activityStore := b.activityStore
	if activityStore == nil {
		switch cfg.Activity.Backend {
		case "postgres":
			return nil, errors.New("Activity postgres backend requires WithActivityStore")
		case "none":
			activityStore = activity.NopStore{}
		default:
			activityStore = activity.NewRedisStore(b.redis, cfg.Activity.RedisPrefix)
		}
	}
	activityLog := activity.NewLog(activityStore, logger).
		WithDefaultLimit(cfg.Activity.DefaultLimit).
		WithClock(now)

	// -------- OTP --------
	otpProvider := b.otpProvider
	if otpProvider == nil {
		switch cfg.OTP.Provider {
		case OTPProviderLocal:
			email, sms := b.emailSender, b.smsSender
			fallback := otp.LogSender{Logger: logger}
			if email == nil {
				email = fallback
			}
			if sms == nil {
				sms = fallback
			}
			local, err := otp.NewLocal(b.redis, otp.LocalConfig{
				Prefix:      cfg.OTP.RedisPrefix,
				CodeTTL:     cfg.OTP.CodeTTL,
				Digits:      cfg.OTP.Digits,
				MaxAttempts: cfg.OTP.MaxAttempts,
			}, email, sms)
			if err != nil {
				return nil, err
			}
			otpProvider = local.WithClock(now)
		default:
			otpProvider = otp.NewDelegated(b.identity, b.phones)
		}
	}

	// -------- PASSWORD HASHING --------
	ph, err := password.NewArgon2(cfg.Password.argon2())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		logger:       logger,
		now:          now,
		identity:     b.identity,
		profiles:     profiles,
		sessions:     sessions,
		limiter:      limiter,
		activity:     activityLog,
		otp:          otpProvider,
		passwordHash: ph,
		audit:        newAuditDispatcher(cfg.Audit, b.auditSink, logger),
		metrics:      NewMetrics(cfg.Metrics),
		tracer:       otel.Tracer(tracerName),
	}

	// -------- ACCESS TOKENS --------
	if cfg.JWT.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.JWT.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
			PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
			PublicKey:     cloneBytes(cfg.JWT.PublicKey),
			Issuer:        cfg.JWT.Issuer,
			Audience:      cfg.JWT.Audience,
			KeyID:         cfg.JWT.KeyID,
			Leeway:        cfg.JWT.Leeway,
			RequireIAT:    true,
		})
		if err != nil {
			engine.Close()
			return nil, err
		}
		engine.jwtManager = jm.WithClock(now)
	}

	b.built = true

	return engine, nil
}
