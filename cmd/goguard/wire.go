package main

import (
	"context"
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/audit/natssink"
	"github.com/MrEthical07/goGuard/identity/memory"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// service owns the engine and every connection opened for it.
type service struct {
	engine  *goGuard.Engine
	logger  zerolog.Logger
	closers []func()
}

func (s *service) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildService(ctx context.Context, cfg *settings, logger zerolog.Logger) (_ *service, err error) {
	svc := &service{logger: logger}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	rdb, err := openRedis(cfg, svc, logger)
	if err != nil {
		return nil, err
	}

	// The identity provider is in-process; account data lives as long as
	// the process does.
	idp, err := memory.New(password.DefaultConfig())
	if err != nil {
		return nil, err
	}

	b := goGuard.New().
		WithConfig(cfg.engineConfig()).
		WithRedis(rdb).
		WithLogger(logger).
		WithIdentityProvider(idp).
		WithPhoneVerifier(idp)

	if cfg.Activity.Backend == "postgres" {
		pool, err := activity.OpenPostgres(ctx, cfg.Activity.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("activity postgres: %w", err)
		}
		svc.closers = append(svc.closers, pool.Close)
		store := activity.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		b = b.WithActivityStore(store)
	}

	if cfg.OTP.Provider == goGuard.OTPProviderLocal {
		email, sms := otpSenders(cfg, logger)
		b = b.WithOTPSenders(email, sms)
	}

	if cfg.Audit.Enabled {
		sink, err := auditSink(cfg, svc, logger)
		if err != nil {
			return nil, err
		}
		b = b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	svc.engine = engine
	return svc, nil
}

func openRedis(cfg *settings, svc *service, logger zerolog.Logger) (redis.UniversalClient, error) {
	addr := cfg.Redis.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		svc.closers = append(svc.closers, mr.Close)
		addr = mr.Addr()
		logger.Warn().Str("addr", addr).Msg("using in-process miniredis; data is not persisted")
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	svc.closers = append(svc.closers, func() { _ = rdb.Close() })
	return rdb, nil
}

// otpSenders returns the delivery channels for locally generated codes.
// Without an SMS gateway key, codes are written to the log.
func otpSenders(cfg *settings, logger zerolog.Logger) (email, sms otp.Sender) {
	fallback := otp.LogSender{Logger: logger, Reveal: cfg.Dev}
	email, sms = fallback, fallback
	if cfg.OTP.SMSLocalAPIKey != "" {
		gateway := otp.NewSMSLocalSender(cfg.OTP.SMSLocalAPIKey, cfg.OTP.SMSLocalBaseURL)
		sms = otp.NewThrottledSender(gateway, cfg.OTP.SendsPerSecond, 1)
	}
	return email, sms
}

func auditSink(cfg *settings, svc *service, logger zerolog.Logger) (goGuard.AuditSink, error) {
	sinks := goGuard.MultiSink{goGuard.LogSink{Logger: logger.With().Str("stream", "audit").Logger()}}
	if cfg.Audit.NATSURL == "" {
		return sinks, nil
	}

	sink, nc, err := natssink.Connect(cfg.Audit.NATSURL, cfg.Audit.NATSSubject, logger,
		nats.Name("goguard"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("audit nats: %w", err)
	}
	svc.closers = append(svc.closers, func() {
		if err := nc.Drain(); err != nil {
			nc.Close()
		}
	})
	return append(sinks, sink), nil
}
