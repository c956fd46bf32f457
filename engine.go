package goGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/activity"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/password"
	"github.com/MrEthical07/goGuard/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Rate-limit actions. Each has its own budget in [RateLimitConfig].
const (
	ActionLogin         = "login"
	ActionPasswordReset = "password_reset"
	ActionSMSOTP        = "sms_otp"
)

// Engine is the authentication service. It composes the password policy,
// the rate limiter, the session store and the activity log around calls
// to an external identity provider.
//
// An Engine is safe for concurrent use. Build one with [New].
type Engine struct {
	config Config
	logger zerolog.Logger
	now    func() time.Time

	identity     identity.Provider
	profiles     ProfileStore
	sessions     *session.Store
	limiter      *rate.Limiter
	activity     *activity.Log
	otp          otp.Provider
	passwordHash *password.Argon2
	jwtManager   *jwt.Manager

	audit   *auditDispatcher
	metrics *Metrics
	tracer  trace.Tracer
}

// Close flushes queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByEvent breaks AuditDropped down by audit event type.
func (e *Engine) AuditDroppedByEvent() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByEvent()
}

// AuditSinkPanics reports how many events were lost to a panicking sink.
func (e *Engine) AuditSinkPanics() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.SinkPanics()
}

// MetricsSnapshot returns the current counters. It is empty when metrics
// are disabled.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// bestEffort runs a side call whose failure must never fail the request.
// The error is logged and counted, then dropped.
func (e *Engine) bestEffort(ctx context.Context, op string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		e.metricInc(MetricBestEffortFailure)
		e.logger.Warn().Err(err).Str("op", op).Msg("best-effort call failed")
	}
}

func (e *Engine) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "goguard."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// recordActivity appends an activity entry with the request's IP and
// device. [activity.Log.Record] never fails the caller.
func (e *Engine) recordActivity(ctx context.Context, userID string, action activity.Action, success bool, meta map[string]string) {
	ua := userAgentFromContext(ctx)
	e.activity.Record(ctx, activity.Entry{
		UserID:     userID,
		Action:     action,
		Success:    success,
		Metadata:   meta,
		IPAddress:  clientIPFromContext(ctx),
		UserAgent:  ua,
		DeviceInfo: device.Parse(ua),
	})
}

// checkLimit consults the limiter for (action, identifier). A store error
// fails closed.
func (e *Engine) checkLimit(ctx context.Context, action, identifier string, rule LimitRule) error {
	res, err := e.limiter.Check(ctx, identifier, action, rule.rate())
	if err != nil {
		return storeErr(err)
	}
	if !res.Allowed {
		e.emitRateLimit(ctx, action, identifier)
		return &RateLimitError{Action: action, ResetIn: res.ResetIn}
	}
	return nil
}

func (e *Engine) recordAttempt(ctx context.Context, action, identifier string, success bool, rule LimitRule) {
	e.bestEffort(ctx, "rate_limit_record", func(ctx context.Context) error {
		return e.limiter.Record(ctx, identifier, success, action, rule.rate())
	})
}

// loadProfile maps store errors onto engine errors.
func (e *Engine) loadProfile(ctx context.Context, userID string) (*UserProfile, error) {
	p, err := e.profiles.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr(err)
	}
	return p, nil
}

func (e *Engine) updateProfile(ctx context.Context, userID string, fn func(*UserProfile) error) (*UserProfile, error) {
	p, err := e.profiles.Update(ctx, userID, fn)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrUserNotFound
		}
		var pe *PolicyError
		if errors.As(err, &pe) || errors.Is(err, ErrPasswordReuse) || errors.Is(err, ErrInvalidStatus) {
			return nil, err
		}
		return nil, storeErr(err)
	}
	return p, nil
}

// validatePassword applies the configured policy.
func (e *Engine) validatePassword(pw string) error {
	strength := password.Validate(pw, e.config.Password.Policy)
	if !strength.PassesPolicy {
		e.metricInc(MetricPasswordPolicyRejected)
		return newPolicyError(strength)
	}
	return nil
}

// checkReuse compares pw against the hashed history of p.
func (e *Engine) checkReuse(p *UserProfile, pw string) error {
	if !e.config.Password.HistoryHashing || e.config.Password.Policy.PreventPasswordReuse == 0 {
		return nil
	}
	ok, err := e.passwordHash.CheckReuse(pw, p.PasswordHistory, e.config.Password.Policy)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordReuseRejected)
		return ErrPasswordReuse
	}
	return nil
}

// historyHash returns the argon2id hash of pw for the reuse history, or ""
// when history hashing is off.
func (e *Engine) historyHash(pw string) (string, error) {
	if !e.config.Password.HistoryHashing {
		return "", nil
	}
	return e.passwordHash.Hash(pw)
}

// appendHistory prepends hash to p's history, trimmed to the reuse window.
func (e *Engine) appendHistory(p *UserProfile, hash string) {
	if hash == "" {
		return
	}
	keep := e.config.Password.Policy.PreventPasswordReuse
	if keep < 1 {
		keep = 1
	}
	p.PushPasswordHash(hash, keep)
}

func storeErr(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func providerErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func shortID(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	return session.ShortID(sessionID)
}
