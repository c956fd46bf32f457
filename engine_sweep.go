package goGuard

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Sweep physically deletes expired sessions and stale limiter records.
// Both halves run even if one fails; their errors are joined. Correctness
// never depends on Sweep: expiry and lockouts are enforced on read.
func (e *Engine) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		errs   []error
	)

	n, err := e.sessions.SweepExpired(ctx)
	report.Sessions = n
	if err != nil {
		errs = append(errs, storeErr(err))
	}

	n, err = e.limiter.Sweep(ctx, e.sweepFallback().rate())
	report.RateLimits = n
	if err != nil {
		errs = append(errs, storeErr(err))
	}

	if e.metrics != nil {
		e.metrics.Add(MetricSweepSessionsDeleted, uint64(report.Sessions))
		e.metrics.Add(MetricSweepRateLimitsDeleted, uint64(report.RateLimits))
	}
	err = errors.Join(errs...)
	e.emitAudit(ctx, auditEventSweep, err == nil, "", "", err, func() map[string]string {
		return map[string]string{
			"sessions":    strconv.Itoa(report.Sessions),
			"rate_limits": strconv.Itoa(report.RateLimits),
		}
	})
	return report, err
}

// sweepFallback judges limiter records written without an expiry. It uses
// the longest configured window and lockout so no live record is removed.
func (e *Engine) sweepFallback() LimitRule {
	var out LimitRule
	for _, r := range e.limitRules() {
		if r.MaxAttempts > out.MaxAttempts {
			out.MaxAttempts = r.MaxAttempts
		}
		if r.Window > out.Window {
			out.Window = r.Window
		}
		if r.Lockout > out.Lockout {
			out.Lockout = r.Lockout
		}
	}
	return out
}

// RunSweeper calls Sweep every interval until ctx is done. A non-positive
// interval uses RateLimit.SweepInterval. Sweep errors are logged.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = e.config.RateLimit.SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := e.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				e.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			e.logger.Debug().
				Int("sessions", report.Sessions).
				Int("rate_limits", report.RateLimits).
				Msg("sweep completed")
		}
	}
}
