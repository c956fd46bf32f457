package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

const AuditDroppedName = "goguard_audit_dropped_total"
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

const AuditDroppedByEventName = "goguard_audit_dropped_events_total"
const AuditDroppedByEventHelp = "Audit events dropped, by audit event type."

var CounterDefs = []CounterDef{
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful logins."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: goGuard.MetricLoginRateLimited, Name: "goguard_login_rate_limited_total", Help: "Logins rejected by the rate limiter."},
	{ID: goGuard.MetricLoginAccountBlocked, Name: "goguard_login_account_blocked_total", Help: "Logins rejected for locked or suspended accounts."},
	{ID: goGuard.MetricLoginSessionDegraded, Name: "goguard_login_session_degraded_total", Help: "Logins that fell back to a synthesized session."},
	{ID: goGuard.MetricSignupSuccess, Name: "goguard_signup_success_total", Help: "Successful signups."},
	{ID: goGuard.MetricSignupFailure, Name: "goguard_signup_failure_total", Help: "Failed signups."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Sessions persisted."},
	{ID: goGuard.MetricSessionRevoked, Name: "goguard_session_revoked_total", Help: "Sessions revoked by id."},
	{ID: goGuard.MetricSessionValidated, Name: "goguard_session_validated_total", Help: "Session validations that returned a session."},
	{ID: goGuard.MetricSessionRejected, Name: "goguard_session_rejected_total", Help: "Session validations that returned nothing."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Single-session logouts."},
	{ID: goGuard.MetricLogoutAll, Name: "goguard_logout_all_total", Help: "Revoke-all operations."},
	{ID: goGuard.MetricPasswordChangeSuccess, Name: "goguard_password_change_success_total", Help: "Successful password changes."},
	{ID: goGuard.MetricPasswordChangeFailure, Name: "goguard_password_change_failure_total", Help: "Password changes rejected by re-authentication or the provider."},
	{ID: goGuard.MetricPasswordPolicyRejected, Name: "goguard_password_policy_rejected_total", Help: "Passwords rejected by policy."},
	{ID: goGuard.MetricPasswordReuseRejected, Name: "goguard_password_reuse_rejected_total", Help: "Passwords rejected as recently used."},
	{ID: goGuard.MetricPasswordResetRequest, Name: "goguard_password_reset_request_total", Help: "Password reset requests."},
	{ID: goGuard.MetricPasswordResetComplete, Name: "goguard_password_reset_complete_total", Help: "Completed password resets."},
	{ID: goGuard.MetricEmailVerificationSent, Name: "goguard_email_verification_sent_total", Help: "Verification emails sent."},
	{ID: goGuard.MetricSMSCodeSent, Name: "goguard_sms_code_sent_total", Help: "SMS verification codes sent."},
	{ID: goGuard.MetricSMSCodeVerified, Name: "goguard_sms_code_verified_total", Help: "SMS codes verified."},
	{ID: goGuard.MetricSMSCodeFailure, Name: "goguard_sms_code_failure_total", Help: "SMS codes rejected."},
	{ID: goGuard.MetricMFAEnabled, Name: "goguard_mfa_enabled_total", Help: "Second factors enrolled."},
	{ID: goGuard.MetricMFADisabled, Name: "goguard_mfa_disabled_total", Help: "Second factors removed."},
	{ID: goGuard.MetricRateLimitHit, Name: "goguard_rate_limit_hit_total", Help: "Rate-limit checks that denied an attempt."},
	{ID: goGuard.MetricAccountStatusChanged, Name: "goguard_account_status_changed_total", Help: "Administrative account status changes."},
	{ID: goGuard.MetricSweepSessionsDeleted, Name: "goguard_sweep_sessions_deleted_total", Help: "Expired sessions deleted by the sweeper."},
	{ID: goGuard.MetricSweepRateLimitsDeleted, Name: "goguard_sweep_rate_limits_deleted_total", Help: "Stale rate-limit records deleted by the sweeper."},
	{ID: goGuard.MetricBestEffortFailure, Name: "goguard_best_effort_failure_total", Help: "Side calls that failed without failing the request."},
}

var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricValidateLatency, Name: "goguard_validate_latency_seconds", Help: "Session validation latency."},
}

// HistogramUpperBounds are the bucket limits in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into the fixed bucket layout, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
