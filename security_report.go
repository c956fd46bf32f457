package goGuard

import "time"

// SecurityReport summarizes the security-relevant settings an Engine runs
// with. Binaries log it at startup.
type SecurityReport struct {
	JWTEnabled       bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	SessionTTL       time.Duration
	RememberMeTTL    time.Duration
	Argon2           PasswordConfigReport

	RateLimitBackend string
	LoginLimit       LimitRule
	OTPProvider      string
	ActivityBackend  string

	PolicyMinLength       int
	HashedReuseHistory    bool
	ReuseWindow           int
	RevokeOnPasswordReset bool
	SecureCookies         bool
	AuditEnabled          bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config

	r := SecurityReport{
		JWTEnabled:    c.JWT.Enabled,
		SessionTTL:    c.Session.DefaultTTL,
		RememberMeTTL: c.Session.RememberMeTTL,
		Argon2: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
		RateLimitBackend:      c.RateLimit.Backend,
		LoginLimit:            c.RateLimit.Login,
		OTPProvider:           c.OTP.Provider,
		ActivityBackend:       c.Activity.Backend,
		PolicyMinLength:       c.Password.Policy.MinLength,
		HashedReuseHistory:    c.Password.HistoryHashing && c.Password.Policy.PreventPasswordReuse > 0,
		ReuseWindow:           c.Password.Policy.PreventPasswordReuse,
		RevokeOnPasswordReset: c.Security.RevokeSessionsOnPasswordChange,
		SecureCookies:         c.Security.RequireSecureCookies,
		AuditEnabled:          c.Audit.Enabled,
	}
	if c.JWT.Enabled {
		r.SigningAlgorithm = c.JWT.SigningMethod
		r.AccessTTL = c.JWT.AccessTTL
	}
	return r
}
