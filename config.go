package goGuard

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/password"
)

// Config is the complete Engine configuration. Start from [DefaultConfig]
// and override what you need; [Builder.Build] validates it once.
type Config struct {
	Session   SessionConfig
	Profile   ProfileConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
	Activity  ActivityConfig
	OTP       OTPConfig
	JWT       JWTConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	RedisPrefix      string
	DefaultTTL       time.Duration
	RememberMeTTL    time.Duration
	DefaultExtension time.Duration
	CookieName       string
	// ValidateTimeout bounds ValidateSession when the caller's context has
	// no earlier deadline. A timed-out validation reports no session.
	ValidateTimeout time.Duration
}

/*
====================================
PROFILE CONFIG
====================================
*/

type ProfileConfig struct {
	RedisPrefix string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// LimitRule is one per-action attempt budget.
type LimitRule struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

func (r LimitRule) rate() rate.Config {
	return rate.Config{
		MaxAttempts:     r.MaxAttempts,
		Window:          r.Window,
		LockoutDuration: r.Lockout,
	}
}

type RateLimitConfig struct {
	Backend       string // "redis" (default) or "memory"
	Prefix        string
	Login         LimitRule
	PasswordReset LimitRule
	SMS           LimitRule
	SweepInterval time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Policy password.Policy

	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// HistoryHashing keeps argon2id hashes of previous passwords on the
	// profile and enforces Policy.PreventPasswordReuse against them.
	HistoryHashing bool
}

func (c PasswordConfig) argon2() password.Config {
	cfg := password.DefaultConfig()
	cfg.Memory = c.Memory
	cfg.Time = c.Time
	cfg.Parallelism = c.Parallelism
	cfg.SaltLength = c.SaltLength
	cfg.KeyLength = c.KeyLength
	return cfg
}

/*
====================================
ACTIVITY CONFIG
====================================
*/

type ActivityConfig struct {
	Backend      string // "redis" (default), "postgres" or "none"
	RedisPrefix  string
	DefaultLimit int
}

/*
====================================
OTP CONFIG
====================================
*/

// OTP provider names accepted by OTPConfig.Provider.
const (
	OTPProviderDelegated = "delegated"
	OTPProviderLocal     = "local"
)

type OTPConfig struct {
	Provider    string // OTPProviderDelegated (default) or OTPProviderLocal
	RedisPrefix string
	CodeTTL     time.Duration
	Digits      int
	MaxAttempts int
}

/*
====================================
JWT CONFIG
====================================
*/

type JWTConfig struct {
	Enabled       bool
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	RevokeSessionsOnPasswordChange bool
	RequireSecureCookies           bool
	SameSitePolicy                 http.SameSite
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used by [New].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix:      "gs",
			DefaultTTL:       24 * time.Hour,
			RememberMeTTL:    7 * 24 * time.Hour,
			DefaultExtension: 7 * 24 * time.Hour,
			CookieName:       "session",
			ValidateTimeout:  2 * time.Second,
		},
		Profile: ProfileConfig{
			RedisPrefix: "gusr",
		},
		RateLimit: RateLimitConfig{
			Backend:       "redis",
			Prefix:        "grl",
			Login:         LimitRule{MaxAttempts: 5, Window: 15 * time.Minute, Lockout: 30 * time.Minute},
			PasswordReset: LimitRule{MaxAttempts: 3, Window: time.Hour, Lockout: time.Hour},
			SMS:           LimitRule{MaxAttempts: 3, Window: 15 * time.Minute, Lockout: 30 * time.Minute},
			SweepInterval: 5 * time.Minute,
		},
		Password: PasswordConfig{
			Policy:         password.DefaultPolicy(),
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			HistoryHashing: true,
		},
		Activity: ActivityConfig{
			Backend:      "redis",
			RedisPrefix:  "gact",
			DefaultLimit: 50,
		},
		OTP: OTPConfig{
			Provider:    OTPProviderDelegated,
			RedisPrefix: "gotp",
			CodeTTL:     5 * time.Minute,
			Digits:      6,
			MaxAttempts: 5,
		},
		JWT: JWTConfig{
			Enabled:       false,
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "goguard",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			RevokeSessionsOnPasswordChange: true,
			RequireSecureCookies:           true,
			SameSitePolicy:                 http.SameSiteLaxMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	// Session
	if c.Session.DefaultTTL <= 0 {
		return errors.New("Session DefaultTTL must be > 0")
	}
	if c.Session.RememberMeTTL <= 0 {
		return errors.New("Session RememberMeTTL must be > 0")
	}
	if c.Session.DefaultExtension <= 0 {
		return errors.New("Session DefaultExtension must be > 0")
	}
	if c.Session.CookieName == "" {
		return errors.New("Session CookieName must be set")
	}
	if c.Session.ValidateTimeout < 0 {
		return errors.New("Session ValidateTimeout must be >= 0")
	}

	// Rate limits
	switch c.RateLimit.Backend {
	case "redis", "memory":
	default:
		return errors.New("RateLimit Backend must be 'redis' or 'memory'")
	}
	for name, rule := range map[string]LimitRule{
		"Login":         c.RateLimit.Login,
		"PasswordReset": c.RateLimit.PasswordReset,
		"SMS":           c.RateLimit.SMS,
	} {
		if err := rule.rate().Validate(); err != nil {
			return errors.New("RateLimit " + name + ": " + err.Error())
		}
	}
	if c.RateLimit.SweepInterval < 0 {
		return errors.New("RateLimit SweepInterval must be >= 0")
	}

	// Password
	if c.Password.Policy.MinLength < 1 {
		return errors.New("Password Policy MinLength must be >= 1")
	}
	if c.Password.Policy.PreventPasswordReuse < 0 {
		return errors.New("Password Policy PreventPasswordReuse must be >= 0")
	}
	if _, err := password.NewArgon2(c.Password.argon2()); err != nil {
		return errors.New("Password: " + err.Error())
	}

	// Activity
	switch c.Activity.Backend {
	case "redis", "postgres", "none":
	default:
		return errors.New("Activity Backend must be 'redis', 'postgres' or 'none'")
	}
	if c.Activity.DefaultLimit <= 0 {
		return errors.New("Activity DefaultLimit must be > 0")
	}

	// OTP
	switch c.OTP.Provider {
	case OTPProviderDelegated:
	case OTPProviderLocal:
		if c.OTP.CodeTTL <= 0 {
			return errors.New("OTP CodeTTL must be > 0")
		}
		if c.OTP.Digits != 6 && c.OTP.Digits != 8 {
			return errors.New("OTP Digits must be 6 or 8")
		}
		if c.OTP.MaxAttempts <= 0 {
			return errors.New("OTP MaxAttempts must be > 0")
		}
	default:
		return errors.New("OTP Provider must be 'delegated' or 'local'")
	}

	// JWT
	if c.JWT.Enabled {
		if c.JWT.AccessTTL <= 0 {
			return errors.New("JWT AccessTTL must be > 0")
		}
		if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
			return errors.New("unsupported JWT signing method")
		}
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("JWT requires PrivateKey")
		}
		if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
		if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 PrivateKey must be at least 256 bits")
		}
		if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
			return errors.New("JWT Leeway must be between 0 and 2m")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Security
	if c.Security.SameSitePolicy == http.SameSiteNoneMode && !c.Security.RequireSecureCookies {
		return errors.New("SameSite=None requires RequireSecureCookies")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning flags a valid but risky setting.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint returns warnings for settings that pass Validate but weaken the
// deployment.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if !c.Security.RequireSecureCookies {
		add("insecure_cookies", "session cookie is sent over plain HTTP")
	}
	if c.RateLimit.Backend == "memory" {
		add("memory_rate_backend", "rate limits are per process and reset on restart")
	}
	if c.RateLimit.Login.Lockout < c.RateLimit.Login.Window {
		add("lockout_shorter_than_window", "login lockout ends before the attempt window")
	}
	if c.Activity.Backend == "none" {
		add("activity_disabled", "security activity is not recorded")
	}
	if !c.Password.HistoryHashing || c.Password.Policy.PreventPasswordReuse == 0 {
		add("reuse_check_disabled", "password reuse is not checked")
	}
	if c.Session.RememberMeTTL < c.Session.DefaultTTL {
		add("remember_me_shorter", "remember-me sessions expire before regular sessions")
	}
	if c.JWT.Enabled && c.JWT.AccessTTL > time.Hour {
		add("access_ttl_long", "access tokens outlive revocation for over an hour")
	}
	if c.JWT.Enabled && c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT clock skew leeway is over a minute")
	}
	return ws
}
