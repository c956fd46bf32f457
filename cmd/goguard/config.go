package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/spf13/viper"
)

// settings is the flat, env-friendly view of the service configuration.
// Every key can be set as GOGUARD_<KEY> with dots replaced by underscores.
type settings struct {
	Dev bool `mapstructure:"dev"`

	HTTP struct {
		Addr              string        `mapstructure:"addr"`
		AllowedOrigins    []string      `mapstructure:"allowed_origins"`
		RequestsPerMinute int           `mapstructure:"requests_per_minute"`
		ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Session struct {
		TTL           time.Duration `mapstructure:"ttl"`
		RememberMeTTL time.Duration `mapstructure:"remember_me_ttl"`
		SecureCookies bool          `mapstructure:"secure_cookies"`
	} `mapstructure:"session"`

	RateLimit struct {
		Backend       string        `mapstructure:"backend"`
		SweepInterval time.Duration `mapstructure:"sweep_interval"`
	} `mapstructure:"ratelimit"`

	Activity struct {
		Backend     string `mapstructure:"backend"`
		PostgresDSN string `mapstructure:"postgres_dsn"`
	} `mapstructure:"activity"`

	OTP struct {
		Provider        string  `mapstructure:"provider"`
		SMSLocalAPIKey  string  `mapstructure:"smslocal_api_key"`
		SMSLocalBaseURL string  `mapstructure:"smslocal_base_url"`
		SendsPerSecond  float64 `mapstructure:"sends_per_second"`
	} `mapstructure:"otp"`

	JWT struct {
		Enabled   bool          `mapstructure:"enabled"`
		Secret    string        `mapstructure:"secret"`
		AccessTTL time.Duration `mapstructure:"access_ttl"`
		Issuer    string        `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Audit struct {
		Enabled     bool   `mapstructure:"enabled"`
		NATSURL     string `mapstructure:"nats_url"`
		NATSSubject string `mapstructure:"nats_subject"`
	} `mapstructure:"audit"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	def := goGuard.DefaultConfig()

	v.SetDefault("dev", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.requests_per_minute", 120)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("session.ttl", def.Session.DefaultTTL)
	v.SetDefault("session.remember_me_ttl", def.Session.RememberMeTTL)
	v.SetDefault("session.secure_cookies", true)

	v.SetDefault("ratelimit.backend", def.RateLimit.Backend)
	v.SetDefault("ratelimit.sweep_interval", def.RateLimit.SweepInterval)

	v.SetDefault("activity.backend", def.Activity.Backend)
	v.SetDefault("activity.postgres_dsn", "")

	v.SetDefault("otp.provider", goGuard.OTPProviderLocal)
	v.SetDefault("otp.smslocal_api_key", "")
	v.SetDefault("otp.smslocal_base_url", "")
	v.SetDefault("otp.sends_per_second", 5.0)

	v.SetDefault("jwt.enabled", false)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", def.JWT.AccessTTL)
	v.SetDefault("jwt.issuer", def.JWT.Issuer)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.nats_url", "")
	v.SetDefault("audit.nats_subject", "goguard.audit")

	v.SetDefault("metrics.enabled", true)
}

// bindSettings reads the optional config file and the GOGUARD_ environment.
// A missing file is only an error when it was named explicitly.
func bindSettings(v *viper.Viper, configFile string) error {
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	} else {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("GOGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return nil
}

func loadSettings(v *viper.Viper) (*settings, error) {
	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	if s.HTTP.Addr == "" {
		return nil, errors.New("config: http.addr must be set")
	}
	if s.Redis.Addr == "" && !s.Dev {
		return nil, errors.New("config: redis.addr must be set outside --dev")
	}
	if s.Activity.Backend == "postgres" && s.Activity.PostgresDSN == "" {
		return nil, errors.New("config: activity.postgres_dsn must be set for the postgres backend")
	}
	return &s, nil
}

// engineConfig maps the service settings onto the library configuration.
func (s *settings) engineConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()

	cfg.Session.DefaultTTL = s.Session.TTL
	cfg.Session.RememberMeTTL = s.Session.RememberMeTTL
	cfg.Security.RequireSecureCookies = s.Session.SecureCookies && !s.Dev
	cfg.Security.SameSitePolicy = http.SameSiteLaxMode

	cfg.RateLimit.Backend = s.RateLimit.Backend
	cfg.RateLimit.SweepInterval = s.RateLimit.SweepInterval

	cfg.Activity.Backend = s.Activity.Backend
	cfg.OTP.Provider = s.OTP.Provider

	if s.JWT.Enabled {
		cfg.JWT.Enabled = true
		cfg.JWT.SigningMethod = "hs256"
		cfg.JWT.PrivateKey = []byte(s.JWT.Secret)
		cfg.JWT.AccessTTL = s.JWT.AccessTTL
		cfg.JWT.Issuer = s.JWT.Issuer
	}

	cfg.Audit.Enabled = s.Audit.Enabled
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.Enabled
	return cfg
}
