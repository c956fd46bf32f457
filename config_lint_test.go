package goGuard

import (
	"testing"
	"time"
)

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

func TestLintDefaultConfigNoWarnings(t *testing.T) {
	cfg := defaultConfig()
	if ws := cfg.Lint(); len(ws) != 0 {
		t.Fatalf("expected no warnings for default config, got %v", ws.Codes())
	}
}

func TestLintWarnings(t *testing.T) {
	tests := []struct {
		code   string
		mutate func(*Config)
	}{
		{"insecure_cookies", func(c *Config) { c.Security.RequireSecureCookies = false }},
		{"memory_rate_backend", func(c *Config) { c.RateLimit.Backend = "memory" }},
		{"lockout_shorter_than_window", func(c *Config) { c.RateLimit.Login.Lockout = time.Minute }},
		{"activity_disabled", func(c *Config) { c.Activity.Backend = "none" }},
		{"reuse_check_disabled", func(c *Config) { c.Password.HistoryHashing = false }},
		{"reuse_check_disabled", func(c *Config) { c.Password.Policy.PreventPasswordReuse = 0 }},
		{"remember_me_shorter", func(c *Config) { c.Session.RememberMeTTL = time.Hour }},
		{"access_ttl_long", func(c *Config) {
			c.JWT.Enabled = true
			c.JWT.AccessTTL = 2 * time.Hour
		}},
		{"leeway_large", func(c *Config) {
			c.JWT.Enabled = true
			c.JWT.Leeway = 90 * time.Second
		}},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			ws := cfg.Lint()
			if !containsCode(ws.Codes(), tc.code) {
				t.Fatalf("expected %s warning, got %v", tc.code, ws.Codes())
			}
			for _, w := range ws {
				if w.Message == "" {
					t.Fatalf("warning %s has no message", w.Code)
				}
			}
		})
	}
}

func TestLintJWTWarningsOnlyWhenEnabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWT.AccessTTL = 2 * time.Hour
	cfg.JWT.Leeway = 90 * time.Second

	codes := cfg.Lint().Codes()
	if containsCode(codes, "access_ttl_long") || containsCode(codes, "leeway_large") {
		t.Fatalf("expected no JWT warnings when JWT is disabled, got %v", codes)
	}
}
