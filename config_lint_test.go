package tokenauth

import (
	"slices"
	"testing"
	"time"
)

func TestLintDefaultsAreQuiet(t *testing.T) {
	cfg := validConfig()
	if codes := cfg.Lint().Codes(); len(codes) != 0 {
		t.Fatalf("default config should lint clean, got %v", codes)
	}
}

func TestLintWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"long access ttl", func(c *Config) { c.JWT.AccessTTL = time.Hour }, "access_ttl_long"},
		{"long refresh ttl", func(c *Config) { c.JWT.RefreshTTL = 60 * 24 * time.Hour }, "refresh_ttl_long"},
		{"large leeway", func(c *Config) { c.JWT.Leeway = 90 * time.Second }, "leeway_large"},
		{"login limiter off", func(c *Config) { c.RateLimit.Login.Enabled = false }, "login_rate_limit_disabled"},
		{"forgot limiter off", func(c *Config) { c.RateLimit.ForgotPassword.Enabled = false }, "email_rate_limit_disabled"},
		{"login limiter in memory", func(c *Config) { c.RateLimit.Login.Persistent = false }, "login_rate_limit_in_memory"},
		{"unverified login", func(c *Config) { c.EmailVerification.RequireForLogin = false }, "unverified_login_allowed"},
		{"sessions survive reset", func(c *Config) { c.Session.RevokeOnPasswordReset = false }, "sessions_survive_reset"},
		{"plain http in production", func(c *Config) { c.Production = true }, "insecure_base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if codes := cfg.Lint().Codes(); !slices.Contains(codes, tt.code) {
				t.Fatalf("expected %q in %v", tt.code, codes)
			}
		})
	}
}
