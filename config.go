package tokenauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/password"
)

// Config holds every tunable of the [Engine]. Pass it to [Builder.WithConfig];
// the engine keeps a private copy.
type Config struct {
	JWT               JWTConfig
	Session           SessionConfig
	RateLimit         RateLimitConfig
	ActionTokens      ActionTokenConfig
	EmailVerification EmailVerificationConfig
	Password          PasswordConfig
	Notify            NotifyConfig
	Timeouts          TimeoutConfig
	Production        bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access and refresh token signing.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	AccessSecret  []byte
	RefreshSecret []byte
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls refresh-token persistence.
type SessionConfig struct {
	RedisPrefix string
	// RevokeOnPasswordReset deletes every refresh session of the user when a
	// reset or change of password succeeds.
	RevokeOnPasswordReset bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// LimiterConfig is one endpoint class budget.
type LimiterConfig struct {
	Enabled       bool
	Points        int
	Duration      time.Duration
	BlockDuration time.Duration
	// Persistent selects the Redis backend; otherwise counters live in memory.
	Persistent bool
}

func (l LimiterConfig) policy() rate.Policy {
	return rate.Policy{Points: l.Points, Duration: l.Duration, BlockDuration: l.BlockDuration}
}

// RateLimitConfig holds the per-endpoint limiter budgets. Keys are the
// client IP attached with [WithClientIP].
type RateLimitConfig struct {
	RedisPrefix        string
	Login              LimiterConfig
	ForgotPassword     LimiterConfig
	ResendVerification LimiterConfig
}

/*
====================================
ACTION TOKEN CONFIG
====================================
*/

// ActionTokenConfig sets single-use token lifetimes.
type ActionTokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// EmailVerificationConfig controls the verified-email gate on login.
type EmailVerificationConfig struct {
	RequireForLogin bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hash algorithm and strength policy.
type PasswordConfig struct {
	Algorithm  string // "argon2id" (default) or "bcrypt"
	Argon2     password.Config
	BcryptCost int
	Policy     password.Policy
}

// NotifyConfig controls outbound email content.
type NotifyConfig struct {
	// BaseURL prefixes the links put in verification and reset emails.
	BaseURL string
	AppName string
}

// TimeoutConfig bounds every call to an external collaborator.
type TimeoutConfig struct {
	Store      time.Duration
	Repository time.Duration
	Notifier   time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns development defaults. Secrets are left empty and must
// be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Session: SessionConfig{
			RedisPrefix:           "refresh",
			RevokeOnPasswordReset: true,
		},
		RateLimit: RateLimitConfig{
			RedisPrefix: "rl",
			Login: LimiterConfig{
				Enabled:       true,
				Points:        5,
				Duration:      15 * time.Minute,
				BlockDuration: 30 * time.Minute,
				Persistent:    true,
			},
			ForgotPassword: LimiterConfig{
				Enabled:  true,
				Points:   5,
				Duration: 15 * time.Minute,
			},
			ResendVerification: LimiterConfig{
				Enabled:  true,
				Points:   3,
				Duration: 15 * time.Minute,
			},
		},
		ActionTokens: ActionTokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			RequireForLogin: true,
		},
		Password: PasswordConfig{
			Algorithm:  password.AlgorithmArgon2id,
			Argon2:     password.DefaultConfig(),
			BcryptCost: password.DefaultBcryptCost,
			Policy:     password.DefaultPolicy(),
		},
		Notify: NotifyConfig{
			BaseURL: "http://localhost:3000",
			AppName: "tokenauth",
		},
		Timeouts: TimeoutConfig{
			Store:      2 * time.Second,
			Repository: 3 * time.Second,
			Notifier:   10 * time.Second,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
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

const minProductionSecretBytes = 32

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
			return errors.New("hs256 requires AccessSecret and RefreshSecret")
		}
		if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
			return errors.New("AccessSecret and RefreshSecret must differ")
		}
		if c.Production && (len(c.JWT.AccessSecret) < minProductionSecretBytes || len(c.JWT.RefreshSecret) < minProductionSecretBytes) {
			return fmt.Errorf("JWT secrets must be at least %d bytes in production", minProductionSecretBytes)
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}

	// Rate limits
	for name, l := range map[string]LimiterConfig{
		"Login":              c.RateLimit.Login,
		"ForgotPassword":     c.RateLimit.ForgotPassword,
		"ResendVerification": c.RateLimit.ResendVerification,
	} {
		if !l.Enabled {
			continue
		}
		if err := l.policy().Validate(); err != nil {
			return fmt.Errorf("RateLimit %s: %w", name, err)
		}
	}

	// Action tokens
	if c.ActionTokens.VerificationTTL <= 0 {
		return errors.New("ActionTokens VerificationTTL must be > 0")
	}
	if c.ActionTokens.ResetTTL <= 0 {
		return errors.New("ActionTokens ResetTTL must be > 0")
	}

	// Password
	switch strings.ToLower(c.Password.Algorithm) {
	case "", password.AlgorithmArgon2id, password.AlgorithmBcrypt:
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}

	// Notify
	if c.Notify.BaseURL != "" {
		u, err := url.Parse(c.Notify.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("Notify BaseURL must be an absolute http(s) URL")
		}
	}

	// Timeouts
	if c.Timeouts.Store <= 0 || c.Timeouts.Repository <= 0 || c.Timeouts.Notifier <= 0 {
		return errors.New("Timeouts must be > 0")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a non-fatal configuration concern.
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

// Lint reports settings that are valid but risky. Run it at startup and log
// the result.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) { ws = append(ws, LintWarning{Code: code, Message: msg}) }

	if c.JWT.AccessTTL > 30*time.Minute {
		add("access_ttl_long", "access tokens live longer than 30m")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30 days")
	}
	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT leeway above 1m")
	}
	if !c.RateLimit.Login.Enabled {
		add("login_rate_limit_disabled", "login attempts are not rate limited")
	}
	if !c.RateLimit.ForgotPassword.Enabled || !c.RateLimit.ResendVerification.Enabled {
		add("email_rate_limit_disabled", "email-sending endpoints are not rate limited")
	}
	if c.RateLimit.Login.Enabled && !c.RateLimit.Login.Persistent {
		add("login_rate_limit_in_memory", "login budgets reset on restart and are per replica")
	}
	if !c.EmailVerification.RequireForLogin {
		add("unverified_login_allowed", "unverified accounts may log in")
	}
	if !c.Session.RevokeOnPasswordReset {
		add("sessions_survive_reset", "refresh sessions survive a password reset")
	}
	if c.Production && strings.HasPrefix(c.Notify.BaseURL, "http://") {
		add("insecure_base_url", "email links use plain http in production")
	}
	return ws
}
