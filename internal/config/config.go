// Package config loads tokenauthd settings from the environment and an
// optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/tokenauth"
)

// Store and notifier backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	NotifierLog  = "log"
	NotifierSMTP = "smtp"
	NotifierNATS = "nats"
)

// Config holds process settings for tokenauthd.
type Config struct {
	Env        string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	HTTPAddr   string `mapstructure:"HTTP_ADDR"`
	ClientURL  string `mapstructure:"CLIENT_URL"`
	TrustProxy bool   `mapstructure:"TRUST_PROXY"`

	LogFormat string `mapstructure:"LOG_FORMAT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	UserStore   string `mapstructure:"USER_STORE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	Notifier     string `mapstructure:"NOTIFIER"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	NATSURL      string `mapstructure:"NATS_URL"`
	NATSSubject  string `mapstructure:"NATS_SUBJECT"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	JWTSigningMethod   string        `mapstructure:"JWT_SIGNING_METHOD"`
	AccessTokenSecret  string        `mapstructure:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `mapstructure:"REFRESH_TOKEN_SECRET"`
	JWTPrivateKey      string        `mapstructure:"JWT_PRIVATE_KEY"`
	JWTPublicKey       string        `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer          string        `mapstructure:"JWT_ISSUER"`
	JWTAudience        string        `mapstructure:"JWT_AUDIENCE"`
	AccessTokenTTL     time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL    time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	LoginRateLimitEnabled bool   `mapstructure:"LOGIN_RATE_LIMIT_ENABLED"`
	RequireVerifiedEmail  bool   `mapstructure:"REQUIRE_VERIFIED_EMAIL"`
	PasswordAlgorithm     string `mapstructure:"PASSWORD_ALGORITHM"`
	BcryptCost            int    `mapstructure:"BCRYPT_COST"`
}

// Load reads envFile (".env" when empty; a missing default file is ignored),
// then overlays the process environment.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !isNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	defaults := tokenauth.DefaultConfig()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", defaults.Notify.AppName)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CLIENT_URL", defaults.Notify.BaseURL)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("USER_STORE", StoreMemory)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("NOTIFIER", NotifierLog)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("NATS_SUBJECT", "tokenauth.email")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("JWT_SIGNING_METHOD", defaults.JWT.SigningMethod)
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("ACCESS_TOKEN_TTL", defaults.JWT.AccessTTL.String())
	v.SetDefault("REFRESH_TOKEN_TTL", defaults.JWT.RefreshTTL.String())
	v.SetDefault("LOGIN_RATE_LIMIT_ENABLED", defaults.RateLimit.Login.Enabled)
	v.SetDefault("REQUIRE_VERIFIED_EMAIL", defaults.EmailVerification.RequireForLogin)
	v.SetDefault("PASSWORD_ALGORITHM", defaults.Password.Algorithm)
	v.SetDefault("BCRYPT_COST", defaults.Password.BcryptCost)
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.UserStore {
	case StoreMemory:
		if c.Production() {
			return errors.New("config: USER_STORE=memory is not allowed when APP_ENV=production")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for USER_STORE=postgres")
		}
	default:
		return fmt.Errorf("config: unknown USER_STORE %q", c.UserStore)
	}
	switch c.Notifier {
	case NotifierLog:
	case NotifierSMTP:
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return errors.New("config: SMTP_HOST and SMTP_FROM are required for NOTIFIER=smtp")
		}
	case NotifierNATS:
		if c.NATSURL == "" {
			return errors.New("config: NATS_URL is required for NOTIFIER=nats")
		}
	default:
		return fmt.Errorf("config: unknown NOTIFIER %q", c.Notifier)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Engine builds the engine configuration. Settings without an environment
// variable keep their tokenauth.DefaultConfig values.
func (c *Config) Engine() tokenauth.Config {
	cfg := tokenauth.DefaultConfig()

	cfg.Production = c.Production()
	cfg.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	cfg.JWT.AccessSecret = []byte(c.AccessTokenSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshTokenSecret)
	cfg.JWT.PrivateKey = []byte(c.JWTPrivateKey)
	cfg.JWT.PublicKey = []byte(c.JWTPublicKey)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTokenTTL
	cfg.JWT.RefreshTTL = c.RefreshTokenTTL

	cfg.RateLimit.Login.Enabled = c.LoginRateLimitEnabled
	cfg.EmailVerification.RequireForLogin = c.RequireVerifiedEmail

	cfg.Password.Algorithm = strings.ToLower(c.PasswordAlgorithm)
	cfg.Password.BcryptCost = c.BcryptCost

	cfg.Notify.BaseURL = c.ClientURL
	cfg.Notify.AppName = c.AppName
	return cfg
}
