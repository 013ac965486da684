package tokenauth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/tokenauth/internal/actiontoken"
	"github.com/MrEthical07/tokenauth/internal/rate"
	"github.com/MrEthical07/tokenauth/jwt"
	"github.com/MrEthical07/tokenauth/password"
	"github.com/MrEthical07/tokenauth/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrEthical07/tokenauth"

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    UserRepository
	notifier Notifier
	hasher   password.Hasher
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time

	built bool
}

// New returns a Builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing refresh sessions and persistent limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserRepository sets the user persistence adapter.
func (b *Builder) WithUserRepository(repo UserRepository) *Builder {
	b.users = repo
	return b
}

// WithNotifier sets the outbound email adapter.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithLogger sets the structured logger. The default discards.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithMetrics sets the Prometheus collectors the engine updates.
func (b *Builder) WithMetrics(m *Metrics) *Builder {
	b.metrics = m
	return b
}

// WithTracer sets the tracer used for flow spans. The default is the global
// provider's tracer.
func (b *Builder) WithTracer(t trace.Tracer) *Builder {
	b.tracer = t
	return b
}

// WithClock overrides time.Now for token issuance, action-token expiry and
// in-memory limiters. Redis-side TTLs are unaffected.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracer := b.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	}, jwt.WithTimeFunc(now))
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHER --------
	hasher := b.hasher
	if hasher == nil {
		switch cfg.Password.Algorithm {
		case password.AlgorithmBcrypt:
			hasher, err = password.NewBcrypt(cfg.Password.BcryptCost)
		default:
			hasher, err = password.NewArgon2(cfg.Password.Argon2)
		}
		if err != nil {
			return nil, err
		}
	}
	dummyHash, err := hasher.Hash("timing-equalization-placeholder")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	// -------- RATE LIMITERS --------
	login, err := b.limiter(cfg.RateLimit.RedisPrefix+":login", cfg.RateLimit.Login, now)
	if err != nil {
		return nil, err
	}
	forgot, err := b.limiter(cfg.RateLimit.RedisPrefix+":forgot", cfg.RateLimit.ForgotPassword, now)
	if err != nil {
		return nil, err
	}
	resend, err := b.limiter(cfg.RateLimit.RedisPrefix+":resend", cfg.RateLimit.ResendVerification, now)
	if err != nil {
		return nil, err
	}

	// -------- MAIL TEMPLATES --------
	templates, err := newMailer(cfg.Notify)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:        cfg,
		users:         b.users,
		notifier:      b.notifier,
		sessions:      session.NewStore(b.redis, cfg.Session.RedisPrefix),
		loginLimiter:  login,
		forgotLimiter: forgot,
		resendLimiter: resend,
		actions: actiontoken.NewIssuer(b.users, actiontoken.Config{
			VerificationTTL: cfg.ActionTokens.VerificationTTL,
			ResetTTL:        cfg.ActionTokens.ResetTTL,
		}, now),
		jwt:       jm,
		hasher:    hasher,
		dummyHash: dummyHash,
		templates: templates,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		now:       now,
	}

	b.built = true

	return engine, nil
}

func (b *Builder) limiter(prefix string, lc LimiterConfig, now func() time.Time) (rate.Limiter, error) {
	if !lc.Enabled {
		return nil, nil
	}
	if lc.Persistent {
		return rate.NewRedisLimiter(b.redis, prefix, lc.policy())
	}
	return rate.NewMemoryLimiter(lc.policy(), now)
}
