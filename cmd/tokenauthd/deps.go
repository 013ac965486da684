package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/MrEthical07/tokenauth/internal/config"
	"github.com/MrEthical07/tokenauth/notify"
	"github.com/MrEthical07/tokenauth/userstore/memory"
	"github.com/MrEthical07/tokenauth/userstore/postgres"
)

const (
	connectAttempts = 6
	connectBase     = 250 * time.Millisecond
)

// withRetry runs connect with capped exponential backoff. Every failure is
// treated as retryable until the attempts run out.
func withRetry(ctx context.Context, logger *slog.Logger, what string, connect func(context.Context) error) error {
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.WithCappedDuration(5*time.Second, retry.NewExponential(connectBase)))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := connect(ctx); err != nil {
			logger.WarnContext(ctx, "dependency not ready", "dependency", what, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

func connectRedis(ctx context.Context, logger *slog.Logger, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("key", "REDIS_URL").Wrap(err)
	}
	client := redis.NewClient(opts)
	err = withRetry(ctx, logger, "redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").Wrap(err)
	}
	return client, nil
}

func connectPostgres(ctx context.Context, logger *slog.Logger, dsn string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	err := withRetry(ctx, logger, "postgres", func(ctx context.Context) error {
		p, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// userStore is the repository plus what serve needs around it.
type userStore struct {
	repo   tokenauth.UserRepository
	checks map[string]httpapi.HealthCheck
	close  func()
}

func openUserStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*userStore, error) {
	if cfg.UserStore == config.StoreMemory {
		logger.Warn("using in-memory user store; accounts are lost on restart")
		return &userStore{repo: memory.New(), close: func() {}}, nil
	}

	pool, err := connectPostgres(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	repo := postgres.New(pool)
	return &userStore{
		repo:   repo,
		checks: map[string]httpapi.HealthCheck{"postgres": repo.Ping},
		close:  pool.Close,
	}, nil
}

func openNotifier(ctx context.Context, logger *slog.Logger, cfg *config.Config) (tokenauth.Notifier, func(), error) {
	switch cfg.Notifier {
	case config.NotifierSMTP:
		n, err := notify.NewSMTP(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return nil, nil, err
		}
		return n, func() {}, nil

	case config.NotifierNATS:
		var nc *nats.Conn
		err := withRetry(ctx, logger, "nats", func(context.Context) error {
			c, err := notify.ConnectNATS(cfg.NATSURL, cfg.AppName)
			if err != nil {
				return err
			}
			nc = c
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
		return notify.NewNATS(nc, cfg.NATSSubject), func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("nats drain failed", "error", err)
			}
		}, nil

	default:
		if cfg.Production() {
			logger.Warn("NOTIFIER=log in production; verification and reset links are only logged")
		}
		return notify.NewLog(logger), func() {}, nil
	}
}
