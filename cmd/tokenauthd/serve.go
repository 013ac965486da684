package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/tokenauth"
	"github.com/MrEthical07/tokenauth/httpapi"
	"github.com/MrEthical07/tokenauth/internal/config"
	"github.com/MrEthical07/tokenauth/internal/logging"
	"github.com/MrEthical07/tokenauth/internal/telemetry"
)

const shutdownTimeout = 15 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, autoMigrate)
		},
	}

	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving (USER_STORE=postgres)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, autoMigrate bool) error {
	logger := logging.Setup(cfg.AppName, version, cfg.LogFormat, cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.AppName, version)
	if err != nil {
		return oops.Code("TELEMETRY_SETUP_FAILED").Wrap(err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	if autoMigrate && cfg.UserStore == config.StorePostgres {
		if err := migrateUp(cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	rdb, err := connectRedis(ctx, logger, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	store, err := openUserStore(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	notifier, closeNotifier, err := openNotifier(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engineCfg := cfg.Engine()
	for _, w := range engineCfg.Lint() {
		logger.Warn("config lint", "code", w.Code, "message", w.Message)
	}

	engine, err := tokenauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserRepository(store.repo).
		WithNotifier(notifier).
		WithLogger(logger).
		WithMetrics(tokenauth.NewMetrics(registry)).
		Build()
	if err != nil {
		return oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.New(engine, httpapi.Options{
			Logger:     logger,
			Production: cfg.Production(),
			TrustProxy: cfg.TrustProxy,
			Gatherer:   registry,
			Checks:     store.checks,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
		return engine.WaitNotifications(sctx)
	})

	if err := g.Wait(); err != nil {
		logging.LogError(ctx, logger, "server stopped with error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		return err
	}
	if v, dirty, err := m.Version(); err == nil {
		logger.Info("migrations applied", "version", v, "dirty", dirty)
	}
	return nil
}
