package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/contacts-keeper/internal/cache"
	"github.com/and161185/contacts-keeper/internal/config"
	"github.com/and161185/contacts-keeper/internal/limiter"
	"github.com/and161185/contacts-keeper/internal/observability"
	"github.com/and161185/contacts-keeper/internal/repository/postgres"
	httpserver "github.com/and161185/contacts-keeper/internal/server/http"
	"github.com/and161185/contacts-keeper/internal/service"
	"github.com/and161185/contacts-keeper/internal/token"
)

const (
	cachePrefix     = "ck:"
	shutdownTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

// runServe connects dependencies, starts the HTTP server and blocks until SIGINT/SIGTERM.
func runServe(parent context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("algorithm", cfg.Algorithm),
	)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment, version); err != nil {
		logger.Error("sentry init", zap.Error(err))
	}
	defer observability.FlushSentry()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	codec, err := token.NewCodec([]byte(cfg.SecretKey), cfg.Algorithm)
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}

	if err := migrateWithRetry(ctx, logger, cfg.DatabaseDSN, startupBackoff()); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("pgxpool: %w", err)
	}
	defer db.Close()
	if err := waitFor(ctx, logger, "postgres", startupBackoff(), db.Pool.Ping); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	store := cache.NewRedisStore(rdb, cachePrefix)
	// Requests fall through to Postgres while Redis is down, so it is not fatal.
	if err := waitFor(ctx, logger, "redis", startupBackoff(), store.Ping); err != nil {
		logger.Warn("identity cache unavailable, continuing without it", zap.Error(err))
	}

	accounts := postgres.NewAccountRepo(db)
	lim := limiter.NewPG(db.Pool, limiter.Policy{
		Window:   cfg.LoginWindow(),
		MaxFails: cfg.LoginMaxFails,
		BlockFor: cfg.LoginBlock(),
	})
	svc := service.NewAuthService(accounts, codec,
		cache.NewIdentityCache(store, cfg.IdentityCacheTTL(), logger),
		lim,
		service.WithTTLs(service.TTLs{
			Access:  cfg.AccessTokenTTL(),
			Refresh: cfg.RefreshTokenTTL(),
			Email:   cfg.EmailTokenTTL(),
		}),
		service.WithMailer(service.NewLogMailer(logger), cfg.BaseURL),
		service.WithLogger(logger),
	)

	srv := httpserver.New(svc, logger, cfg.AuthTimeout())
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.Start(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
