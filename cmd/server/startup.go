package main

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/and161185/contacts-keeper/internal/config"
	"github.com/and161185/contacts-keeper/internal/migrate"
)

const checkTimeout = 2 * time.Second

// startupBackoff waits roughly 12s in total before giving up on a dependency.
func startupBackoff() retry.Backoff {
	return retry.WithMaxRetries(6, retry.NewExponential(200*time.Millisecond))
}

// waitFor retries check until it succeeds, b is exhausted or ctx is done.
func waitFor(ctx context.Context, log *zap.Logger, name string, b retry.Backoff, check func(context.Context) error) error {
	return retry.Do(ctx, b, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		if err := check(cctx); err != nil {
			log.Warn("dependency not ready", zap.String("dep", name), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

func migrateWithRetry(ctx context.Context, log *zap.Logger, dsn string, b retry.Backoff) error {
	return retry.Do(ctx, b, func(ctx context.Context) error {
		if err := migrate.Up(ctx, dsn, log); err != nil {
			log.Warn("migrate up", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
