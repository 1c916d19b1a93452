package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/boletin-radar/internal/config"
	"github.com/DeafMist/boletin-radar/internal/logger"
	"github.com/DeafMist/boletin-radar/internal/storage"
)

func main() {
	log := logger.New("retention")
	if err := config.LoadDotEnv(); err != nil {
		log.Error("load .env", slog.Any("err", err))
		os.Exit(1)
	}
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	backend, err := openWithRetry(ctx, log, cfg.Store, 10, 2*time.Second)
	if err != nil {
		log.Error("failed to open record store after retries", slog.Any("err", err))
		stop()
		os.Exit(1)
	}
	defer backend.Close()

	if backend.Pruner == nil {
		log.Info("record store needs no pruning",
			slog.String("store", backend.Name))
		return
	}

	log.Info("retention job running",
		slog.String("store", backend.Name),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start, but don't fail if the store is temporarily unavailable
	runOnce(ctx, log, backend.Pruner, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			runOnce(ctx, log, backend.Pruner, cfg)
		}
	}
}

// openWithRetry opens the record store, backing off exponentially up to 30s
// between attempts.
func openWithRetry(ctx context.Context, log *slog.Logger, cfg config.Store, maxRetries int, retryDelay time.Duration) (*storage.Backend, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		backend, err := storage.Open(openCtx, cfg, log)
		cancel()
		if err == nil {
			return backend, nil
		}
		lastErr = err
		log.Warn("open record store failed, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}
	return nil, lastErr
}

func runOnce(ctx context.Context, log *slog.Logger, pruner storage.Pruner, cfg *config.Retention) int64 {
	subCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	deleted, err := pruner.DeleteOlderThan(subCtx, cfg.MaxAge, cfg.BatchSize)
	if err != nil {
		log.Warn("retention run failed (will retry on next interval)", slog.Any("err", err))
		return 0
	}

	if deleted > 0 {
		log.Info("retention run completed", slog.Int64("deleted", deleted))
	} else {
		log.Debug("retention run completed, no old records found")
	}
	return deleted
}
