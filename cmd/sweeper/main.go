package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	botflowrepo "chatdesk_backend/internal/botflow/repository"
	convrepo "chatdesk_backend/internal/conversations/repository"
	"chatdesk_backend/internal/events"
	"chatdesk_backend/internal/scheduler"
	"chatdesk_backend/platform/clock"
	"chatdesk_backend/platform/config"
	"chatdesk_backend/platform/db"
	"chatdesk_backend/platform/logger"
)

// The sweeper is a standalone process that escalates conversations a bot has
// held past the per-flow timeout. It has no presence state of its own, so
// distribution triggers go through the task queue to the API process, which
// routes them against live advisor presence.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sweeper", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	var enqueuer scheduler.ChatQueuedEnqueuer
	if cfg.GetRedisURL() != "" {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize task client", "error", err)
			panic("failed to initialize task client: " + err.Error())
		}
		defer func() { _ = client.Close() }()
		enqueuer = client
	} else {
		log.Warn("REDIS_URL not configured; escalated conversations are not redistributed from this process")
	}

	sweeper := scheduler.NewBotHandoffSweeper(
		convrepo.New(pool),
		botflowrepo.New(pool),
		eventBus,
		enqueuer,
		clock.New(),
		log,
		cfg.GetBotSweepInterval(),
	)

	sweeper.Run(ctx)
	log.Info("sweeper stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s: %w", name, lastErr)
}
