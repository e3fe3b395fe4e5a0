package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"chatdesk_backend/internal/botflow"
	"chatdesk_backend/internal/conversations"
	"chatdesk_backend/internal/events"
	apphttp "chatdesk_backend/internal/http"
	"chatdesk_backend/internal/http/router"
	"chatdesk_backend/internal/notification"
	"chatdesk_backend/internal/notification/mq"
	"chatdesk_backend/internal/notification/sse"
	"chatdesk_backend/internal/presence"
	"chatdesk_backend/internal/queues"
	queuerepo "chatdesk_backend/internal/queues/repository"
	"chatdesk_backend/internal/routing"
	"chatdesk_backend/internal/scheduler"
	"chatdesk_backend/internal/webhook"
	"chatdesk_backend/platform/clock"
	"chatdesk_backend/platform/config"
	"chatdesk_backend/platform/db"
	"chatdesk_backend/platform/logger"
	"chatdesk_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Presence tracker: the authoritative in-memory advisor state
	tracker := presence.New(eventBus, clock.New(), log, presence.Options{
		Debounce:    cfg.GetPresenceDebounce(),
		SettleDelay: cfg.GetPresenceSettleDelay(),
		StaleAge:    cfg.GetPresenceStaleAge(),
	})
	defer tracker.Stop()

	// Round-robin cursor lives in Redis when available so rotation survives
	// restarts and is shared with the sweeper process.
	cursor, closeCursor := initCursor(cfg, log)
	if closeCursor != nil {
		defer closeCursor()
	}

	enqueuer, closeEnqueuer := initEnqueuer(cfg, log)
	if closeEnqueuer != nil {
		defer closeEnqueuer()
	}

	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	queuesRepo := queuerepo.New(pool)

	// Notification fan-out: SSE stream (which drives presence) + message queue
	sseService := sse.New(tracker, log)
	publisher := initPublisher(cfg, log)
	notificationModule := notification.NewModule(sseService, publisher, log)
	notificationModule.RegisterHandlers(eventBus)

	conversationsModule := conversations.NewModule(pool, notificationModule, eventBus, val, log)

	routingService := routing.NewService(
		conversationsModule.Repository(), queuesRepo, tracker, cursor, eventBus, log)
	routingModule := routing.NewModule(routingService, log)
	routingModule.RegisterHandlers(eventBus)

	queuesModule := queues.NewModule(pool, tracker, val, log)
	botflowModule := botflow.NewModule(pool, botflow.QueueExistenceChecker{
		GetByID: func(ctx context.Context, id uuid.UUID) error {
			_, err := queuesRepo.GetByID(ctx, id)
			return err
		},
	}, log)
	webhookModule := webhook.NewModule(
		pool, conversationsModule.Repository(), enqueuer, sseService, eventBus, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			conversationsModule,
			queuesModule,
			botflowModule,
			webhookModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// ========================================================================
	// Background Runners
	// ========================================================================

	// The task worker turns queued distribution triggers from the sweeper
	// process into bus events, so they are routed against live presence.
	if cfg.GetRedisURL() != "" {
		worker, err := scheduler.NewWorker(cfg, eventBus, log)
		if err != nil {
			log.Error("failed to initialize task worker", "error", err)
			panic("failed to initialize task worker: " + err.Error())
		}
		group.Go(func() error {
			worker.Run(groupCtx)
			return nil
		})
	} else {
		log.Warn("REDIS_URL not configured; task worker disabled")
	}

	poller := scheduler.NewLegacyPoller(queuesRepo, routingService, log, cfg.GetLegacyPollInterval())
	group.Go(func() error {
		poller.Run(groupCtx)
		return nil
	})

	cleanup := scheduler.NewPresenceCleanup(tracker, log, 0)
	group.Go(func() error {
		cleanup.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sseService.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
}

// initCursor picks the Redis-backed rotation cursor when Redis is
// configured, falling back to process-local rotation.
func initCursor(cfg *config.Config, log *logger.Logger) (routing.CursorStore, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; round-robin rotation is process local")
		return routing.NewMemoryCursor(), nil
	}

	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("invalid REDIS_URL, round-robin rotation is process local", "error", err)
		return routing.NewMemoryCursor(), nil
	}

	client := redis.NewClient(opt)
	return routing.NewRedisCursor(client), func() { _ = client.Close() }
}

// initEnqueuer builds the task client used to hand distribution triggers to
// the sweeper process. Without Redis the webhook falls back to the bus.
func initEnqueuer(cfg config.SchedulerConfig, log *logger.Logger) (webhook.Enqueuer, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; distribution triggers stay in process")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		return nil, nil
	}
	return client, func() { _ = client.Close() }
}

// initPublisher connects the message queue fan-out when configured.
func initPublisher(cfg config.MQConfig, log *logger.Logger) mq.Publisher {
	if !cfg.IsMQEnabled() {
		log.Warn("AMQP_URL not configured; event fan-out to siblings disabled")
		return mq.Nop{}
	}

	publisher, err := mq.New(cfg.GetAMQPURL(), cfg.GetAMQPExchange(), log)
	if err != nil {
		log.Error("failed to connect to message queue", "error", err)
		return mq.Nop{}
	}
	return publisher
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
