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

	"github.com/syed-c/standzon-sub008/internal/analytics"
	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/events"
	apphttp "github.com/syed-c/standzon-sub008/internal/http"
	"github.com/syed-c/standzon-sub008/internal/http/router"
	"github.com/syed-c/standzon-sub008/internal/leads"
	leadrepo "github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/metrics"
	"github.com/syed-c/standzon-sub008/internal/notification"
	"github.com/syed-c/standzon-sub008/internal/notification/dispatch"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/scheduler"
	"github.com/syed-c/standzon-sub008/migrations"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/db"
	"github.com/syed-c/standzon-sub008/platform/logger"
	"github.com/syed-c/standzon-sub008/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dueSweepBatch = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		applied, err := db.RunMigrations(ctx, pool, migrations.FS)
		if err == nil && len(applied) > 0 {
			log.Info("database migrations applied", "migrations", applied)
		}
		return err
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	appMetrics := metrics.New()

	deliveryQueue, closeQueue := initDeliveryQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	leadStore := leadrepo.NewPublishing(leadrepo.New(pool), eventBus)
	directory := builders.NewRepository(pool)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule, err := leads.NewModule(leadStore, directory, eventBus, val, cfg, appMetrics, log)
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	// Notification module owns delivery (not HTTP-facing)
	deps := notification.Deps{
		Jobs:      outbox.New(pool),
		Leads:     leadStore,
		Directory: directory,
		Tracker:   leadsModule.Tracker(),
		Observer:  appMetrics,
		Config:    cfg,
		Log:       log,
	}
	if deliveryQueue != nil {
		deps.Enqueuer = deliveryQueue
	}
	notificationModule, err := notification.New(deps)
	if err != nil {
		log.Error("failed to initialize notification module", "error", err)
		panic("failed to initialize notification module: " + err.Error())
	}
	defer func() { _ = notificationModule.Close() }()

	// Set dispatcher on leads module (breaks circular dependency)
	leadsModule.SetDispatcher(notificationModule.Dispatcher())

	analyticsModule, err := analytics.NewModule(ctx,
		analytics.New(cfg.GetAnalyticsWindow(), log), eventBus, leadStore)
	if err != nil {
		log.Error("failed to initialize analytics module", "error", err)
		panic("failed to initialize analytics module: " + err.Error())
	}
	// The scheduler records deliveries on its own bus; the log carries them here.
	go analyticsModule.Follow(ctx, leadStore, cfg.GetAnalyticsFollowInterval())

	// Without a queue, due jobs are delivered from this process.
	if deliveryQueue == nil {
		go runInlineDelivery(ctx, notificationModule.Dispatcher(), cfg, log)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Metrics:  appMetrics.Handler(),
		Modules: []apphttp.Module{
			leadsModule,
			analyticsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initDeliveryQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; notifications are delivered in-process")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize delivery queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func runInlineDelivery(ctx context.Context, d *dispatch.Dispatcher, cfg config.SchedulerConfig, log *logger.Logger) {
	scheduler.NewDueSweeper(d, log, cfg.GetDispatchSweepInterval(), dueSweepBatch).Run(ctx)
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

	return errors.New(name + ": " + lastErr.Error())
}
