package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/leads"
	leadrepo "github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/notification"
	"github.com/syed-c/standzon-sub008/internal/notification/outbox"
	"github.com/syed-c/standzon-sub008/internal/scheduler"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/db"
	"github.com/syed-c/standzon-sub008/platform/logger"
	"github.com/syed-c/standzon-sub008/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dueSweepBatch = 100

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

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
	leadStore := leadrepo.NewPublishing(leadrepo.New(pool), eventBus)
	directory := builders.NewRepository(pool)

	// Worker-side lead wiring (no HTTP handlers required).
	leadsModule, err := leads.NewModule(leadStore, directory, eventBus, validator.New(), cfg, nil, log)
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	deps := notification.Deps{
		Jobs:      outbox.New(pool),
		Leads:     leadStore,
		Directory: directory,
		Tracker:   leadsModule.Tracker(),
		Config:    cfg,
		Log:       log,
	}
	var queue *scheduler.Client
	if cfg.GetRedisURL() != "" {
		queue, err = scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize delivery queue client", "error", err)
			panic("failed to initialize delivery queue client: " + err.Error())
		}
		defer func() { _ = queue.Close() }()
		deps.Enqueuer = queue
	}
	notificationModule, err := notification.New(deps)
	if err != nil {
		log.Error("failed to initialize notification module", "error", err)
		panic("failed to initialize notification module: " + err.Error())
	}
	defer func() { _ = notificationModule.Close() }()
	leadsModule.SetDispatcher(notificationModule.Dispatcher())

	sweeper := scheduler.NewDueSweeper(notificationModule.Dispatcher(), log, cfg.GetDispatchSweepInterval(), dueSweepBatch)
	go sweeper.Run(ctx)

	archiver := scheduler.NewLeadArchiver(leadsModule.Service(), log, cfg.GetArchiveSweepInterval(), cfg.GetArchiveAfter())
	go archiver.Run(ctx)

	if queue == nil {
		log.Warn("REDIS_URL not configured; running sweepers only")
		<-ctx.Done()
		eventBus.Wait()
		return
	}

	worker, err := scheduler.NewWorker(cfg, notificationModule.Dispatcher(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
