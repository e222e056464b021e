package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadscoring_backend/internal/adapters"
	"leadscoring_backend/internal/email"
	"leadscoring_backend/internal/enrichment"
	"leadscoring_backend/internal/events"
	apphttp "leadscoring_backend/internal/http"
	"leadscoring_backend/internal/http/router"
	leadsrepo "leadscoring_backend/internal/leads/repository"
	"leadscoring_backend/internal/notification"
	"leadscoring_backend/internal/qualification"
	"leadscoring_backend/internal/scheduler"
	"leadscoring_backend/internal/scoring"
	scoringrepo "leadscoring_backend/internal/scoring/repository"
	"leadscoring_backend/internal/workflows"
	"leadscoring_backend/platform/config"
	"leadscoring_backend/platform/db"
	"leadscoring_backend/platform/logger"
	"leadscoring_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
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
		return db.RunMigrations(ctx, cfg, "migrations")
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

	taskQueue, closeQueue := initTaskQueue(cfg, log)
	if closeQueue != nil {
		defer closeQueue()
	}

	var sender email.Sender = email.NoopSender{}
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg)
		log.Info("smtp email sender initialized", "host", cfg.GetSMTPHost())
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsRepo := leadsrepo.New(pool)
	scoresRepo := scoringrepo.New(pool)

	enrichmentModule := enrichment.NewModule(pool, val, cfg, adapters.NewContactReader(leadsRepo), log)

	// Facts reader merges lead attributes with stored enrichment; it feeds
	// both the rule evaluator and the workflow condition checks.
	factsReader := adapters.NewLeadFactsReader(leadsRepo, enrichmentModule.Repository)

	scoringModule := scoring.NewModule(pool, val, factsReader, eventBus, log, cfg.GetBulkConcurrency())
	qualificationModule := qualification.NewModule(pool, val, adapters.NewQualificationLeadReader(factsReader, scoresRepo))

	// Notification module subscribes to workflow outcome events on creation.
	notificationModule := notification.NewModule(pool, eventBus)

	performer := adapters.NewActionPerformer(leadsRepo, sender, notificationModule.Service, eventBus)
	workflowsModule := workflows.NewModule(pool, val, factsReader, performer, eventBus, log)
	workflowsModule.Service.SetStageReader(adapters.NewStageReader(leadsRepo, scoresRepo))

	// Break the circular dependencies: scoring calls into qualification and
	// workflows only through its own ports.
	scoringModule.Service.SetClassifier(adapters.NewClassifier(qualificationModule.Service))
	scoringModule.Service.SetTriggerMatcher(adapters.NewTriggerMatcher(workflowsModule.Service))
	if taskQueue != nil {
		scoringModule.Service.SetExecutionDispatcher(adapters.NewExecutionDispatcher(taskQueue))
		taskQueue.SubscribeToEvents(eventBus, log)
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			scoringModule,
			qualificationModule,
			workflowsModule,
			enrichmentModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initTaskQueue(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; workflow executions run without queueing")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
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
