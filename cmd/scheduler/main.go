package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadscoring_backend/internal/adapters"
	"leadscoring_backend/internal/email"
	"leadscoring_backend/internal/enrichment"
	"leadscoring_backend/internal/events"
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

	var sender email.Sender = email.NoopSender{}
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg)
	}

	val := validator.New()

	// Worker-side wiring mirrors the API composition root so queued tasks
	// run through the exact same scoring and execution pipeline.
	leadsRepo := leadsrepo.New(pool)
	scoresRepo := scoringrepo.New(pool)

	enrichmentModule := enrichment.NewModule(pool, val, cfg, adapters.NewContactReader(leadsRepo), log)
	factsReader := adapters.NewLeadFactsReader(leadsRepo, enrichmentModule.Repository)

	scoringModule := scoring.NewModule(pool, val, factsReader, eventBus, log, cfg.GetBulkConcurrency())
	qualificationModule := qualification.NewModule(pool, val, adapters.NewQualificationLeadReader(factsReader, scoresRepo))
	notificationModule := notification.NewModule(pool, eventBus)

	performer := adapters.NewActionPerformer(leadsRepo, sender, notificationModule.Service, eventBus)
	workflowsModule := workflows.NewModule(pool, val, factsReader, performer, eventBus, log)
	workflowsModule.Service.SetStageReader(adapters.NewStageReader(leadsRepo, scoresRepo))

	scoringModule.Service.SetClassifier(adapters.NewClassifier(qualificationModule.Service))
	scoringModule.Service.SetTriggerMatcher(adapters.NewTriggerMatcher(workflowsModule.Service))

	queueClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = queueClient.Close() }()
	scoringModule.Service.SetExecutionDispatcher(adapters.NewExecutionDispatcher(queueClient))
	queueClient.SubscribeToEvents(eventBus, log)

	dailyRecalc := scheduler.NewDailyRecalculation(scoringModule.Service, log, cfg.GetDailyRecalcInterval())
	go dailyRecalc.Run(ctx)

	qualificationSweep := scheduler.NewQualificationSweep(workflowsModule.Service, log, cfg.GetQualificationSweepInterval())
	go qualificationSweep.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, workflowsModule.Service, scoringModule.Service, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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
