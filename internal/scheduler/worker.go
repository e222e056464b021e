package scheduler

import (
	"context"
	"fmt"

	scoringsvc "leadscoring_backend/internal/scoring/service"
	workflowrepo "leadscoring_backend/internal/workflows/repository"
	"leadscoring_backend/platform/config"
	"leadscoring_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// WorkflowExecutor runs a single workflow action against a lead and records
// the execution outcome.
type WorkflowExecutor interface {
	Execute(ctx context.Context, workflowID, leadID uuid.UUID, triggeredBy string) (workflowrepo.Execution, error)
}

// ScoreCalculator recomputes one lead's score end to end.
type ScoreCalculator interface {
	Calculate(ctx context.Context, leadID uuid.UUID, changedFields []string) (*scoringsvc.Result, error)
}

type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	workflows WorkflowExecutor
	scores    ScoreCalculator
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, workflows WorkflowExecutor, scores ScoreCalculator, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		workflows: workflows,
		scores:    scores,
		log:       log,
	}

	mux.HandleFunc(TaskWorkflowExecute, w.handleWorkflowExecute)
	mux.HandleFunc(TaskScoreRecalculate, w.handleScoreRecalculate)

	return w, nil
}

func (w *Worker) handleWorkflowExecute(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseWorkflowExecutePayload(task)
	if err != nil {
		return err
	}

	workflowID, err := uuid.Parse(payload.WorkflowID)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	execution, err := w.workflows.Execute(ctx, workflowID, leadID, payload.TriggeredBy)
	if err != nil {
		return err
	}

	w.log.Debug("workflow task processed",
		"workflow_id", workflowID, "lead_id", leadID, "outcome", execution.Outcome)
	return nil
}

func (w *Worker) handleScoreRecalculate(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseScoreRecalculatePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	result, err := w.scores.Calculate(ctx, leadID, payload.ChangedFields)
	if err != nil {
		return err
	}

	w.log.Debug("score recalculation task processed",
		"lead_id", leadID, "score", result.Score)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
