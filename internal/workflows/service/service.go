// Package service implements workflow management, the executor, and the
// time_based trigger sweep.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/events"
	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/workflows/repository"
	"leadscoring_backend/internal/workflows/trigger"
	"leadscoring_backend/platform/apperr"
	"leadscoring_backend/platform/logger"
)

// Store is the persistence surface the workflows service depends on.
type Store interface {
	Create(ctx context.Context, upsert repository.WorkflowUpsert) (repository.Workflow, error)
	Update(ctx context.Context, id uuid.UUID, upsert repository.WorkflowUpsert) (repository.Workflow, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Workflow, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]repository.Workflow, error)
	ListActive(ctx context.Context) ([]repository.Workflow, error)
	ListActiveByTriggerType(ctx context.Context, triggerType trigger.Type) ([]repository.Workflow, error)
	RecordExecution(ctx context.Context, execution repository.Execution) (repository.Execution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]repository.Execution, error)
	ExecutionsByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Execution, error)
	HasExecutionSince(ctx context.Context, workflowID, leadID uuid.UUID, since time.Time) (bool, error)
}

// SnapshotReader provides a lead's flattened attribute snapshot for
// condition checks at execution time.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, leadID uuid.UUID) (engine.Snapshot, error)
}

// StageReader reports which leads are active and how long each has been
// in its current stage. Drives the time_based sweep.
type StageReader interface {
	ListActiveLeadIDs(ctx context.Context) ([]uuid.UUID, error)
	CurrentStage(ctx context.Context, leadID uuid.UUID) (stage string, enteredAt time.Time, err error)
}

// ActionPerformer carries out workflow action side effects against the
// external collaborator services.
type ActionPerformer interface {
	AssignOwner(ctx context.Context, leadID, ownerID uuid.UUID) error
	ChangeStatus(ctx context.Context, leadID uuid.UUID, status string) error
	SendEmail(ctx context.Context, leadID uuid.UUID, subject, body string) error
	CreateTask(ctx context.Context, leadID uuid.UUID, title, description string, dueInDays int) error
	SendNotification(ctx context.Context, leadID uuid.UUID, message string) error
}

// Service manages workflows and executes their actions.
type Service struct {
	store     Store
	snapshots SnapshotReader
	stages    StageReader
	performer ActionPerformer
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new workflows service. The stage reader is injected by
// the composition root once the scoring module exists.
func New(store Store, snapshots SnapshotReader, performer ActionPerformer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		snapshots: snapshots,
		performer: performer,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
}

// SetStageReader wires the stage reader for the time_based sweep.
func (s *Service) SetStageReader(stages StageReader) { s.stages = stages }

// =============================================================================
// Workflow management
// =============================================================================

// Create validates and stores a new workflow.
func (s *Service) Create(ctx context.Context, upsert repository.WorkflowUpsert) (repository.Workflow, error) {
	if err := validateWorkflow(upsert); err != nil {
		return repository.Workflow{}, err
	}
	return s.store.Create(ctx, upsert)
}

// Update rewrites a workflow.
func (s *Service) Update(ctx context.Context, id uuid.UUID, upsert repository.WorkflowUpsert) (repository.Workflow, error) {
	if err := validateWorkflow(upsert); err != nil {
		return repository.Workflow{}, err
	}
	return s.store.Update(ctx, id, upsert)
}

// GetByID retrieves one workflow.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Workflow, error) {
	return s.store.GetByID(ctx, id)
}

// Delete removes a workflow; its execution history remains.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// List retrieves all workflows.
func (s *Service) List(ctx context.Context) ([]repository.Workflow, error) {
	return s.store.List(ctx)
}

// ExecutionsByWorkflow retrieves a workflow's audit trail.
func (s *Service) ExecutionsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]repository.Execution, error) {
	if _, err := s.store.GetByID(ctx, workflowID); err != nil {
		return nil, err
	}
	return s.store.ExecutionsByWorkflow(ctx, workflowID)
}

// ExecutionsByLead retrieves a lead's audit trail.
func (s *Service) ExecutionsByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Execution, error) {
	return s.store.ExecutionsByLead(ctx, leadID)
}

// =============================================================================
// Trigger matching
// =============================================================================

// MatchTriggers evaluates active workflows against a lead transition and
// returns the ones that fire, in execution order.
func (s *Service) MatchTriggers(ctx context.Context, change trigger.Change) ([]trigger.Matched, error) {
	stored, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	workflows := make([]trigger.Workflow, len(stored))
	for i, w := range stored {
		workflows[i] = w.Trigger()
	}
	return trigger.Match(workflows, change), nil
}

// =============================================================================
// Execution
// =============================================================================

// TriggeredByManual marks executions requested through the API rather
// than by a trigger.
const TriggeredByManual = "manual"

// Execute performs a workflow's action for a lead and records the outcome
// in the audit trail. Action side-effect failures produce a failure
// record, never an error: execution is best-effort and decoupled from the
// scoring that triggered it. An error is returned only when the workflow
// or lead cannot be loaded or the audit record cannot be written.
func (s *Service) Execute(ctx context.Context, workflowID, leadID uuid.UUID, triggeredBy string) (repository.Execution, error) {
	workflow, err := s.store.GetByID(ctx, workflowID)
	if err != nil {
		return repository.Execution{}, err
	}

	snapshot, err := s.snapshots.GetSnapshot(ctx, leadID)
	if err != nil {
		return repository.Execution{}, err
	}

	execution := repository.Execution{
		WorkflowID:  workflowID,
		LeadID:      leadID,
		ExecutedAt:  s.now().UTC(),
		TriggeredBy: triggeredBy,
	}

	// Activation and conditions are re-checked at execution time; the
	// workflow or the lead may have changed between trigger matching and
	// the queued execution.
	if !workflow.IsActive {
		execution.Outcome = repository.OutcomeSkipped
		execution.Detail = "workflow deactivated"
	} else if !trigger.ConditionsPass(workflow.Trigger(), snapshot) {
		execution.Outcome = repository.OutcomeSkipped
		execution.Detail = "conditions no longer satisfied"
	} else if err := s.performAction(ctx, workflow, leadID); err != nil {
		execution.Outcome = repository.OutcomeFailure
		execution.Detail = err.Error()
	} else {
		execution.Outcome = repository.OutcomeSuccess
	}

	recorded, err := s.store.RecordExecution(ctx, execution)
	if err != nil {
		return repository.Execution{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.WorkflowExecuted{
			BaseEvent:    events.NewBaseEvent(),
			WorkflowID:   workflowID,
			WorkflowName: workflow.Name,
			LeadID:       leadID,
			ActionType:   string(workflow.ActionType),
			Outcome:      string(recorded.Outcome),
		})
	}
	s.log.WorkflowExecuted(workflowID.String(), leadID.String(), string(recorded.Outcome))

	return recorded, nil
}

// RunTimeBasedSweep fires time_based workflows for every active lead
// whose dwell in its current stage satisfies the configured duration. A
// workflow fires at most once per dwell period: an execution recorded
// since the lead entered the stage suppresses re-firing.
func (s *Service) RunTimeBasedSweep(ctx context.Context) error {
	if s.stages == nil {
		return apperr.Internal("stage reader not wired")
	}

	workflows, err := s.store.ListActiveByTriggerType(ctx, trigger.TypeTimeBased)
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		return nil
	}

	leadIDs, err := s.stages.ListActiveLeadIDs(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, leadID := range leadIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stage, enteredAt, err := s.stages.CurrentStage(ctx, leadID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				continue // never scored yet
			}
			s.log.Error("time_based sweep: stage lookup failed", "lead_id", leadID, "error", err)
			continue
		}

		for _, workflow := range workflows {
			if target, ok := workflow.TriggerConfig["stage"].(string); ok && target != "" && target != stage {
				continue
			}
			if !trigger.DwellSatisfied(workflow.Trigger(), enteredAt, now) {
				continue
			}
			fired, err := s.store.HasExecutionSince(ctx, workflow.ID, leadID, enteredAt)
			if err != nil {
				s.log.Error("time_based sweep: execution check failed", "workflow_id", workflow.ID, "lead_id", leadID, "error", err)
				continue
			}
			if fired {
				continue
			}
			if _, err := s.Execute(ctx, workflow.ID, leadID, string(trigger.TypeTimeBased)); err != nil {
				s.log.Error("time_based sweep: execution failed", "workflow_id", workflow.ID, "lead_id", leadID, "error", err)
			}
		}
	}
	return nil
}

func (s *Service) performAction(ctx context.Context, workflow repository.Workflow, leadID uuid.UUID) error {
	config := workflow.ActionConfig
	switch workflow.ActionType {
	case trigger.ActionAssignOwner:
		ownerRaw, _ := config["owner_id"].(string)
		ownerID, err := uuid.Parse(ownerRaw)
		if err != nil {
			return fmt.Errorf("action config: invalid owner_id: %w", err)
		}
		return s.performer.AssignOwner(ctx, leadID, ownerID)
	case trigger.ActionChangeStatus:
		status, _ := config["status"].(string)
		if status == "" {
			return fmt.Errorf("action config: status is required")
		}
		return s.performer.ChangeStatus(ctx, leadID, status)
	case trigger.ActionSendEmail:
		subject, _ := config["subject"].(string)
		body, _ := config["body"].(string)
		if subject == "" {
			return fmt.Errorf("action config: subject is required")
		}
		return s.performer.SendEmail(ctx, leadID, subject, body)
	case trigger.ActionCreateTask:
		title, _ := config["title"].(string)
		if title == "" {
			return fmt.Errorf("action config: title is required")
		}
		description, _ := config["description"].(string)
		dueInDays := 0
		if days, ok := config["due_in_days"].(float64); ok {
			dueInDays = int(days)
		}
		return s.performer.CreateTask(ctx, leadID, title, description, dueInDays)
	case trigger.ActionSendNotification:
		message, _ := config["message"].(string)
		if message == "" {
			return fmt.Errorf("action config: message is required")
		}
		return s.performer.SendNotification(ctx, leadID, message)
	}
	return fmt.Errorf("unknown action type %q", string(workflow.ActionType))
}

func validateWorkflow(upsert repository.WorkflowUpsert) error {
	if upsert.Name == "" {
		return apperr.Validation("workflow name is required")
	}
	if !upsert.TriggerType.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown trigger type %q", string(upsert.TriggerType)))
	}
	if !upsert.ActionType.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown action type %q", string(upsert.ActionType)))
	}
	switch upsert.TriggerType {
	case trigger.TypeScoreThreshold:
		if _, ok := numericConfig(upsert.TriggerConfig, "score"); !ok {
			return apperr.Validation("score_threshold workflows require a numeric score in trigger config")
		}
	case trigger.TypeFieldUpdate:
		if field, _ := upsert.TriggerConfig["field"].(string); field == "" {
			return apperr.Validation("field_update workflows require a field in trigger config")
		}
	case trigger.TypeTimeBased:
		if days, ok := numericConfig(upsert.TriggerConfig, "days"); !ok || days <= 0 {
			return apperr.Validation("time_based workflows require positive days in trigger config")
		}
	}
	for _, cond := range upsert.Conditions {
		if !cond.Operator.Valid() {
			return apperr.Validation(fmt.Sprintf("unknown condition operator %q", string(cond.Operator)))
		}
		if cond.Field == "" {
			return apperr.Validation("condition field is required")
		}
	}
	return nil
}

func numericConfig(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
