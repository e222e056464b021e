// Package repository persists automation workflows and their append-only
// execution audit trail with PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/workflows/trigger"
	"leadscoring_backend/platform/apperr"
)

const workflowNotFoundMessage = "workflow not found"

// Workflow is a stored automation workflow.
type Workflow struct {
	ID            uuid.UUID
	Name          string
	TriggerType   trigger.Type
	TriggerConfig map[string]any
	ActionType    trigger.Action
	ActionConfig  map[string]any
	Conditions    []engine.Condition
	Priority      int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Trigger converts the stored workflow to its evaluation form.
func (w Workflow) Trigger() trigger.Workflow {
	return trigger.Workflow{
		ID:            w.ID,
		Name:          w.Name,
		TriggerType:   w.TriggerType,
		TriggerConfig: w.TriggerConfig,
		ActionType:    w.ActionType,
		ActionConfig:  w.ActionConfig,
		Conditions:    w.Conditions,
		Priority:      w.Priority,
		CreatedAt:     w.CreatedAt,
	}
}

// WorkflowUpsert carries the writable workflow fields.
type WorkflowUpsert struct {
	Name          string
	TriggerType   trigger.Type
	TriggerConfig map[string]any
	ActionType    trigger.Action
	ActionConfig  map[string]any
	Conditions    []engine.Condition
	Priority      int
	IsActive      bool
}

// Outcome is the result of one workflow execution.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Execution is one append-only audit trail entry.
type Execution struct {
	ID          uuid.UUID
	WorkflowID  uuid.UUID
	LeadID      uuid.UUID
	ExecutedAt  time.Time
	Outcome     Outcome
	Detail      string
	TriggeredBy string
}

// Repository implements workflow persistence with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new workflows repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const workflowColumns = `id, name, trigger_type, trigger_config, action_type, action_config, conditions, priority, is_active, created_at, updated_at`

// Create inserts a new workflow.
func (r *Repository) Create(ctx context.Context, upsert WorkflowUpsert) (Workflow, error) {
	triggerJSON, actionJSON, conditionsJSON, err := marshalConfigs(upsert)
	if err != nil {
		return Workflow{}, err
	}

	query := `
		INSERT INTO workflows (id, name, trigger_type, trigger_config, action_type, action_config, conditions, priority, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at`

	workflow := Workflow{
		ID:            uuid.New(),
		Name:          upsert.Name,
		TriggerType:   upsert.TriggerType,
		TriggerConfig: upsert.TriggerConfig,
		ActionType:    upsert.ActionType,
		ActionConfig:  upsert.ActionConfig,
		Conditions:    upsert.Conditions,
		Priority:      upsert.Priority,
		IsActive:      upsert.IsActive,
	}

	err = r.pool.QueryRow(ctx, query,
		workflow.ID, workflow.Name, workflow.TriggerType, triggerJSON,
		workflow.ActionType, actionJSON, conditionsJSON,
		workflow.Priority, workflow.IsActive,
	).Scan(&workflow.CreatedAt, &workflow.UpdatedAt)
	if err != nil {
		return Workflow{}, apperr.Wrap(apperr.KindInternal, "failed to create workflow", err)
	}
	return workflow, nil
}

// Update rewrites a workflow.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, upsert WorkflowUpsert) (Workflow, error) {
	triggerJSON, actionJSON, conditionsJSON, err := marshalConfigs(upsert)
	if err != nil {
		return Workflow{}, err
	}

	query := `
		UPDATE workflows
		SET name = $2, trigger_type = $3, trigger_config = $4, action_type = $5,
		    action_config = $6, conditions = $7, priority = $8, is_active = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + workflowColumns

	workflow, err := scanWorkflow(r.pool.QueryRow(ctx, query,
		id, upsert.Name, upsert.TriggerType, triggerJSON,
		upsert.ActionType, actionJSON, conditionsJSON,
		upsert.Priority, upsert.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workflow{}, apperr.NotFound(workflowNotFoundMessage)
		}
		return Workflow{}, apperr.Wrap(apperr.KindInternal, "failed to update workflow", err)
	}
	return workflow, nil
}

// GetByID retrieves one workflow.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Workflow{}, apperr.NotFound(workflowNotFoundMessage)
		}
		return Workflow{}, apperr.Wrap(apperr.KindInternal, "failed to get workflow", err)
	}
	return workflow, nil
}

// Delete removes a workflow. Its executions are kept for audit integrity.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to delete workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(workflowNotFoundMessage)
	}
	return nil
}

// List retrieves all workflows, highest priority first.
func (r *Repository) List(ctx context.Context) ([]Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY priority DESC, created_at ASC`
	return r.queryWorkflows(ctx, query)
}

// ListActive retrieves active workflows, highest priority first.
func (r *Repository) ListActive(ctx context.Context) ([]Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE is_active ORDER BY priority DESC, created_at ASC`
	return r.queryWorkflows(ctx, query)
}

// ListActiveByTriggerType retrieves active workflows with one trigger type.
func (r *Repository) ListActiveByTriggerType(ctx context.Context, triggerType trigger.Type) ([]Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE is_active AND trigger_type = $1 ORDER BY priority DESC, created_at ASC`
	return r.queryWorkflows(ctx, query, triggerType)
}

// RecordExecution appends one audit trail entry.
func (r *Repository) RecordExecution(ctx context.Context, execution Execution) (Execution, error) {
	query := `
		INSERT INTO workflow_executions (id, workflow_id, lead_id, executed_at, outcome, detail, triggered_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	execution.ID = uuid.New()
	if execution.ExecutedAt.IsZero() {
		execution.ExecutedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		execution.ID, execution.WorkflowID, execution.LeadID,
		execution.ExecutedAt, execution.Outcome, execution.Detail, execution.TriggeredBy,
	)
	if err != nil {
		return Execution{}, apperr.Wrap(apperr.KindInternal, "failed to record workflow execution", err)
	}
	return execution, nil
}

const executionColumns = `id, workflow_id, lead_id, executed_at, outcome, detail, triggered_by`

// ExecutionsByWorkflow retrieves a workflow's audit trail, newest first.
func (r *Repository) ExecutionsByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE workflow_id = $1 ORDER BY executed_at DESC`
	return r.queryExecutions(ctx, query, workflowID)
}

// ExecutionsByLead retrieves a lead's audit trail, newest first.
func (r *Repository) ExecutionsByLead(ctx context.Context, leadID uuid.UUID) ([]Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE lead_id = $1 ORDER BY executed_at DESC`
	return r.queryExecutions(ctx, query, leadID)
}

// HasExecutionSince reports whether a workflow already executed for a lead
// at or after the given time. The time_based sweep uses this to guarantee
// at most one firing per dwell period.
func (r *Repository) HasExecutionSince(ctx context.Context, workflowID, leadID uuid.UUID, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM workflow_executions
			WHERE workflow_id = $1 AND lead_id = $2 AND executed_at >= $3
		)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, workflowID, leadID, since).Scan(&exists); err != nil {
		return false, apperr.Wrap(apperr.KindInternal, "failed to check workflow executions", err)
	}
	return exists, nil
}

func (r *Repository) queryWorkflows(ctx context.Context, query string, args ...any) ([]Workflow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list workflows", err)
	}
	defer rows.Close()

	var out []Workflow
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan workflow", err)
		}
		out = append(out, workflow)
	}
	return out, rows.Err()
}

func (r *Repository) queryExecutions(ctx context.Context, query string, args ...any) ([]Execution, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list workflow executions", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var execution Execution
		err := rows.Scan(
			&execution.ID, &execution.WorkflowID, &execution.LeadID,
			&execution.ExecutedAt, &execution.Outcome, &execution.Detail, &execution.TriggeredBy,
		)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan workflow execution", err)
		}
		out = append(out, execution)
	}
	return out, rows.Err()
}

func marshalConfigs(upsert WorkflowUpsert) (triggerJSON, actionJSON, conditionsJSON []byte, err error) {
	if triggerJSON, err = json.Marshal(upsert.TriggerConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal trigger config: %w", err)
	}
	if actionJSON, err = json.Marshal(upsert.ActionConfig); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal action config: %w", err)
	}
	if conditionsJSON, err = json.Marshal(upsert.Conditions); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal conditions: %w", err)
	}
	return triggerJSON, actionJSON, conditionsJSON, nil
}

func scanWorkflow(row pgx.Row) (Workflow, error) {
	var (
		workflow       Workflow
		triggerJSON    []byte
		actionJSON     []byte
		conditionsJSON []byte
	)
	err := row.Scan(
		&workflow.ID, &workflow.Name, &workflow.TriggerType, &triggerJSON,
		&workflow.ActionType, &actionJSON, &conditionsJSON,
		&workflow.Priority, &workflow.IsActive,
		&workflow.CreatedAt, &workflow.UpdatedAt,
	)
	if err != nil {
		return Workflow{}, err
	}
	if err := json.Unmarshal(triggerJSON, &workflow.TriggerConfig); err != nil {
		return Workflow{}, fmt.Errorf("unmarshal trigger config: %w", err)
	}
	if err := json.Unmarshal(actionJSON, &workflow.ActionConfig); err != nil {
		return Workflow{}, fmt.Errorf("unmarshal action config: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &workflow.Conditions); err != nil {
		return Workflow{}, fmt.Errorf("unmarshal conditions: %w", err)
	}
	return workflow, nil
}
