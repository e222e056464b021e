package transport

import (
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/workflows/repository"
	"leadscoring_backend/internal/workflows/trigger"
)

// ConditionDTO is one guard predicate on a workflow.
type ConditionDTO struct {
	Field    string `json:"field" validate:"required"`
	Operator string `json:"operator" validate:"required,oneof=equals not_equals contains greater_than less_than in_list is_empty is_not_empty"`
	Value    any    `json:"value"`
}

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name          string         `json:"name" validate:"required,min=1,max=200"`
	TriggerType   string         `json:"triggerType" validate:"required,oneof=score_threshold stage_change field_update time_based"`
	TriggerConfig map[string]any `json:"triggerConfig"`
	ActionType    string         `json:"actionType" validate:"required,oneof=assign_owner change_status send_email create_task send_notification"`
	ActionConfig  map[string]any `json:"actionConfig"`
	Conditions    []ConditionDTO `json:"conditions" validate:"dive"`
	Priority      int            `json:"priority" validate:"min=0"`
	IsActive      *bool          `json:"isActive"`
}

// Upsert converts the request to the repository's writable form. IsActive
// defaults to true when omitted.
func (r CreateWorkflowRequest) Upsert() repository.WorkflowUpsert {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	conditions := make([]engine.Condition, len(r.Conditions))
	for i, cond := range r.Conditions {
		conditions[i] = engine.Condition{
			Field:    cond.Field,
			Operator: engine.Operator(cond.Operator),
			Value:    cond.Value,
		}
	}
	triggerConfig := r.TriggerConfig
	if triggerConfig == nil {
		triggerConfig = map[string]any{}
	}
	actionConfig := r.ActionConfig
	if actionConfig == nil {
		actionConfig = map[string]any{}
	}
	return repository.WorkflowUpsert{
		Name:          r.Name,
		TriggerType:   trigger.Type(r.TriggerType),
		TriggerConfig: triggerConfig,
		ActionType:    trigger.Action(r.ActionType),
		ActionConfig:  actionConfig,
		Conditions:    conditions,
		Priority:      r.Priority,
		IsActive:      active,
	}
}

// UpdateWorkflowRequest is the request body for rewriting a workflow.
type UpdateWorkflowRequest = CreateWorkflowRequest

// WorkflowResponse is the API view of a workflow.
type WorkflowResponse struct {
	ID            uuid.UUID          `json:"id"`
	Name          string             `json:"name"`
	TriggerType   string             `json:"triggerType"`
	TriggerConfig map[string]any     `json:"triggerConfig"`
	ActionType    string             `json:"actionType"`
	ActionConfig  map[string]any     `json:"actionConfig"`
	Conditions    []engine.Condition `json:"conditions"`
	Priority      int                `json:"priority"`
	IsActive      bool               `json:"isActive"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// NewWorkflowResponse maps a stored workflow to its API view.
func NewWorkflowResponse(workflow repository.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:            workflow.ID,
		Name:          workflow.Name,
		TriggerType:   string(workflow.TriggerType),
		TriggerConfig: workflow.TriggerConfig,
		ActionType:    string(workflow.ActionType),
		ActionConfig:  workflow.ActionConfig,
		Conditions:    workflow.Conditions,
		Priority:      workflow.Priority,
		IsActive:      workflow.IsActive,
		CreatedAt:     workflow.CreatedAt,
		UpdatedAt:     workflow.UpdatedAt,
	}
}

// NewWorkflowResponses maps a workflow slice to API views.
func NewWorkflowResponses(workflows []repository.Workflow) []WorkflowResponse {
	out := make([]WorkflowResponse, len(workflows))
	for i, workflow := range workflows {
		out[i] = NewWorkflowResponse(workflow)
	}
	return out
}

// ExecuteRequest is the request body for a manual workflow execution.
type ExecuteRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
}

// ExecutionResponse is the API view of one audit trail entry.
type ExecutionResponse struct {
	ID          uuid.UUID `json:"id"`
	WorkflowID  uuid.UUID `json:"workflowId"`
	LeadID      uuid.UUID `json:"leadId"`
	ExecutedAt  time.Time `json:"executedAt"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	TriggeredBy string    `json:"triggeredBy"`
}

// NewExecutionResponse maps an execution to its API view.
func NewExecutionResponse(execution repository.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:          execution.ID,
		WorkflowID:  execution.WorkflowID,
		LeadID:      execution.LeadID,
		ExecutedAt:  execution.ExecutedAt,
		Outcome:     string(execution.Outcome),
		Detail:      execution.Detail,
		TriggeredBy: execution.TriggeredBy,
	}
}

// NewExecutionResponses maps an execution slice to API views.
func NewExecutionResponses(executions []repository.Execution) []ExecutionResponse {
	out := make([]ExecutionResponse, len(executions))
	for i, execution := range executions {
		out[i] = NewExecutionResponse(execution)
	}
	return out
}
