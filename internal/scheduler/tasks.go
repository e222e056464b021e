package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskWorkflowExecute = "workflows.execute"

const TaskScoreRecalculate = "scoring.recalculate"

type WorkflowExecutePayload struct {
	WorkflowID  string `json:"workflowId"`
	LeadID      string `json:"leadId"`
	TriggeredBy string `json:"triggeredBy"`
}

type ScoreRecalculatePayload struct {
	LeadID        string   `json:"leadId"`
	ChangedFields []string `json:"changedFields,omitempty"`
}

func NewWorkflowExecuteTask(payload WorkflowExecutePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWorkflowExecute, data), nil
}

func ParseWorkflowExecutePayload(task *asynq.Task) (WorkflowExecutePayload, error) {
	var payload WorkflowExecutePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return WorkflowExecutePayload{}, err
	}
	return payload, nil
}

func NewScoreRecalculateTask(payload ScoreRecalculatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScoreRecalculate, data), nil
}

func ParseScoreRecalculatePayload(task *asynq.Task) (ScoreRecalculatePayload, error) {
	var payload ScoreRecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ScoreRecalculatePayload{}, err
	}
	return payload, nil
}
