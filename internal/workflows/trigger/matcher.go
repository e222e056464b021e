// Package trigger decides which automation workflows fire for a lead
// state transition. Pure logic, no persistence.
package trigger

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/engine"
)

// Type is a workflow trigger type.
type Type string

const (
	TypeScoreThreshold Type = "score_threshold"
	TypeStageChange    Type = "stage_change"
	TypeFieldUpdate    Type = "field_update"
	TypeTimeBased      Type = "time_based"
)

// Valid reports whether the trigger type is known.
func (t Type) Valid() bool {
	switch t {
	case TypeScoreThreshold, TypeStageChange, TypeFieldUpdate, TypeTimeBased:
		return true
	}
	return false
}

// Action is a workflow action type.
type Action string

const (
	ActionAssignOwner      Action = "assign_owner"
	ActionChangeStatus     Action = "change_status"
	ActionSendEmail        Action = "send_email"
	ActionCreateTask       Action = "create_task"
	ActionSendNotification Action = "send_notification"
)

// Valid reports whether the action type is known.
func (a Action) Valid() bool {
	switch a {
	case ActionAssignOwner, ActionChangeStatus, ActionSendEmail, ActionCreateTask, ActionSendNotification:
		return true
	}
	return false
}

// Workflow is the evaluation form of an automation workflow.
type Workflow struct {
	ID            uuid.UUID
	Name          string
	TriggerType   Type
	TriggerConfig map[string]any
	ActionType    Action
	ActionConfig  map[string]any
	Conditions    []engine.Condition
	Priority      int
	CreatedAt     time.Time
}

// Change describes one lead's transition after a scoring pass.
// PrevScore is nil on the lead's first ever calculation; a missing
// previous score counts as below any threshold.
type Change struct {
	LeadID        uuid.UUID
	PrevScore     *int
	NewScore      int
	PrevStage     string
	NewStage      string
	ChangedFields []string
	Snapshot      engine.Snapshot
}

// Matched is one workflow selected to fire, in execution order.
type Matched struct {
	Workflow    Workflow
	TriggeredBy string
}

// Match evaluates score-driven triggers (score_threshold, stage_change,
// field_update) against a transition and returns the workflows that fire,
// ordered by priority descending with creation-order tie-break. time_based
// workflows are driven by the periodic sweep, not by transitions.
func Match(workflows []Workflow, change Change) []Matched {
	var matched []Matched
	for _, w := range workflows {
		triggered := false
		switch w.TriggerType {
		case TypeScoreThreshold:
			triggered = crossedThreshold(w, change)
		case TypeStageChange:
			triggered = stageChanged(w, change)
		case TypeFieldUpdate:
			triggered = fieldUpdated(w, change)
		}
		if !triggered {
			continue
		}
		if !ConditionsPass(w, change.Snapshot) {
			continue
		}
		matched = append(matched, Matched{Workflow: w, TriggeredBy: string(w.TriggerType)})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i].Workflow, matched[j].Workflow
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return matched
}

// DwellSatisfied reports whether a time_based workflow's configured dwell
// duration has elapsed since the lead entered its current state. The
// caller is responsible for the at-most-once guarantee (checking the
// execution audit trail since stageEnteredAt).
func DwellSatisfied(w Workflow, stageEnteredAt, now time.Time) bool {
	if w.TriggerType != TypeTimeBased {
		return false
	}
	days, ok := configFloat(w.TriggerConfig, "days")
	if !ok {
		return false
	}
	dwell := time.Duration(days * 24 * float64(time.Hour))
	return now.Sub(stageEnteredAt) >= dwell
}

// ConditionsPass evaluates a workflow's guard conditions against a
// snapshot. Evaluation warnings (missing fields, bad values) count as a
// failed condition, never as a pass.
func ConditionsPass(w Workflow, snap engine.Snapshot) bool {
	for _, cond := range w.Conditions {
		ok, warn := engine.EvalCondition(snap, cond)
		if warn != nil || !ok {
			return false
		}
	}
	return true
}

// Fires when the score moved from below the configured threshold to at or
// above it. Strictly a crossing, never a "currently above" check.
func crossedThreshold(w Workflow, change Change) bool {
	threshold, ok := configFloat(w.TriggerConfig, "score")
	if !ok {
		return false
	}
	wasBelow := change.PrevScore == nil || float64(*change.PrevScore) < threshold
	return wasBelow && float64(change.NewScore) >= threshold
}

// Fires when the stage changed; an optional "stage" config key narrows
// the trigger to transitions into that stage.
func stageChanged(w Workflow, change Change) bool {
	if change.NewStage == change.PrevStage {
		return false
	}
	if target, ok := configString(w.TriggerConfig, "stage"); ok {
		return change.NewStage == target
	}
	return true
}

// Fires when the configured field is among the changed fields.
func fieldUpdated(w Workflow, change Change) bool {
	field, ok := configString(w.TriggerConfig, "field")
	if !ok {
		return false
	}
	for _, changed := range change.ChangedFields {
		if changed == field {
			return true
		}
	}
	return false
}

func configFloat(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func configString(config map[string]any, key string) (string, bool) {
	v, ok := config[key].(string)
	return v, ok && v != ""
}
