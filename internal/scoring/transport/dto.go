package transport

import (
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/scoring/repository"
	"leadscoring_backend/internal/scoring/service"
)

// CreateRuleRequest is the request body for creating a scoring rule.
type CreateRuleRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=200"`
	RuleType  string `json:"ruleType" validate:"required,oneof=demographic behavioral firmographic"`
	FieldName string `json:"fieldName" validate:"required,min=1,max=100"`
	Operator  string `json:"operator" validate:"required,oneof=equals not_equals contains greater_than less_than in_list is_empty is_not_empty"`
	Value     any    `json:"value"`
	Points    int    `json:"points" validate:"min=-100,max=100"`
	IsActive  *bool  `json:"isActive"`
	Priority  int    `json:"priority" validate:"min=0"`
}

// Upsert converts the request to the repository's writable form. IsActive
// defaults to true when omitted.
func (r CreateRuleRequest) Upsert() repository.RuleUpsert {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return repository.RuleUpsert{
		Name:      r.Name,
		RuleType:  engine.RuleType(r.RuleType),
		FieldName: r.FieldName,
		Operator:  engine.Operator(r.Operator),
		Value:     r.Value,
		Points:    r.Points,
		IsActive:  active,
		Priority:  r.Priority,
	}
}

// UpdateRuleRequest is the request body for rewriting a scoring rule.
type UpdateRuleRequest = CreateRuleRequest

// ListRulesRequest is the query parameters for listing rules.
type ListRulesRequest struct {
	RuleType *string `form:"ruleType" validate:"omitempty,oneof=demographic behavioral firmographic"`
	IsActive *bool   `form:"isActive"`
}

// Params converts the request to repository filter parameters.
func (r ListRulesRequest) Params() repository.ListRulesParams {
	params := repository.ListRulesParams{IsActive: r.IsActive}
	if r.RuleType != nil {
		ruleType := engine.RuleType(*r.RuleType)
		params.RuleType = &ruleType
	}
	return params
}

// RuleResponse is the API view of a scoring rule.
type RuleResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	RuleType  string    `json:"ruleType"`
	FieldName string    `json:"fieldName"`
	Operator  string    `json:"operator"`
	Value     any       `json:"value"`
	Points    int       `json:"points"`
	IsActive  bool      `json:"isActive"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewRuleResponse maps a stored rule to its API view.
func NewRuleResponse(rule repository.Rule) RuleResponse {
	return RuleResponse{
		ID:        rule.ID,
		Name:      rule.Name,
		RuleType:  string(rule.RuleType),
		FieldName: rule.FieldName,
		Operator:  string(rule.Operator),
		Value:     rule.Value,
		Points:    rule.Points,
		IsActive:  rule.IsActive,
		Priority:  rule.Priority,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}

// NewRuleResponses maps a rule slice to API views.
func NewRuleResponses(rules []repository.Rule) []RuleResponse {
	out := make([]RuleResponse, len(rules))
	for i, rule := range rules {
		out[i] = NewRuleResponse(rule)
	}
	return out
}

// TestRuleRequest is the request body for a dry-run rule evaluation.
// Exactly one of LeadID or Snapshot should be provided.
type TestRuleRequest struct {
	LeadID   *uuid.UUID     `json:"leadId,omitempty"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
}

// CalculateRequest is the request body for scoring one lead.
type CalculateRequest struct {
	LeadID        uuid.UUID `json:"leadId" validate:"required"`
	ChangedFields []string  `json:"changedFields,omitempty"`
}

// BulkCalculateRequest is the request body for scoring many leads.
type BulkCalculateRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=1000"`
}

// ScoreResponse is the API view of one score history entry.
type ScoreResponse struct {
	ID         uuid.UUID        `json:"id"`
	LeadID     uuid.UUID        `json:"leadId"`
	Score      int              `json:"score"`
	Breakdown  map[string]int   `json:"breakdown"`
	Warnings   []engine.Warning `json:"warnings,omitempty"`
	Stage      string           `json:"stage"`
	ComputedAt time.Time        `json:"computedAt"`
}

// NewScoreResponse maps a stored score to its API view.
func NewScoreResponse(score repository.LeadScore) ScoreResponse {
	breakdown := make(map[string]int, len(score.Breakdown))
	for ruleType, points := range score.Breakdown {
		breakdown[string(ruleType)] = points
	}
	return ScoreResponse{
		ID:         score.ID,
		LeadID:     score.LeadID,
		Score:      score.Score,
		Breakdown:  breakdown,
		Warnings:   score.Warnings,
		Stage:      score.Stage,
		ComputedAt: score.ComputedAt,
	}
}

// CalculateResponse reports the outcome of one lead's calculation.
type CalculateResponse struct {
	Score         ScoreResponse `json:"score"`
	PreviousScore *int          `json:"previousScore,omitempty"`
	PreviousStage string        `json:"previousStage"`
}

// NewCalculateResponse maps a pipeline result to its API view.
func NewCalculateResponse(result service.Result) CalculateResponse {
	return CalculateResponse{
		Score:         NewScoreResponse(result.Score),
		PreviousScore: result.PreviousScore,
		PreviousStage: result.PreviousStage,
	}
}

// BulkCalculateResponse reports per-lead outcomes of a bulk calculation.
type BulkCalculateResponse struct {
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
	Results   []CalculateResponse `json:"results"`
	Errors    []service.LeadError `json:"errors,omitempty"`
}

// NewBulkCalculateResponse maps a bulk result to its API view.
func NewBulkCalculateResponse(bulk service.BulkResult) BulkCalculateResponse {
	results := make([]CalculateResponse, len(bulk.Results))
	for i, result := range bulk.Results {
		results[i] = NewCalculateResponse(result)
	}
	return BulkCalculateResponse{
		Succeeded: len(bulk.Results),
		Failed:    len(bulk.Errors),
		Results:   results,
		Errors:    bulk.Errors,
	}
}

// DistributionResponse is the current-score histogram plus stage counts.
type DistributionResponse struct {
	Buckets []repository.DistributionBucket `json:"buckets"`
	Stages  []repository.StageCount         `json:"stages"`
}
