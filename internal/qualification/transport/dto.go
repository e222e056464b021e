package transport

import (
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/qualification/classifier"
	"leadscoring_backend/internal/qualification/repository"
)

// CreateCriteriaRequest is the request body for creating qualification criteria.
type CreateCriteriaRequest struct {
	Name            string   `json:"name" validate:"required,min=1,max=200"`
	TargetStage     string   `json:"targetStage" validate:"required,oneof=mql sql opportunity"`
	MinimumScore    int      `json:"minimumScore" validate:"min=0"`
	RequiredFields  []string `json:"requiredFields"`
	RequiredActions []string `json:"requiredActions"`
	MinAgeDays      *int     `json:"minAgeDays,omitempty" validate:"omitempty,min=0"`
	MaxAgeDays      *int     `json:"maxAgeDays,omitempty" validate:"omitempty,min=0"`
	IsActive        *bool    `json:"isActive"`
}

// Upsert converts the request to the repository's writable form. IsActive
// defaults to true when omitted.
func (r CreateCriteriaRequest) Upsert() repository.CriteriaUpsert {
	active := true
	if r.IsActive != nil {
		active = *r.IsActive
	}
	return repository.CriteriaUpsert{
		Name:            r.Name,
		TargetStage:     classifier.Stage(r.TargetStage),
		MinimumScore:    r.MinimumScore,
		RequiredFields:  r.RequiredFields,
		RequiredActions: r.RequiredActions,
		MinAgeDays:      r.MinAgeDays,
		MaxAgeDays:      r.MaxAgeDays,
		IsActive:        active,
	}
}

// UpdateCriteriaRequest is the request body for rewriting criteria.
type UpdateCriteriaRequest = CreateCriteriaRequest

// CriteriaResponse is the API view of a criteria set.
type CriteriaResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	TargetStage     string    `json:"targetStage"`
	MinimumScore    int       `json:"minimumScore"`
	RequiredFields  []string  `json:"requiredFields"`
	RequiredActions []string  `json:"requiredActions"`
	MinAgeDays      *int      `json:"minAgeDays,omitempty"`
	MaxAgeDays      *int      `json:"maxAgeDays,omitempty"`
	IsActive        bool      `json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewCriteriaResponse maps stored criteria to the API view.
func NewCriteriaResponse(criteria repository.Criteria) CriteriaResponse {
	return CriteriaResponse{
		ID:              criteria.ID,
		Name:            criteria.Name,
		TargetStage:     string(criteria.TargetStage),
		MinimumScore:    criteria.MinimumScore,
		RequiredFields:  criteria.RequiredFields,
		RequiredActions: criteria.RequiredActions,
		MinAgeDays:      criteria.MinAgeDays,
		MaxAgeDays:      criteria.MaxAgeDays,
		IsActive:        criteria.IsActive,
		CreatedAt:       criteria.CreatedAt,
		UpdatedAt:       criteria.UpdatedAt,
	}
}

// NewCriteriaResponses maps a criteria slice to API views.
func NewCriteriaResponses(criteria []repository.Criteria) []CriteriaResponse {
	out := make([]CriteriaResponse, len(criteria))
	for i, c := range criteria {
		out[i] = NewCriteriaResponse(c)
	}
	return out
}

// CheckLeadRequest is the request body for a dry-run criteria check.
type CheckLeadRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
}
