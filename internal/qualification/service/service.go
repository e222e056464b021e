// Package service implements qualification criteria management and lead
// stage classification.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/qualification/classifier"
	"leadscoring_backend/internal/qualification/repository"
	"leadscoring_backend/platform/apperr"
)

// Store is the persistence surface the qualification service depends on.
type Store interface {
	Create(ctx context.Context, upsert repository.CriteriaUpsert) (repository.Criteria, error)
	Update(ctx context.Context, id uuid.UUID, upsert repository.CriteriaUpsert) (repository.Criteria, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Criteria, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]repository.Criteria, error)
	ListActive(ctx context.Context) ([]repository.Criteria, error)
}

// LeadReader provides the lead facts the classifier inspects.
type LeadReader interface {
	GetFacts(ctx context.Context, leadID uuid.UUID) (classifier.Facts, int, error)
}

// Service manages qualification criteria and classifies leads.
type Service struct {
	store Store
	leads LeadReader
	now   func() time.Time
}

// New creates a new qualification service.
func New(store Store, leads LeadReader) *Service {
	return &Service{store: store, leads: leads, now: time.Now}
}

// Create validates and stores a new criteria set.
func (s *Service) Create(ctx context.Context, upsert repository.CriteriaUpsert) (repository.Criteria, error) {
	if err := validateCriteria(upsert); err != nil {
		return repository.Criteria{}, err
	}
	return s.store.Create(ctx, upsert)
}

// Update rewrites a criteria set.
func (s *Service) Update(ctx context.Context, id uuid.UUID, upsert repository.CriteriaUpsert) (repository.Criteria, error) {
	if err := validateCriteria(upsert); err != nil {
		return repository.Criteria{}, err
	}
	return s.store.Update(ctx, id, upsert)
}

// GetByID retrieves one criteria set.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (repository.Criteria, error) {
	return s.store.GetByID(ctx, id)
}

// Delete removes a criteria set.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.Delete(ctx, id)
}

// List retrieves all criteria.
func (s *Service) List(ctx context.Context) ([]repository.Criteria, error) {
	return s.store.List(ctx)
}

// CheckResult is the outcome of a dry-run criteria evaluation for a lead.
type CheckResult struct {
	Matched  bool                      `json:"matched"`
	Stage    classifier.Stage          `json:"stage"`
	Score    int                       `json:"score"`
	Failures []classifier.CheckFailure `json:"failures,omitempty"`
}

// CheckLead evaluates one lead against one criteria set. Pure evaluation,
// nothing is persisted.
func (s *Service) CheckLead(ctx context.Context, criteriaID, leadID uuid.UUID) (CheckResult, error) {
	criteria, err := s.store.GetByID(ctx, criteriaID)
	if err != nil {
		return CheckResult{}, err
	}

	facts, score, err := s.leads.GetFacts(ctx, leadID)
	if err != nil {
		return CheckResult{}, err
	}

	failures := classifier.Check(criteria.Classifier(), facts, score, s.now())
	return CheckResult{
		Matched:  len(failures) == 0,
		Stage:    criteria.TargetStage,
		Score:    score,
		Failures: failures,
	}, nil
}

// Classify maps lead facts plus a score to a qualification stage using the
// active criteria. This is the entry point the scoring pipeline calls.
func (s *Service) Classify(ctx context.Context, facts classifier.Facts, score int) (string, error) {
	stored, err := s.store.ListActive(ctx)
	if err != nil {
		return "", err
	}
	criteria := make([]classifier.Criteria, len(stored))
	for i, c := range stored {
		criteria[i] = c.Classifier()
	}
	return string(classifier.Classify(criteria, facts, score, s.now())), nil
}

func validateCriteria(upsert repository.CriteriaUpsert) error {
	if upsert.Name == "" {
		return apperr.Validation("criteria name is required")
	}
	if !upsert.TargetStage.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown target stage %q", string(upsert.TargetStage)))
	}
	if upsert.MinimumScore < 0 {
		return apperr.Validation("minimum score must not be negative")
	}
	if upsert.MinAgeDays != nil && *upsert.MinAgeDays < 0 {
		return apperr.Validation("minimum lead age must not be negative")
	}
	if upsert.MaxAgeDays != nil && *upsert.MaxAgeDays < 0 {
		return apperr.Validation("maximum lead age must not be negative")
	}
	if upsert.MinAgeDays != nil && upsert.MaxAgeDays != nil && *upsert.MinAgeDays > *upsert.MaxAgeDays {
		return apperr.Validation("minimum lead age exceeds maximum")
	}
	return nil
}
