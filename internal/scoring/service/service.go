// Package service implements the scoring engine: rule management, the
// per-lead recalculation pipeline, and bulk rescoring.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leadscoring_backend/internal/events"
	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/scoring/ports"
	"leadscoring_backend/internal/scoring/repository"
	"leadscoring_backend/platform/apperr"
	"leadscoring_backend/platform/logger"
)

// StageUnqualified is the stage reported when no qualification criteria
// match, and before a classifier is wired.
const StageUnqualified = "unqualified"

const defaultBulkConcurrency = 8

// Store is the persistence surface the scoring service depends on.
type Store interface {
	CreateRule(ctx context.Context, upsert repository.RuleUpsert) (repository.Rule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, upsert repository.RuleUpsert) (repository.Rule, error)
	GetRule(ctx context.Context, id uuid.UUID) (repository.Rule, error)
	DeleteRule(ctx context.Context, id uuid.UUID) error
	ListRules(ctx context.Context, params repository.ListRulesParams) ([]repository.Rule, error)
	ListActiveRules(ctx context.Context) ([]repository.Rule, error)
	RuleReferenced(ctx context.Context, id uuid.UUID) (bool, error)
	InsertScore(ctx context.Context, score repository.LeadScore) (repository.LeadScore, error)
	LatestScore(ctx context.Context, leadID uuid.UUID) (repository.LeadScore, error)
	History(ctx context.Context, leadID uuid.UUID) ([]repository.LeadScore, error)
	Distribution(ctx context.Context) ([]repository.DistributionBucket, []repository.StageCount, error)
}

// Service computes and persists lead scores.
type Service struct {
	store Store
	leads ports.LeadReader
	log   *logger.Logger
	bus   events.Bus
	locks *leadLocks

	classifier ports.Classifier
	matcher    ports.TriggerMatcher
	dispatcher ports.ExecutionDispatcher

	bulkConcurrency int
}

// New creates a new scoring service. The classifier, trigger matcher, and
// execution dispatcher are injected by the composition root after all
// modules exist.
func New(store Store, leads ports.LeadReader, bus events.Bus, log *logger.Logger, bulkConcurrency int) *Service {
	if bulkConcurrency < 1 {
		bulkConcurrency = defaultBulkConcurrency
	}
	return &Service{
		store:           store,
		leads:           leads,
		bus:             bus,
		log:             log,
		locks:           newLeadLocks(),
		bulkConcurrency: bulkConcurrency,
	}
}

// SetClassifier wires the qualification classifier.
func (s *Service) SetClassifier(c ports.Classifier) { s.classifier = c }

// SetTriggerMatcher wires the workflow trigger matcher.
func (s *Service) SetTriggerMatcher(m ports.TriggerMatcher) { s.matcher = m }

// SetExecutionDispatcher wires the asynchronous workflow execution dispatcher.
func (s *Service) SetExecutionDispatcher(d ports.ExecutionDispatcher) { s.dispatcher = d }

// =============================================================================
// Rule management
// =============================================================================

// CreateRule validates and stores a new scoring rule.
func (s *Service) CreateRule(ctx context.Context, upsert repository.RuleUpsert) (repository.Rule, error) {
	if err := validateRule(upsert); err != nil {
		return repository.Rule{}, err
	}
	return s.store.CreateRule(ctx, upsert)
}

// UpdateRule rewrites a rule. Once a rule is referenced by historical
// scores its comparison fields are frozen; only is_active and priority may
// change.
func (s *Service) UpdateRule(ctx context.Context, id uuid.UUID, upsert repository.RuleUpsert) (repository.Rule, error) {
	if err := validateRule(upsert); err != nil {
		return repository.Rule{}, err
	}

	existing, err := s.store.GetRule(ctx, id)
	if err != nil {
		return repository.Rule{}, err
	}

	referenced, err := s.store.RuleReferenced(ctx, id)
	if err != nil {
		return repository.Rule{}, err
	}
	if referenced && !sameComparison(existing, upsert) {
		return repository.Rule{}, apperr.Conflict(
			"rule is referenced by score history; only is_active and priority may change")
	}

	return s.store.UpdateRule(ctx, id, upsert)
}

// GetRule retrieves one rule.
func (s *Service) GetRule(ctx context.Context, id uuid.UUID) (repository.Rule, error) {
	return s.store.GetRule(ctx, id)
}

// DeleteRule removes a rule that is not referenced by score history.
func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	referenced, err := s.store.RuleReferenced(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return apperr.Conflict("rule is referenced by score history; deactivate it instead")
	}
	return s.store.DeleteRule(ctx, id)
}

// ListRules retrieves rules with optional filters.
func (s *Service) ListRules(ctx context.Context, params repository.ListRulesParams) ([]repository.Rule, error) {
	return s.store.ListRules(ctx, params)
}

// TestRuleResult is the outcome of a dry-run rule evaluation.
type TestRuleResult struct {
	Matched bool            `json:"matched"`
	Points  int             `json:"points"`
	Warning *engine.Warning `json:"warning,omitempty"`
}

// TestRule evaluates one rule against a sample snapshot without persisting
// anything. When snapshot is nil, the facts of the given lead are used.
func (s *Service) TestRule(ctx context.Context, id uuid.UUID, leadID *uuid.UUID, snapshot engine.Snapshot) (TestRuleResult, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return TestRuleResult{}, err
	}

	if snapshot == nil {
		if leadID == nil {
			return TestRuleResult{}, apperr.BadRequest("either leadId or snapshot is required")
		}
		facts, err := s.leads.GetFacts(ctx, *leadID)
		if err != nil {
			return TestRuleResult{}, err
		}
		snapshot = facts.Snapshot
	}

	engineRule := rule.Engine()
	matched, warn := engine.EvalCondition(snapshot, engine.Condition{
		Field:    engineRule.FieldName,
		Operator: engineRule.Operator,
		Value:    engineRule.Value,
	})
	if warn != nil {
		warn.RuleID = engineRule.ID
		warn.RuleName = engineRule.Name
		return TestRuleResult{Warning: warn}, nil
	}

	result := TestRuleResult{Matched: matched}
	if matched {
		result.Points = engineRule.Points
	}
	return result, nil
}

// =============================================================================
// Score calculation pipeline
// =============================================================================

// Result is the outcome of one lead's recalculation.
type Result struct {
	Score         repository.LeadScore
	PreviousScore *int
	PreviousStage string
	Matched       []ports.MatchedWorkflow
}

// Calculate runs the full per-lead pipeline: evaluate rules, classify,
// persist the LeadScore, match workflow triggers, and dispatch matched
// workflows for asynchronous execution. The whole sequence holds the
// lead's lock so concurrent recalculations serialize.
func (s *Service) Calculate(ctx context.Context, leadID uuid.UUID, changedFields []string) (*Result, error) {
	release := s.locks.Acquire(leadID)
	defer release()

	facts, err := s.leads.GetFacts(ctx, leadID)
	if err != nil {
		return nil, err
	}

	rules, err := s.store.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	var prevScore *int
	prevStage := StageUnqualified
	if latest, err := s.store.LatestScore(ctx, leadID); err == nil {
		score := latest.Score
		prevScore = &score
		prevStage = latest.Stage
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}

	engineRules := make([]engine.Rule, len(rules))
	for i, rule := range rules {
		engineRules[i] = rule.Engine()
	}
	outcome := engine.Score(facts.Snapshot, engineRules)

	stage := StageUnqualified
	if s.classifier != nil {
		stage, err = s.classifier.Classify(ctx, facts, outcome.Total)
		if err != nil {
			return nil, fmt.Errorf("classify lead: %w", err)
		}
	}

	score, err := s.store.InsertScore(ctx, repository.LeadScore{
		LeadID:     leadID,
		Score:      outcome.Total,
		Breakdown:  outcome.Breakdown,
		Warnings:   outcome.Warnings,
		Stage:      stage,
		ComputedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	result := &Result{Score: score, PreviousScore: prevScore, PreviousStage: prevStage}

	if s.matcher != nil {
		change := ports.StateChange{
			LeadID:        leadID,
			PrevScore:     prevScore,
			NewScore:      outcome.Total,
			PrevStage:     prevStage,
			NewStage:      stage,
			ChangedFields: changedFields,
			Facts:         facts,
		}
		matched, err := s.matcher.Match(ctx, change)
		if err != nil {
			// Trigger matching failure must not undo the persisted score.
			s.log.Error("workflow trigger matching failed", "lead_id", leadID, "error", err)
		} else if len(matched) > 0 && s.dispatcher != nil {
			result.Matched = matched
			if err := s.dispatcher.Dispatch(ctx, leadID, matched); err != nil {
				s.log.Error("workflow dispatch failed", "lead_id", leadID, "error", err)
			}
		}
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.ScoreCalculated{
			BaseEvent:     events.NewBaseEvent(),
			LeadID:        leadID,
			Score:         outcome.Total,
			Stage:         stage,
			PreviousStage: prevStage,
		})
	}

	s.log.ScoreComputed(leadID.String(), outcome.Total, stage, len(outcome.Warnings))

	return result, nil
}

// LeadError is a per-lead failure inside a bulk operation.
type LeadError struct {
	LeadID uuid.UUID `json:"leadId"`
	Error  string    `json:"error"`
}

// BulkResult collects per-lead outcomes of a bulk recalculation.
type BulkResult struct {
	Results []Result
	Errors  []LeadError
}

// BulkCalculate rescores many leads. Leads are processed with bounded
// parallelism; each lead holds only its own lock, and one lead's failure
// never aborts the rest. Cancellation stops scheduling further leads but
// leaves already-written scores intact.
func (s *Service) BulkCalculate(ctx context.Context, leadIDs []uuid.UUID) (BulkResult, error) {
	var (
		mu     sync.Mutex
		bulk   BulkResult
		g, gtx = errgroup.WithContext(ctx)
	)
	g.SetLimit(s.bulkConcurrency)

	for _, leadID := range leadIDs {
		if gtx.Err() != nil {
			break
		}
		id := leadID
		g.Go(func() error {
			result, err := s.Calculate(gtx, id, nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				bulk.Errors = append(bulk.Errors, LeadError{LeadID: id, Error: err.Error()})
				return nil
			}
			bulk.Results = append(bulk.Results, *result)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return bulk, err
	}

	if len(leadIDs) > 0 && len(bulk.Results) == 0 && ctx.Err() == nil {
		return bulk, apperr.Internal("all leads failed to score")
	}
	return bulk, nil
}

// RecalculateAll rescores every active lead. Used by the daily
// recalculation sweep.
func (s *Service) RecalculateAll(ctx context.Context) (BulkResult, error) {
	leadIDs, err := s.leads.ListActiveLeadIDs(ctx)
	if err != nil {
		return BulkResult{}, err
	}
	return s.BulkCalculate(ctx, leadIDs)
}

// History returns a lead's score history, oldest first.
func (s *Service) History(ctx context.Context, leadID uuid.UUID) ([]repository.LeadScore, error) {
	return s.store.History(ctx, leadID)
}

// Distribution returns the current score histogram and per-stage counts.
func (s *Service) Distribution(ctx context.Context) ([]repository.DistributionBucket, []repository.StageCount, error) {
	return s.store.Distribution(ctx)
}

// =============================================================================
// Validation
// =============================================================================

func validateRule(upsert repository.RuleUpsert) error {
	if upsert.Name == "" {
		return apperr.Validation("rule name is required")
	}
	if !upsert.RuleType.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown rule type %q", string(upsert.RuleType)))
	}
	if upsert.FieldName == "" {
		return apperr.Validation("rule field name is required")
	}
	if !upsert.Operator.Valid() {
		return apperr.Validation(fmt.Sprintf("unknown operator %q", string(upsert.Operator)))
	}
	if upsert.Points < engine.MinRulePoints || upsert.Points > engine.MaxRulePoints {
		return apperr.Validation(fmt.Sprintf("points must be between %d and %d", engine.MinRulePoints, engine.MaxRulePoints))
	}
	if upsert.Operator == engine.OpInList {
		if _, ok := upsert.Value.([]any); !ok {
			return apperr.Validation("in_list rules require a list value")
		}
	}
	switch upsert.Operator {
	case engine.OpIsEmpty, engine.OpIsNotEmpty:
		// No comparison value needed.
	default:
		if upsert.Value == nil {
			return apperr.Validation("rules with this operator require a comparison value")
		}
	}
	return nil
}

func sameComparison(existing repository.Rule, upsert repository.RuleUpsert) bool {
	if existing.Name != upsert.Name ||
		existing.RuleType != upsert.RuleType ||
		existing.FieldName != upsert.FieldName ||
		existing.Operator != upsert.Operator ||
		existing.Points != upsert.Points {
		return false
	}
	return fmt.Sprintf("%v", existing.Value) == fmt.Sprintf("%v", upsert.Value)
}
