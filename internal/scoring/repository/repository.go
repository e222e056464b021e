// Package repository persists scoring rules and the append-only lead score
// history with PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/platform/apperr"
)

const ruleNotFoundMessage = "scoring rule not found"

// Rule is a stored scoring rule.
type Rule struct {
	ID        uuid.UUID
	Name      string
	RuleType  engine.RuleType
	FieldName string
	Operator  engine.Operator
	Value     any
	Points    int
	IsActive  bool
	Priority  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Engine converts the stored rule to its evaluator form.
func (r Rule) Engine() engine.Rule {
	return engine.Rule{
		ID:        r.ID,
		Name:      r.Name,
		RuleType:  r.RuleType,
		FieldName: r.FieldName,
		Operator:  r.Operator,
		Value:     r.Value,
		Points:    r.Points,
	}
}

// RuleUpsert carries the writable rule fields.
type RuleUpsert struct {
	Name      string
	RuleType  engine.RuleType
	FieldName string
	Operator  engine.Operator
	Value     any
	Points    int
	IsActive  bool
	Priority  int
}

// ListRulesParams filters rule listings.
type ListRulesParams struct {
	RuleType *engine.RuleType
	IsActive *bool
}

// LeadScore is one immutable entry in a lead's score history.
type LeadScore struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	Score      int
	Breakdown  map[engine.RuleType]int
	Warnings   []engine.Warning
	Stage      string
	ComputedAt time.Time
}

// DistributionBucket is one 10-point histogram bucket of current scores.
type DistributionBucket struct {
	LowerBound int `json:"lowerBound"`
	Count      int `json:"count"`
}

// StageCount is the number of leads currently in a stage.
type StageCount struct {
	Stage string `json:"stage"`
	Count int    `json:"count"`
}

// Repository implements scoring persistence with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new scoring repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRule inserts a new scoring rule.
func (r *Repository) CreateRule(ctx context.Context, upsert RuleUpsert) (Rule, error) {
	valueJSON, err := json.Marshal(upsert.Value)
	if err != nil {
		return Rule{}, fmt.Errorf("marshal rule value: %w", err)
	}

	query := `
		INSERT INTO scoring_rules (id, name, rule_type, field_name, operator, value, points, is_active, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at`

	rule := Rule{
		ID:        uuid.New(),
		Name:      upsert.Name,
		RuleType:  upsert.RuleType,
		FieldName: upsert.FieldName,
		Operator:  upsert.Operator,
		Value:     upsert.Value,
		Points:    upsert.Points,
		IsActive:  upsert.IsActive,
		Priority:  upsert.Priority,
	}

	err = r.pool.QueryRow(ctx, query,
		rule.ID, rule.Name, rule.RuleType, rule.FieldName, rule.Operator,
		valueJSON, rule.Points, rule.IsActive, rule.Priority,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return Rule{}, fmt.Errorf("create scoring rule: %w", err)
	}

	return rule, nil
}

// UpdateRule rewrites a rule's writable fields.
func (r *Repository) UpdateRule(ctx context.Context, id uuid.UUID, upsert RuleUpsert) (Rule, error) {
	valueJSON, err := json.Marshal(upsert.Value)
	if err != nil {
		return Rule{}, fmt.Errorf("marshal rule value: %w", err)
	}

	query := `
		UPDATE scoring_rules
		SET name = $2, rule_type = $3, field_name = $4, operator = $5, value = $6,
		    points = $7, is_active = $8, priority = $9, updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		id, upsert.Name, upsert.RuleType, upsert.FieldName, upsert.Operator,
		valueJSON, upsert.Points, upsert.IsActive, upsert.Priority,
	)
	if err != nil {
		return Rule{}, fmt.Errorf("update scoring rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Rule{}, apperr.NotFound(ruleNotFoundMessage)
	}

	return r.GetRule(ctx, id)
}

// GetRule retrieves one scoring rule by ID.
func (r *Repository) GetRule(ctx context.Context, id uuid.UUID) (Rule, error) {
	query := `
		SELECT id, name, rule_type, field_name, operator, value, points, is_active, priority, created_at, updated_at
		FROM scoring_rules
		WHERE id = $1`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return Rule{}, fmt.Errorf("get scoring rule: %w", err)
	}
	return rule, nil
}

// DeleteRule removes a scoring rule.
func (r *Repository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM scoring_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete scoring rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(ruleNotFoundMessage)
	}
	return nil
}

// ListRules retrieves rules with optional filters, in evaluation order:
// priority descending, insertion order breaking ties.
func (r *Repository) ListRules(ctx context.Context, params ListRulesParams) ([]Rule, error) {
	query := `
		SELECT id, name, rule_type, field_name, operator, value, points, is_active, priority, created_at, updated_at
		FROM scoring_rules
		WHERE ($1::text IS NULL OR rule_type = $1)
		  AND ($2::boolean IS NULL OR is_active = $2)
		ORDER BY priority DESC, created_at ASC, id ASC`

	var ruleTypeParam any
	if params.RuleType != nil {
		ruleTypeParam = string(*params.RuleType)
	}
	var isActiveParam any
	if params.IsActive != nil {
		isActiveParam = *params.IsActive
	}

	rows, err := r.pool.Query(ctx, query, ruleTypeParam, isActiveParam)
	if err != nil {
		return nil, fmt.Errorf("list scoring rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scoring rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListActiveRules retrieves all active rules in evaluation order.
func (r *Repository) ListActiveRules(ctx context.Context) ([]Rule, error) {
	active := true
	return r.ListRules(ctx, ListRulesParams{IsActive: &active})
}

// RuleReferenced reports whether any historical score was computed after
// the rule was created, in which case the rule's comparison fields are
// frozen (only is_active and priority stay editable).
func (r *Repository) RuleReferenced(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM lead_scores ls, scoring_rules sr
			WHERE sr.id = $1 AND ls.computed_at >= sr.created_at
		)`

	var referenced bool
	if err := r.pool.QueryRow(ctx, query, id).Scan(&referenced); err != nil {
		return false, fmt.Errorf("check rule referenced: %w", err)
	}
	return referenced, nil
}

// InsertScore appends one LeadScore to the history. Scores are never
// updated or deleted.
func (r *Repository) InsertScore(ctx context.Context, score LeadScore) (LeadScore, error) {
	breakdownJSON, err := json.Marshal(score.Breakdown)
	if err != nil {
		return LeadScore{}, fmt.Errorf("marshal score breakdown: %w", err)
	}
	warningsJSON, err := json.Marshal(score.Warnings)
	if err != nil {
		return LeadScore{}, fmt.Errorf("marshal score warnings: %w", err)
	}

	if score.ID == uuid.Nil {
		score.ID = uuid.New()
	}

	query := `
		INSERT INTO lead_scores (id, lead_id, score, breakdown, warnings, stage, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.pool.Exec(ctx, query,
		score.ID, score.LeadID, score.Score, breakdownJSON, warningsJSON,
		score.Stage, score.ComputedAt,
	)
	if err != nil {
		return LeadScore{}, fmt.Errorf("insert lead score: %w", err)
	}

	return score, nil
}

// LatestScore returns the most recent score entry for a lead, or
// apperr.NotFound when the lead has never been scored.
func (r *Repository) LatestScore(ctx context.Context, leadID uuid.UUID) (LeadScore, error) {
	query := `
		SELECT id, lead_id, score, breakdown, warnings, stage, computed_at
		FROM lead_scores
		WHERE lead_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT 1`

	score, err := scanScore(r.pool.QueryRow(ctx, query, leadID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LeadScore{}, apperr.NotFound("lead has no score history")
		}
		return LeadScore{}, fmt.Errorf("latest lead score: %w", err)
	}
	return score, nil
}

// History retrieves a lead's full score history ordered by computation time.
func (r *Repository) History(ctx context.Context, leadID uuid.UUID) ([]LeadScore, error) {
	query := `
		SELECT id, lead_id, score, breakdown, warnings, stage, computed_at
		FROM lead_scores
		WHERE lead_id = $1
		ORDER BY computed_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("lead score history: %w", err)
	}
	defer rows.Close()

	var scores []LeadScore
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// StageEnteredAt returns when the lead's current stage was first entered:
// the computed_at of the earliest entry in the latest unbroken run of that
// stage. Used by time-based workflow triggers to measure dwell time.
func (r *Repository) StageEnteredAt(ctx context.Context, leadID uuid.UUID) (string, time.Time, error) {
	history, err := r.History(ctx, leadID)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(history) == 0 {
		return "", time.Time{}, apperr.NotFound("lead has no score history")
	}

	latest := history[len(history)-1]
	enteredAt := latest.ComputedAt
	for i := len(history) - 2; i >= 0; i-- {
		if history[i].Stage != latest.Stage {
			break
		}
		enteredAt = history[i].ComputedAt
	}
	return latest.Stage, enteredAt, nil
}

// Distribution returns a histogram of every lead's current score in
// 10-point buckets, plus per-stage lead counts.
func (r *Repository) Distribution(ctx context.Context) ([]DistributionBucket, []StageCount, error) {
	query := `
		SELECT DISTINCT ON (lead_id) score, stage
		FROM lead_scores
		ORDER BY lead_id, computed_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("score distribution: %w", err)
	}
	defer rows.Close()

	bucketCounts := make(map[int]int)
	stageCounts := make(map[string]int)
	for rows.Next() {
		var score int
		var stage string
		if err := rows.Scan(&score, &stage); err != nil {
			return nil, nil, fmt.Errorf("scan current score: %w", err)
		}
		bucketCounts[bucketLowerBound(score)]++
		stageCounts[stage]++
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	buckets := make([]DistributionBucket, 0, len(bucketCounts))
	for bound, count := range bucketCounts {
		buckets = append(buckets, DistributionBucket{LowerBound: bound, Count: count})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].LowerBound < buckets[j].LowerBound })

	stages := make([]StageCount, 0, len(stageCounts))
	for stage, count := range stageCounts {
		stages = append(stages, StageCount{Stage: stage, Count: count})
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Stage < stages[j].Stage })

	return buckets, stages, nil
}

// bucketLowerBound floors a score to its 10-point bucket. Floor rather
// than truncation: negative scores belong to their own buckets, not the
// zero bucket.
func bucketLowerBound(score int) int {
	bucket := score / 10
	if score < 0 && score%10 != 0 {
		bucket--
	}
	return bucket * 10
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var rule Rule
	var valueJSON []byte
	err := row.Scan(
		&rule.ID, &rule.Name, &rule.RuleType, &rule.FieldName, &rule.Operator,
		&valueJSON, &rule.Points, &rule.IsActive, &rule.Priority,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return Rule{}, err
	}
	if len(valueJSON) > 0 {
		if err := json.Unmarshal(valueJSON, &rule.Value); err != nil {
			return Rule{}, fmt.Errorf("unmarshal rule value: %w", err)
		}
	}
	return rule, nil
}

func scanScore(row rowScanner) (LeadScore, error) {
	var score LeadScore
	var breakdownJSON, warningsJSON []byte
	err := row.Scan(
		&score.ID, &score.LeadID, &score.Score, &breakdownJSON, &warningsJSON,
		&score.Stage, &score.ComputedAt,
	)
	if err != nil {
		return LeadScore{}, err
	}
	if len(breakdownJSON) > 0 {
		if err := json.Unmarshal(breakdownJSON, &score.Breakdown); err != nil {
			return LeadScore{}, fmt.Errorf("unmarshal score breakdown: %w", err)
		}
	}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &score.Warnings); err != nil {
			return LeadScore{}, fmt.Errorf("unmarshal score warnings: %w", err)
		}
	}
	return score, nil
}
