// Package repository persists qualification criteria with PostgreSQL.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/qualification/classifier"
	"leadscoring_backend/platform/apperr"
)

const criteriaNotFoundMessage = "qualification criteria not found"

// Criteria is a stored qualification criteria set.
type Criteria struct {
	ID              uuid.UUID
	Name            string
	TargetStage     classifier.Stage
	MinimumScore    int
	RequiredFields  []string
	RequiredActions []string
	MinAgeDays      *int
	MaxAgeDays      *int
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Classifier converts the stored criteria to its evaluation form.
func (c Criteria) Classifier() classifier.Criteria {
	return classifier.Criteria{
		ID:              c.ID,
		Name:            c.Name,
		TargetStage:     c.TargetStage,
		MinimumScore:    c.MinimumScore,
		RequiredFields:  c.RequiredFields,
		RequiredActions: c.RequiredActions,
		MinAgeDays:      c.MinAgeDays,
		MaxAgeDays:      c.MaxAgeDays,
		CreatedAt:       c.CreatedAt,
	}
}

// CriteriaUpsert carries the writable criteria fields.
type CriteriaUpsert struct {
	Name            string
	TargetStage     classifier.Stage
	MinimumScore    int
	RequiredFields  []string
	RequiredActions []string
	MinAgeDays      *int
	MaxAgeDays      *int
	IsActive        bool
}

// Repository implements qualification persistence with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new qualification repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const criteriaColumns = `id, name, target_stage, minimum_score, required_fields, required_actions, min_age_days, max_age_days, is_active, created_at, updated_at`

// Create inserts a new criteria set.
func (r *Repository) Create(ctx context.Context, upsert CriteriaUpsert) (Criteria, error) {
	query := `
		INSERT INTO qualification_criteria (id, name, target_stage, minimum_score, required_fields, required_actions, min_age_days, max_age_days, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at`

	criteria := Criteria{
		ID:              uuid.New(),
		Name:            upsert.Name,
		TargetStage:     upsert.TargetStage,
		MinimumScore:    upsert.MinimumScore,
		RequiredFields:  upsert.RequiredFields,
		RequiredActions: upsert.RequiredActions,
		MinAgeDays:      upsert.MinAgeDays,
		MaxAgeDays:      upsert.MaxAgeDays,
		IsActive:        upsert.IsActive,
	}

	err := r.pool.QueryRow(ctx, query,
		criteria.ID, criteria.Name, criteria.TargetStage, criteria.MinimumScore,
		criteria.RequiredFields, criteria.RequiredActions,
		criteria.MinAgeDays, criteria.MaxAgeDays, criteria.IsActive,
	).Scan(&criteria.CreatedAt, &criteria.UpdatedAt)
	if err != nil {
		return Criteria{}, apperr.Wrap(apperr.KindInternal, "failed to create qualification criteria", err)
	}
	return criteria, nil
}

// Update rewrites a criteria set.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, upsert CriteriaUpsert) (Criteria, error) {
	query := `
		UPDATE qualification_criteria
		SET name = $2, target_stage = $3, minimum_score = $4, required_fields = $5,
		    required_actions = $6, min_age_days = $7, max_age_days = $8,
		    is_active = $9, updated_at = now()
		WHERE id = $1
		RETURNING ` + criteriaColumns

	row := r.pool.QueryRow(ctx, query,
		id, upsert.Name, upsert.TargetStage, upsert.MinimumScore,
		upsert.RequiredFields, upsert.RequiredActions,
		upsert.MinAgeDays, upsert.MaxAgeDays, upsert.IsActive,
	)
	criteria, err := scanCriteria(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Criteria{}, apperr.NotFound(criteriaNotFoundMessage)
		}
		return Criteria{}, apperr.Wrap(apperr.KindInternal, "failed to update qualification criteria", err)
	}
	return criteria, nil
}

// GetByID retrieves one criteria set.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Criteria, error) {
	query := `SELECT ` + criteriaColumns + ` FROM qualification_criteria WHERE id = $1`

	criteria, err := scanCriteria(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Criteria{}, apperr.NotFound(criteriaNotFoundMessage)
		}
		return Criteria{}, apperr.Wrap(apperr.KindInternal, "failed to get qualification criteria", err)
	}
	return criteria, nil
}

// Delete removes a criteria set.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM qualification_criteria WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to delete qualification criteria", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(criteriaNotFoundMessage)
	}
	return nil
}

// List retrieves all criteria, most advanced target stage first.
func (r *Repository) List(ctx context.Context) ([]Criteria, error) {
	query := `
		SELECT ` + criteriaColumns + `
		FROM qualification_criteria
		ORDER BY CASE target_stage
			WHEN 'opportunity' THEN 3
			WHEN 'sql' THEN 2
			WHEN 'mql' THEN 1
			ELSE 0
		END DESC, minimum_score ASC, created_at ASC`

	return r.queryCriteria(ctx, query)
}

// ListActive retrieves active criteria in the same order as List.
func (r *Repository) ListActive(ctx context.Context) ([]Criteria, error) {
	query := `
		SELECT ` + criteriaColumns + `
		FROM qualification_criteria
		WHERE is_active
		ORDER BY CASE target_stage
			WHEN 'opportunity' THEN 3
			WHEN 'sql' THEN 2
			WHEN 'mql' THEN 1
			ELSE 0
		END DESC, minimum_score ASC, created_at ASC`

	return r.queryCriteria(ctx, query)
}

func (r *Repository) queryCriteria(ctx context.Context, query string, args ...any) ([]Criteria, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list qualification criteria", err)
	}
	defer rows.Close()

	var out []Criteria
	for rows.Next() {
		criteria, err := scanCriteria(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan qualification criteria", err)
		}
		out = append(out, criteria)
	}
	return out, rows.Err()
}

func scanCriteria(row pgx.Row) (Criteria, error) {
	var criteria Criteria
	err := row.Scan(
		&criteria.ID, &criteria.Name, &criteria.TargetStage, &criteria.MinimumScore,
		&criteria.RequiredFields, &criteria.RequiredActions,
		&criteria.MinAgeDays, &criteria.MaxAgeDays, &criteria.IsActive,
		&criteria.CreatedAt, &criteria.UpdatedAt,
	)
	return criteria, err
}
