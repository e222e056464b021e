// Package repository persists enrichment data fetched from the external
// provider with PostgreSQL.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/platform/apperr"
)

// Enrichment is one stored provider result for a lead.
type Enrichment struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	Source       string
	CompanySize  *int
	Revenue      *float64
	Industry     *string
	Title        *string
	Seniority    *string
	Technologies []string
	Confidence   float64
	FetchedAt    time.Time
}

// Repository implements enrichment persistence with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new enrichment repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const enrichmentColumns = `id, lead_id, source, company_size, revenue, industry, title, seniority, technologies, confidence, fetched_at`

// Insert stores a freshly fetched enrichment result.
func (r *Repository) Insert(ctx context.Context, enrichment Enrichment) (Enrichment, error) {
	query := `
		INSERT INTO lead_enrichment (id, lead_id, source, company_size, revenue, industry, title, seniority, technologies, confidence, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	enrichment.ID = uuid.New()
	if enrichment.FetchedAt.IsZero() {
		enrichment.FetchedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		enrichment.ID, enrichment.LeadID, enrichment.Source,
		enrichment.CompanySize, enrichment.Revenue, enrichment.Industry,
		enrichment.Title, enrichment.Seniority, enrichment.Technologies,
		enrichment.Confidence, enrichment.FetchedAt,
	)
	if err != nil {
		return Enrichment{}, apperr.Wrap(apperr.KindInternal, "failed to store enrichment", err)
	}
	return enrichment, nil
}

// GetLatestByLead retrieves a lead's most recent enrichment result.
func (r *Repository) GetLatestByLead(ctx context.Context, leadID uuid.UUID) (Enrichment, error) {
	query := `
		SELECT ` + enrichmentColumns + `
		FROM lead_enrichment
		WHERE lead_id = $1
		ORDER BY fetched_at DESC
		LIMIT 1`

	var enrichment Enrichment
	err := r.pool.QueryRow(ctx, query, leadID).Scan(
		&enrichment.ID, &enrichment.LeadID, &enrichment.Source,
		&enrichment.CompanySize, &enrichment.Revenue, &enrichment.Industry,
		&enrichment.Title, &enrichment.Seniority, &enrichment.Technologies,
		&enrichment.Confidence, &enrichment.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Enrichment{}, apperr.NotFound("no enrichment data for lead")
		}
		return Enrichment{}, apperr.Wrap(apperr.KindInternal, "failed to get enrichment", err)
	}
	return enrichment, nil
}

// Snapshot flattens the enrichment into attribute fields for the rule
// evaluator: prefixed keys plus plain aliases for common firmographics a
// rule is likely to reference.
func (e Enrichment) Snapshot() map[string]any {
	snap := map[string]any{
		"enrichment_source":     e.Source,
		"enrichment_confidence": e.Confidence,
	}
	if e.CompanySize != nil {
		snap["enrichment_company_size"] = *e.CompanySize
		snap["employee_count"] = *e.CompanySize
	}
	if e.Revenue != nil {
		snap["enrichment_revenue"] = *e.Revenue
		snap["revenue"] = *e.Revenue
	}
	if e.Industry != nil {
		snap["enrichment_industry"] = *e.Industry
		snap["industry"] = *e.Industry
	}
	if e.Title != nil {
		snap["enrichment_title"] = *e.Title
	}
	if e.Seniority != nil {
		snap["enrichment_seniority"] = *e.Seniority
		snap["seniority"] = *e.Seniority
	}
	if len(e.Technologies) > 0 {
		technologies := make([]any, len(e.Technologies))
		for i, tech := range e.Technologies {
			technologies[i] = tech
		}
		snap["enrichment_technologies"] = technologies
		snap["technologies"] = technologies
	}
	return snap
}
