// Package repository provides access to the lead record store. Leads are
// owned by the wider CRM; this service reads their attributes and activity
// log, and writes only what workflow actions need (owner, status, tasks).
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/platform/apperr"
)

const leadNotFoundMessage = "lead not found"

// Lead is the lead record as read from the store.
type Lead struct {
	ID         uuid.UUID
	FirstName  string
	LastName   string
	Email      string
	Company    string
	Title      string
	Industry   string
	Phone      string
	Website    string
	Source     string
	Status     string
	OwnerID    *uuid.UUID
	Attributes map[string]any
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Repository implements lead store access with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new leads repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID retrieves a lead by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	query := `
		SELECT id, first_name, last_name, email, company, title, industry, phone,
		       website, source, status, owner_id, attributes, created_at, updated_at
		FROM leads
		WHERE id = $1`

	var lead Lead
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Company,
		&lead.Title, &lead.Industry, &lead.Phone, &lead.Website, &lead.Source,
		&lead.Status, &lead.OwnerID, &lead.Attributes, &lead.CreatedAt, &lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return Lead{}, fmt.Errorf("get lead by id: %w", err)
	}

	return lead, nil
}

// ListActiveIDs returns the IDs of all leads that are not closed, for bulk
// recalculation sweeps.
func (r *Repository) ListActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM leads
		WHERE status NOT IN ('closed_won', 'closed_lost')
		ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active lead ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListEventTypes returns the distinct activity event types recorded for a
// lead (e.g. "email_opened", "form_submitted"). Qualification criteria use
// these as required actions.
func (r *Repository) ListEventTypes(ctx context.Context, leadID uuid.UUID) ([]string, error) {
	query := `
		SELECT DISTINCT event_type FROM lead_events
		WHERE lead_id = $1`

	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, fmt.Errorf("list lead event types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var eventType string
		if err := rows.Scan(&eventType); err != nil {
			return nil, fmt.Errorf("scan lead event type: %w", err)
		}
		types = append(types, eventType)
	}
	return types, rows.Err()
}

// RecordEvent appends an activity event to the lead's log.
func (r *Repository) RecordEvent(ctx context.Context, leadID uuid.UUID, eventType string) error {
	query := `
		INSERT INTO lead_events (id, lead_id, event_type, occurred_at)
		VALUES ($1, $2, $3, now())`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), leadID, eventType); err != nil {
		return fmt.Errorf("record lead event: %w", err)
	}
	return nil
}

// AssignOwner sets the owning agent on a lead.
func (r *Repository) AssignOwner(ctx context.Context, leadID, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET owner_id = $2, updated_at = now() WHERE id = $1`,
		leadID, ownerID)
	if err != nil {
		return fmt.Errorf("assign lead owner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMessage)
	}
	return nil
}

// ChangeStatus moves a lead to a new status.
func (r *Repository) ChangeStatus(ctx context.Context, leadID uuid.UUID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET status = $2, updated_at = now() WHERE id = $1`,
		leadID, status)
	if err != nil {
		return fmt.Errorf("change lead status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMessage)
	}
	return nil
}

// CreateTask creates a follow-up task attached to a lead.
func (r *Repository) CreateTask(ctx context.Context, leadID uuid.UUID, title, description string, dueAt *time.Time) error {
	query := `
		INSERT INTO lead_tasks (id, lead_id, title, description, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), leadID, title, description, dueAt); err != nil {
		return fmt.Errorf("create lead task: %w", err)
	}
	return nil
}
