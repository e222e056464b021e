// Package repository persists in-app notifications with PostgreSQL.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/platform/apperr"
)

// Notification is one in-app notification tied to a lead.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	LeadID    uuid.UUID `json:"leadId"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

// Repository implements notification persistence with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new notification repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create stores a new unread notification.
func (r *Repository) Create(ctx context.Context, leadID uuid.UUID, message string) (Notification, error) {
	query := `
		INSERT INTO notifications (id, lead_id, message, is_read, created_at)
		VALUES ($1, $2, $3, false, now())
		RETURNING created_at`

	notification := Notification{
		ID:      uuid.New(),
		LeadID:  leadID,
		Message: message,
	}
	if err := r.pool.QueryRow(ctx, query, notification.ID, leadID, message).Scan(&notification.CreatedAt); err != nil {
		return Notification{}, apperr.Wrap(apperr.KindInternal, "failed to create notification", err)
	}
	return notification, nil
}

// ListByLead retrieves a lead's notifications, newest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Notification, error) {
	query := `
		SELECT id, lead_id, message, is_read, created_at
		FROM notifications
		WHERE lead_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, leadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list notifications", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var notification Notification
		if err := rows.Scan(&notification.ID, &notification.LeadID, &notification.Message, &notification.IsRead, &notification.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "failed to scan notification", err)
		}
		out = append(out, notification)
	}
	return out, rows.Err()
}

// MarkRead flags one notification as read.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET is_read = true WHERE id = $1`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}
