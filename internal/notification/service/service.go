// Package service implements in-app notifications and their event
// subscriptions.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"leadscoring_backend/internal/events"
	"leadscoring_backend/internal/notification/repository"
)

// Store is the persistence surface the notification service depends on.
type Store interface {
	Create(ctx context.Context, leadID uuid.UUID, message string) (repository.Notification, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
}

// Service manages in-app notifications.
type Service struct {
	store Store
}

// New creates a new notification service.
func New(store Store) *Service {
	return &Service{store: store}
}

// Notify stores a new notification for a lead. This is the
// send_notification workflow action collaborator.
func (s *Service) Notify(ctx context.Context, leadID uuid.UUID, message string) error {
	_, err := s.store.Create(ctx, leadID, message)
	return err
}

// ListByLead retrieves a lead's notifications.
func (s *Service) ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Notification, error) {
	return s.store.ListByLead(ctx, leadID)
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) error {
	return s.store.MarkRead(ctx, id)
}

// SubscribeToEvents surfaces failed workflow executions as notifications
// so operators see broken automations without tailing logs.
func (s *Service) SubscribeToEvents(bus events.Bus) {
	bus.Subscribe(events.WorkflowExecuted{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		executed, ok := event.(events.WorkflowExecuted)
		if !ok || executed.Outcome != "failure" {
			return nil
		}
		return s.Notify(ctx, executed.LeadID,
			fmt.Sprintf("Workflow %q failed for this lead (%s action)", executed.WorkflowName, executed.ActionType))
	}))
}
