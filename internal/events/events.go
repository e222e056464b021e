// Package events defines the domain events exchanged between modules over
// the in-memory bus, and re-exports the platform bus types for convenience.
package events

import (
	platformevents "leadscoring_backend/platform/events"
	"leadscoring_backend/platform/logger"

	"github.com/google/uuid"
)

// Event is the platform event interface.
type Event = platformevents.Event

// Bus is the platform event bus interface.
type Bus = platformevents.Bus

// Handler processes events of a specific type.
type Handler = platformevents.Handler

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc = platformevents.HandlerFunc

// BaseEvent provides the shared timestamp field.
type BaseEvent = platformevents.BaseEvent

// InMemoryBus is the in-process bus implementation.
type InMemoryBus = platformevents.InMemoryBus

// NewBaseEvent creates a base event stamped with the current time.
func NewBaseEvent() BaseEvent {
	return platformevents.NewBaseEvent()
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// LeadUpdated signals that a lead's attributes changed and its score should
// be recalculated. Raised at the point of mutation, never as an implicit
// hook.
type LeadUpdated struct {
	BaseEvent
	LeadID        uuid.UUID
	ChangedFields []string
}

// EventName identifies the event type on the bus.
func (LeadUpdated) EventName() string { return "lead.updated" }

// ScoreCalculated signals that a new LeadScore was appended to a lead's
// history.
type ScoreCalculated struct {
	BaseEvent
	LeadID        uuid.UUID
	Score         int
	Stage         string
	PreviousStage string
}

// EventName identifies the event type on the bus.
func (ScoreCalculated) EventName() string { return "lead.score_calculated" }

// WorkflowExecuted signals that a workflow execution finished and its audit
// record was written.
type WorkflowExecuted struct {
	BaseEvent
	WorkflowID   uuid.UUID
	WorkflowName string
	LeadID       uuid.UUID
	ActionType   string
	Outcome      string
}

// EventName identifies the event type on the bus.
func (WorkflowExecuted) EventName() string { return "workflow.executed" }
