// Package ports defines the interfaces the scoring pipeline depends on.
// Concrete implementations live in other bounded contexts and are wired in
// through internal/adapters, keeping scoring decoupled from qualification
// and workflow internals.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/engine"
)

// LeadFacts is everything the pipeline needs to know about a lead: the
// flattened attribute snapshot (including enrichment data), the activity
// events that have occurred, and the lead's age.
type LeadFacts struct {
	LeadID    uuid.UUID
	Snapshot  engine.Snapshot
	Actions   []string
	CreatedAt time.Time
}

// LeadReader provides lead facts from the lead record store.
type LeadReader interface {
	GetFacts(ctx context.Context, leadID uuid.UUID) (LeadFacts, error)
	ListActiveLeadIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Classifier maps a computed score plus lead facts to a qualification stage.
type Classifier interface {
	Classify(ctx context.Context, facts LeadFacts, score int) (string, error)
}

// StateChange describes one lead's transition produced by a scoring pass.
// PrevScore is nil on the lead's first ever calculation.
type StateChange struct {
	LeadID        uuid.UUID
	PrevScore     *int
	NewScore      int
	PrevStage     string
	NewStage      string
	ChangedFields []string
	Facts         LeadFacts
}

// MatchedWorkflow is a workflow selected for execution, in execution order.
type MatchedWorkflow struct {
	WorkflowID  uuid.UUID
	TriggeredBy string
}

// TriggerMatcher decides which automation workflows fire for a transition.
type TriggerMatcher interface {
	Match(ctx context.Context, change StateChange) ([]MatchedWorkflow, error)
}

// ExecutionDispatcher hands matched workflows off for asynchronous
// execution. Dispatch must be quick: it runs while the per-lead lock is
// held, so it enqueues work rather than performing actions.
type ExecutionDispatcher interface {
	Dispatch(ctx context.Context, leadID uuid.UUID, matches []MatchedWorkflow) error
}
