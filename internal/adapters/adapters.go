// Package adapters wires the bounded contexts together. Each adapter
// implements one context's dependency interface on top of another
// context's repositories or services, keeping the contexts themselves
// free of cross-imports.
package adapters

import (
	"context"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/email"
	enrichmentrepo "leadscoring_backend/internal/enrichment/repository"
	"leadscoring_backend/internal/events"
	enrichmentsvc "leadscoring_backend/internal/enrichment/service"
	leadsrepo "leadscoring_backend/internal/leads/repository"
	notificationsvc "leadscoring_backend/internal/notification/service"
	"leadscoring_backend/internal/qualification/classifier"
	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/scoring/ports"
	scoringrepo "leadscoring_backend/internal/scoring/repository"
	workflowsvc "leadscoring_backend/internal/workflows/service"
	"leadscoring_backend/internal/workflows/trigger"
	"leadscoring_backend/platform/apperr"
)

// =============================================================================
// Lead facts
// =============================================================================

// EnrichmentReader provides a lead's latest stored enrichment.
type EnrichmentReader interface {
	GetLatestByLead(ctx context.Context, leadID uuid.UUID) (enrichmentrepo.Enrichment, error)
}

// LeadFactsReader assembles the flattened attribute snapshot the rule
// evaluator and classifier consume: lead record fields, free-form
// attributes, and the latest enrichment data. It implements the scoring
// pipeline's LeadReader port.
type LeadFactsReader struct {
	leads      *leadsrepo.Repository
	enrichment EnrichmentReader
}

// NewLeadFactsReader creates a new lead facts reader.
func NewLeadFactsReader(leads *leadsrepo.Repository, enrichment EnrichmentReader) *LeadFactsReader {
	return &LeadFactsReader{leads: leads, enrichment: enrichment}
}

// GetFacts loads a lead and flattens it into evaluation facts.
func (r *LeadFactsReader) GetFacts(ctx context.Context, leadID uuid.UUID) (ports.LeadFacts, error) {
	lead, err := r.leads.GetByID(ctx, leadID)
	if err != nil {
		return ports.LeadFacts{}, err
	}

	snapshot := engine.Snapshot{
		"first_name": lead.FirstName,
		"last_name":  lead.LastName,
		"email":      lead.Email,
		"company":    lead.Company,
		"title":      lead.Title,
		"industry":   lead.Industry,
		"phone":      lead.Phone,
		"website":    lead.Website,
		"source":     lead.Source,
		"status":     lead.Status,
	}
	for field, value := range lead.Attributes {
		snapshot[field] = value
	}

	if r.enrichment != nil {
		enrichment, err := r.enrichment.GetLatestByLead(ctx, leadID)
		if err == nil {
			for field, value := range enrichment.Snapshot() {
				// Explicit lead data wins over enrichment aliases; the
				// enrichment_ prefixed fields are always present.
				if existing, ok := snapshot[field]; ok && !isZeroValue(existing) {
					continue
				}
				snapshot[field] = value
			}
		} else if !apperr.Is(err, apperr.KindNotFound) {
			return ports.LeadFacts{}, err
		}
	}

	actions, err := r.leads.ListEventTypes(ctx, leadID)
	if err != nil {
		return ports.LeadFacts{}, err
	}

	return ports.LeadFacts{
		LeadID:    leadID,
		Snapshot:  snapshot,
		Actions:   actions,
		CreatedAt: lead.CreatedAt,
	}, nil
}

// ListActiveLeadIDs lists leads eligible for bulk recalculation.
func (r *LeadFactsReader) ListActiveLeadIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.leads.ListActiveIDs(ctx)
}

// GetSnapshot implements the workflow executor's SnapshotReader.
func (r *LeadFactsReader) GetSnapshot(ctx context.Context, leadID uuid.UUID) (engine.Snapshot, error) {
	facts, err := r.GetFacts(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return facts.Snapshot, nil
}

var _ ports.LeadReader = (*LeadFactsReader)(nil)
var _ workflowsvc.SnapshotReader = (*LeadFactsReader)(nil)

func isZeroValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	}
	return false
}

// =============================================================================
// Classifier
// =============================================================================

// StageClassifier exposes qualification classification to the scoring
// pipeline.
type StageClassifier interface {
	Classify(ctx context.Context, facts classifier.Facts, score int) (string, error)
}

// Classifier adapts the qualification service to the scoring pipeline's
// Classifier port.
type Classifier struct {
	qualification StageClassifier
}

// NewClassifier creates a new classifier adapter.
func NewClassifier(qualification StageClassifier) *Classifier {
	return &Classifier{qualification: qualification}
}

// Classify implements ports.Classifier.
func (c *Classifier) Classify(ctx context.Context, facts ports.LeadFacts, score int) (string, error) {
	return c.qualification.Classify(ctx, classifier.Facts{
		Snapshot:  facts.Snapshot,
		Actions:   facts.Actions,
		CreatedAt: facts.CreatedAt,
	}, score)
}

var _ ports.Classifier = (*Classifier)(nil)

// =============================================================================
// Qualification's view of a lead
// =============================================================================

// ScoreReader provides a lead's latest score.
type ScoreReader interface {
	LatestScore(ctx context.Context, leadID uuid.UUID) (scoringrepo.LeadScore, error)
}

// QualificationLeadReader provides lead facts plus the current score for
// dry-run criteria checks.
type QualificationLeadReader struct {
	facts  *LeadFactsReader
	scores ScoreReader
}

// NewQualificationLeadReader creates a new qualification lead reader.
func NewQualificationLeadReader(facts *LeadFactsReader, scores ScoreReader) *QualificationLeadReader {
	return &QualificationLeadReader{facts: facts, scores: scores}
}

// GetFacts loads a lead's facts and its current score. A lead that was
// never scored checks against score 0.
func (r *QualificationLeadReader) GetFacts(ctx context.Context, leadID uuid.UUID) (classifier.Facts, int, error) {
	facts, err := r.facts.GetFacts(ctx, leadID)
	if err != nil {
		return classifier.Facts{}, 0, err
	}

	score := 0
	if latest, err := r.scores.LatestScore(ctx, leadID); err == nil {
		score = latest.Score
	} else if !apperr.Is(err, apperr.KindNotFound) {
		return classifier.Facts{}, 0, err
	}

	return classifier.Facts{
		Snapshot:  facts.Snapshot,
		Actions:   facts.Actions,
		CreatedAt: facts.CreatedAt,
	}, score, nil
}

// =============================================================================
// Trigger matching and dispatch
// =============================================================================

// WorkflowMatcher exposes workflow trigger matching.
type WorkflowMatcher interface {
	MatchTriggers(ctx context.Context, change trigger.Change) ([]trigger.Matched, error)
}

// TriggerMatcher adapts the workflows service to the scoring pipeline's
// TriggerMatcher port.
type TriggerMatcher struct {
	workflows WorkflowMatcher
}

// NewTriggerMatcher creates a new trigger matcher adapter.
func NewTriggerMatcher(workflows WorkflowMatcher) *TriggerMatcher {
	return &TriggerMatcher{workflows: workflows}
}

// Match implements ports.TriggerMatcher.
func (m *TriggerMatcher) Match(ctx context.Context, change ports.StateChange) ([]ports.MatchedWorkflow, error) {
	matched, err := m.workflows.MatchTriggers(ctx, trigger.Change{
		LeadID:        change.LeadID,
		PrevScore:     change.PrevScore,
		NewScore:      change.NewScore,
		PrevStage:     change.PrevStage,
		NewStage:      change.NewStage,
		ChangedFields: change.ChangedFields,
		Snapshot:      change.Facts.Snapshot,
	})
	if err != nil {
		return nil, err
	}

	out := make([]ports.MatchedWorkflow, len(matched))
	for i, match := range matched {
		out[i] = ports.MatchedWorkflow{
			WorkflowID:  match.Workflow.ID,
			TriggeredBy: match.TriggeredBy,
		}
	}
	return out, nil
}

var _ ports.TriggerMatcher = (*TriggerMatcher)(nil)

// WorkflowEnqueuer enqueues workflow executions for asynchronous
// processing.
type WorkflowEnqueuer interface {
	EnqueueWorkflowExecution(ctx context.Context, workflowID, leadID uuid.UUID, triggeredBy string) error
}

// ExecutionDispatcher adapts the task queue client to the scoring
// pipeline's ExecutionDispatcher port. Matched workflows are enqueued,
// not executed inline: the per-lead lock must not be held across
// external action calls.
type ExecutionDispatcher struct {
	queue WorkflowEnqueuer
}

// NewExecutionDispatcher creates a new execution dispatcher adapter.
func NewExecutionDispatcher(queue WorkflowEnqueuer) *ExecutionDispatcher {
	return &ExecutionDispatcher{queue: queue}
}

// Dispatch implements ports.ExecutionDispatcher.
func (d *ExecutionDispatcher) Dispatch(ctx context.Context, leadID uuid.UUID, matches []ports.MatchedWorkflow) error {
	for _, match := range matches {
		if err := d.queue.EnqueueWorkflowExecution(ctx, match.WorkflowID, leadID, match.TriggeredBy); err != nil {
			return err
		}
	}
	return nil
}

var _ ports.ExecutionDispatcher = (*ExecutionDispatcher)(nil)

// =============================================================================
// Stage dwell for the time_based sweep
// =============================================================================

// StageHistoryReader reports a lead's current stage and when the lead
// entered it.
type StageHistoryReader interface {
	StageEnteredAt(ctx context.Context, leadID uuid.UUID) (string, time.Time, error)
}

// StageReader adapts the scoring history to the workflow sweep's
// StageReader.
type StageReader struct {
	leads  *leadsrepo.Repository
	stages StageHistoryReader
}

// NewStageReader creates a new stage reader adapter.
func NewStageReader(leads *leadsrepo.Repository, stages StageHistoryReader) *StageReader {
	return &StageReader{leads: leads, stages: stages}
}

// ListActiveLeadIDs implements workflowsvc.StageReader.
func (r *StageReader) ListActiveLeadIDs(ctx context.Context) ([]uuid.UUID, error) {
	return r.leads.ListActiveIDs(ctx)
}

// CurrentStage implements workflowsvc.StageReader.
func (r *StageReader) CurrentStage(ctx context.Context, leadID uuid.UUID) (string, time.Time, error) {
	return r.stages.StageEnteredAt(ctx, leadID)
}

var _ workflowsvc.StageReader = (*StageReader)(nil)

// =============================================================================
// Workflow actions
// =============================================================================

// Notifier stores in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, leadID uuid.UUID, message string) error
}

// LeadWriter covers the lead reads and writes workflow actions need.
type LeadWriter interface {
	GetByID(ctx context.Context, id uuid.UUID) (leadsrepo.Lead, error)
	AssignOwner(ctx context.Context, leadID, ownerID uuid.UUID) error
	ChangeStatus(ctx context.Context, leadID uuid.UUID, status string) error
	CreateTask(ctx context.Context, leadID uuid.UUID, title, description string, dueAt *time.Time) error
}

// ActionPerformer carries out workflow actions against the collaborator
// services: the lead store for owner/status/tasks, SMTP for email, and
// the notification store. Lead mutations raise lead.updated so the
// changed lead is queued for rescoring.
type ActionPerformer struct {
	leads    LeadWriter
	sender   email.Sender
	notifier Notifier
	bus      events.Bus
}

// NewActionPerformer creates a new action performer.
func NewActionPerformer(leads LeadWriter, sender email.Sender, notifier Notifier, bus events.Bus) *ActionPerformer {
	return &ActionPerformer{leads: leads, sender: sender, notifier: notifier, bus: bus}
}

// AssignOwner implements workflowsvc.ActionPerformer.
func (p *ActionPerformer) AssignOwner(ctx context.Context, leadID, ownerID uuid.UUID) error {
	if err := p.leads.AssignOwner(ctx, leadID, ownerID); err != nil {
		return err
	}
	p.publishUpdated(ctx, leadID, "owner_id")
	return nil
}

// ChangeStatus implements workflowsvc.ActionPerformer.
func (p *ActionPerformer) ChangeStatus(ctx context.Context, leadID uuid.UUID, status string) error {
	if err := p.leads.ChangeStatus(ctx, leadID, status); err != nil {
		return err
	}
	p.publishUpdated(ctx, leadID, "status")
	return nil
}

func (p *ActionPerformer) publishUpdated(ctx context.Context, leadID uuid.UUID, changedFields ...string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(ctx, events.LeadUpdated{
		BaseEvent:     events.NewBaseEvent(),
		LeadID:        leadID,
		ChangedFields: changedFields,
	})
}

// SendEmail implements workflowsvc.ActionPerformer.
func (p *ActionPerformer) SendEmail(ctx context.Context, leadID uuid.UUID, subject, body string) error {
	lead, err := p.leads.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.Email == "" {
		return apperr.Validation("lead has no email address")
	}
	return p.sender.Send(ctx, lead.Email, subject, body)
}

// CreateTask implements workflowsvc.ActionPerformer.
func (p *ActionPerformer) CreateTask(ctx context.Context, leadID uuid.UUID, title, description string, dueInDays int) error {
	var dueAt *time.Time
	if dueInDays > 0 {
		due := time.Now().UTC().AddDate(0, 0, dueInDays)
		dueAt = &due
	}
	return p.leads.CreateTask(ctx, leadID, title, description, dueAt)
}

// SendNotification implements workflowsvc.ActionPerformer.
func (p *ActionPerformer) SendNotification(ctx context.Context, leadID uuid.UUID, message string) error {
	return p.notifier.Notify(ctx, leadID, message)
}

var _ workflowsvc.ActionPerformer = (*ActionPerformer)(nil)
var _ Notifier = (*notificationsvc.Service)(nil)
var _ LeadWriter = (*leadsrepo.Repository)(nil)

// =============================================================================
// Enrichment's view of a lead
// =============================================================================

// ContactReader provides lead contact details for provider lookups.
type ContactReader struct {
	leads *leadsrepo.Repository
}

// NewContactReader creates a new contact reader.
func NewContactReader(leads *leadsrepo.Repository) *ContactReader {
	return &ContactReader{leads: leads}
}

// GetContact implements the enrichment service's LeadReader.
func (r *ContactReader) GetContact(ctx context.Context, leadID uuid.UUID) (enrichmentsvc.Contact, error) {
	lead, err := r.leads.GetByID(ctx, leadID)
	if err != nil {
		return enrichmentsvc.Contact{}, err
	}
	return enrichmentsvc.Contact{
		Email:   lead.Email,
		Phone:   lead.Phone,
		Company: lead.Company,
	}, nil
}

var _ enrichmentsvc.LeadReader = (*ContactReader)(nil)
