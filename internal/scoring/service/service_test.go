package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/engine"
	"leadscoring_backend/internal/scoring/ports"
	"leadscoring_backend/internal/scoring/repository"
	"leadscoring_backend/platform/apperr"
	"leadscoring_backend/platform/logger"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeStore struct {
	mu         sync.Mutex
	rules      map[uuid.UUID]repository.Rule
	scores     map[uuid.UUID][]repository.LeadScore
	referenced map[uuid.UUID]bool
	insertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rules:      make(map[uuid.UUID]repository.Rule),
		scores:     make(map[uuid.UUID][]repository.LeadScore),
		referenced: make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) addRule(rule repository.Rule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[rule.ID] = rule
}

func (f *fakeStore) CreateRule(ctx context.Context, upsert repository.RuleUpsert) (repository.Rule, error) {
	rule := repository.Rule{
		ID:        uuid.New(),
		Name:      upsert.Name,
		RuleType:  upsert.RuleType,
		FieldName: upsert.FieldName,
		Operator:  upsert.Operator,
		Value:     upsert.Value,
		Points:    upsert.Points,
		IsActive:  upsert.IsActive,
		Priority:  upsert.Priority,
		CreatedAt: time.Now(),
	}
	f.addRule(rule)
	return rule, nil
}

func (f *fakeStore) UpdateRule(ctx context.Context, id uuid.UUID, upsert repository.RuleUpsert) (repository.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return repository.Rule{}, apperr.NotFound("scoring rule not found")
	}
	rule.Name = upsert.Name
	rule.RuleType = upsert.RuleType
	rule.FieldName = upsert.FieldName
	rule.Operator = upsert.Operator
	rule.Value = upsert.Value
	rule.Points = upsert.Points
	rule.IsActive = upsert.IsActive
	rule.Priority = upsert.Priority
	f.rules[id] = rule
	return rule, nil
}

func (f *fakeStore) GetRule(ctx context.Context, id uuid.UUID) (repository.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rule, ok := f.rules[id]
	if !ok {
		return repository.Rule{}, apperr.NotFound("scoring rule not found")
	}
	return rule, nil
}

func (f *fakeStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rules[id]; !ok {
		return apperr.NotFound("scoring rule not found")
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeStore) ListRules(ctx context.Context, params repository.ListRulesParams) ([]repository.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Rule
	for _, rule := range f.rules {
		out = append(out, rule)
	}
	return out, nil
}

func (f *fakeStore) ListActiveRules(ctx context.Context) ([]repository.Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Rule
	for _, rule := range f.rules {
		if rule.IsActive {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (f *fakeStore) RuleReferenced(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.referenced[id], nil
}

func (f *fakeStore) InsertScore(ctx context.Context, score repository.LeadScore) (repository.LeadScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return repository.LeadScore{}, f.insertErr
	}
	score.ID = uuid.New()
	f.scores[score.LeadID] = append(f.scores[score.LeadID], score)
	return score, nil
}

func (f *fakeStore) LatestScore(ctx context.Context, leadID uuid.UUID) (repository.LeadScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.scores[leadID]
	if len(history) == 0 {
		return repository.LeadScore{}, apperr.NotFound("no score recorded for lead")
	}
	return history[len(history)-1], nil
}

func (f *fakeStore) History(ctx context.Context, leadID uuid.UUID) ([]repository.LeadScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scores[leadID], nil
}

func (f *fakeStore) Distribution(ctx context.Context) ([]repository.DistributionBucket, []repository.StageCount, error) {
	return nil, nil, nil
}

type fakeLeadReader struct {
	mu        sync.Mutex
	facts     map[uuid.UUID]ports.LeadFacts
	activeIDs []uuid.UUID
}

func newFakeLeadReader() *fakeLeadReader {
	return &fakeLeadReader{facts: make(map[uuid.UUID]ports.LeadFacts)}
}

func (f *fakeLeadReader) GetFacts(ctx context.Context, leadID uuid.UUID) (ports.LeadFacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	facts, ok := f.facts[leadID]
	if !ok {
		return ports.LeadFacts{}, apperr.NotFound("lead not found")
	}
	return facts, nil
}

func (f *fakeLeadReader) ListActiveLeadIDs(ctx context.Context) ([]uuid.UUID, error) {
	return f.activeIDs, nil
}

type fakeClassifier struct {
	stage string
	err   error
}

func (f *fakeClassifier) Classify(ctx context.Context, facts ports.LeadFacts, score int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.stage, nil
}

type fakeMatcher struct {
	mu      sync.Mutex
	changes []ports.StateChange
	matches []ports.MatchedWorkflow
	err     error
}

func (f *fakeMatcher) Match(ctx context.Context, change ports.StateChange) ([]ports.MatchedWorkflow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
	return f.matches, f.err
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched [][]ports.MatchedWorkflow
	err        error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, leadID uuid.UUID, matches []ports.MatchedWorkflow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, matches)
	return f.err
}

func newTestService(store *fakeStore, leads *fakeLeadReader) *Service {
	return New(store, leads, nil, logger.New("development"), 4)
}

// ---------------------------------------------------------------------------
// Rule management
// ---------------------------------------------------------------------------

func TestCreateRuleValidation(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeLeadReader())

	cases := []struct {
		name   string
		upsert repository.RuleUpsert
	}{
		{"missing name", repository.RuleUpsert{RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: engine.OpEquals, Value: "CTO", Points: 10}},
		{"unknown rule type", repository.RuleUpsert{Name: "r", RuleType: "psychographic", FieldName: "title", Operator: engine.OpEquals, Value: "CTO", Points: 10}},
		{"unknown operator", repository.RuleUpsert{Name: "r", RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: "matches", Value: "CTO", Points: 10}},
		{"points too high", repository.RuleUpsert{Name: "r", RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: engine.OpEquals, Value: "CTO", Points: 101}},
		{"points too low", repository.RuleUpsert{Name: "r", RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: engine.OpEquals, Value: "CTO", Points: -101}},
		{"in_list with scalar", repository.RuleUpsert{Name: "r", RuleType: engine.RuleTypeFirmographic, FieldName: "industry", Operator: engine.OpInList, Value: "Technology", Points: 15}},
		{"missing comparison value", repository.RuleUpsert{Name: "r", RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: engine.OpEquals, Points: 10}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRule(context.Background(), tc.upsert)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateRuleFrozenWhenReferenced(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeLeadReader())

	rule, err := svc.CreateRule(context.Background(), repository.RuleUpsert{
		Name: "CTO title", RuleType: engine.RuleTypeDemographic,
		FieldName: "title", Operator: engine.OpEquals, Value: "CTO",
		Points: 20, IsActive: true, Priority: 5,
	})
	if err != nil {
		t.Fatalf("create rule: %v", err)
	}
	store.referenced[rule.ID] = true

	// Changing points on a referenced rule is rejected.
	_, err = svc.UpdateRule(context.Background(), rule.ID, repository.RuleUpsert{
		Name: "CTO title", RuleType: engine.RuleTypeDemographic,
		FieldName: "title", Operator: engine.OpEquals, Value: "CTO",
		Points: 30, IsActive: true, Priority: 5,
	})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	// Deactivating and reprioritizing is still allowed.
	updated, err := svc.UpdateRule(context.Background(), rule.ID, repository.RuleUpsert{
		Name: "CTO title", RuleType: engine.RuleTypeDemographic,
		FieldName: "title", Operator: engine.OpEquals, Value: "CTO",
		Points: 20, IsActive: false, Priority: 1,
	})
	if err != nil {
		t.Fatalf("update referenced rule metadata: %v", err)
	}
	if updated.IsActive || updated.Priority != 1 {
		t.Fatalf("expected is_active=false priority=1, got %+v", updated)
	}
}

func TestDeleteRuleReferencedConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeLeadReader())

	rule, _ := svc.CreateRule(context.Background(), repository.RuleUpsert{
		Name: "r", RuleType: engine.RuleTypeBehavioral,
		FieldName: "demo_requested", Operator: engine.OpEquals, Value: true,
		Points: 25, IsActive: true,
	})
	store.referenced[rule.ID] = true

	if err := svc.DeleteRule(context.Background(), rule.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	store.referenced[rule.ID] = false
	if err := svc.DeleteRule(context.Background(), rule.ID); err != nil {
		t.Fatalf("delete unreferenced rule: %v", err)
	}
}

func TestTestRuleDryRun(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)

	rule, _ := svc.CreateRule(context.Background(), repository.RuleUpsert{
		Name: "tech industry", RuleType: engine.RuleTypeFirmographic,
		FieldName: "industry", Operator: engine.OpInList,
		Value: []any{"Technology", "SaaS"}, Points: 15, IsActive: true,
	})

	result, err := svc.TestRule(context.Background(), rule.ID, nil, engine.Snapshot{"industry": "SaaS"})
	if err != nil {
		t.Fatalf("test rule: %v", err)
	}
	if !result.Matched || result.Points != 15 {
		t.Fatalf("expected match worth 15, got %+v", result)
	}

	// Dry runs never touch score history.
	if len(store.scores) != 0 {
		t.Fatalf("dry run persisted %d scores", len(store.scores))
	}

	// Without a snapshot the lead's stored facts are used.
	leadID := uuid.New()
	leads.facts[leadID] = ports.LeadFacts{LeadID: leadID, Snapshot: engine.Snapshot{"industry": "Retail"}}
	result, err = svc.TestRule(context.Background(), rule.ID, &leadID, nil)
	if err != nil {
		t.Fatalf("test rule against lead: %v", err)
	}
	if result.Matched || result.Points != 0 {
		t.Fatalf("expected no match, got %+v", result)
	}

	if _, err := svc.TestRule(context.Background(), rule.ID, nil, nil); !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request without lead or snapshot, got %v", err)
	}
}

func TestTestRuleZeroPointRuleStillMatches(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeLeadReader())

	rule, _ := svc.CreateRule(context.Background(), repository.RuleUpsert{
		Name: "has phone", RuleType: engine.RuleTypeDemographic,
		FieldName: "phone", Operator: engine.OpIsNotEmpty,
		Points: 0, IsActive: true,
	})

	result, err := svc.TestRule(context.Background(), rule.ID, nil, engine.Snapshot{"phone": "+14155552671"})
	if err != nil {
		t.Fatalf("test rule: %v", err)
	}
	if !result.Matched {
		t.Fatal("a matching zero-point rule must report matched")
	}
	if result.Points != 0 {
		t.Fatalf("expected 0 points, got %d", result.Points)
	}
}

// ---------------------------------------------------------------------------
// Calculation pipeline
// ---------------------------------------------------------------------------

func seedRules(t *testing.T, svc *Service) {
	t.Helper()
	rules := []repository.RuleUpsert{
		{Name: "CTO title", RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: engine.OpContains, Value: "CTO", Points: 20, IsActive: true, Priority: 10},
		{Name: "demo requested", RuleType: engine.RuleTypeBehavioral, FieldName: "demo_requested", Operator: engine.OpEquals, Value: true, Points: 30, IsActive: true, Priority: 5},
		{Name: "big company", RuleType: engine.RuleTypeFirmographic, FieldName: "employee_count", Operator: engine.OpGreaterThan, Value: 100, Points: 10, IsActive: true, Priority: 1},
		{Name: "inactive rule", RuleType: engine.RuleTypeDemographic, FieldName: "title", Operator: engine.OpContains, Value: "CTO", Points: 99, IsActive: false},
	}
	for _, upsert := range rules {
		if _, err := svc.CreateRule(context.Background(), upsert); err != nil {
			t.Fatalf("seed rule %q: %v", upsert.Name, err)
		}
	}
}

func TestCalculatePersistsScoreAndStage(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	svc.SetClassifier(&fakeClassifier{stage: "mql"})
	seedRules(t, svc)

	leadID := uuid.New()
	leads.facts[leadID] = ports.LeadFacts{
		LeadID: leadID,
		Snapshot: engine.Snapshot{
			"title": "CTO", "demo_requested": true, "employee_count": 250,
		},
	}

	result, err := svc.Calculate(context.Background(), leadID, nil)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if result.Score.Score != 60 {
		t.Fatalf("expected total 60, got %d", result.Score.Score)
	}
	if result.Score.Stage != "mql" {
		t.Fatalf("expected stage mql, got %q", result.Score.Stage)
	}
	if result.PreviousScore != nil {
		t.Fatalf("first calculation should have no previous score")
	}
	if result.Score.Breakdown[engine.RuleTypeDemographic] != 20 ||
		result.Score.Breakdown[engine.RuleTypeBehavioral] != 30 ||
		result.Score.Breakdown[engine.RuleTypeFirmographic] != 10 {
		t.Fatalf("unexpected breakdown %+v", result.Score.Breakdown)
	}
	if len(store.scores[leadID]) != 1 {
		t.Fatalf("expected 1 persisted score, got %d", len(store.scores[leadID]))
	}
}

func TestCalculateHistoryIsAppendOnly(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	seedRules(t, svc)

	leadID := uuid.New()
	leads.facts[leadID] = ports.LeadFacts{LeadID: leadID, Snapshot: engine.Snapshot{"title": "CTO"}}

	first, err := svc.Calculate(context.Background(), leadID, nil)
	if err != nil {
		t.Fatalf("first calculate: %v", err)
	}

	leads.mu.Lock()
	leads.facts[leadID] = ports.LeadFacts{
		LeadID:   leadID,
		Snapshot: engine.Snapshot{"title": "CTO", "demo_requested": true},
	}
	leads.mu.Unlock()

	second, err := svc.Calculate(context.Background(), leadID, []string{"demo_requested"})
	if err != nil {
		t.Fatalf("second calculate: %v", err)
	}
	if second.PreviousScore == nil || *second.PreviousScore != first.Score.Score {
		t.Fatalf("expected previous score %d, got %v", first.Score.Score, second.PreviousScore)
	}

	history, _ := svc.History(context.Background(), leadID)
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
}

func TestCalculatePassesStateChangeToMatcher(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	matcher := &fakeMatcher{matches: []ports.MatchedWorkflow{{WorkflowID: uuid.New(), TriggeredBy: "score_threshold"}}}
	dispatcher := &fakeDispatcher{}
	svc.SetTriggerMatcher(matcher)
	svc.SetExecutionDispatcher(dispatcher)
	seedRules(t, svc)

	leadID := uuid.New()
	leads.facts[leadID] = ports.LeadFacts{LeadID: leadID, Snapshot: engine.Snapshot{"demo_requested": true}}

	if _, err := svc.Calculate(context.Background(), leadID, []string{"demo_requested"}); err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if len(matcher.changes) != 1 {
		t.Fatalf("expected 1 matcher call, got %d", len(matcher.changes))
	}
	change := matcher.changes[0]
	if change.PrevScore != nil || change.NewScore != 30 || change.NewStage != StageUnqualified {
		t.Fatalf("unexpected state change %+v", change)
	}
	if len(change.ChangedFields) != 1 || change.ChangedFields[0] != "demo_requested" {
		t.Fatalf("changed fields not forwarded: %+v", change.ChangedFields)
	}
	if len(dispatcher.dispatched) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(dispatcher.dispatched))
	}
}

func TestCalculateDispatchFailureDoesNotRollBack(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	svc.SetTriggerMatcher(&fakeMatcher{matches: []ports.MatchedWorkflow{{WorkflowID: uuid.New()}}})
	svc.SetExecutionDispatcher(&fakeDispatcher{err: errors.New("queue down")})
	seedRules(t, svc)

	leadID := uuid.New()
	leads.facts[leadID] = ports.LeadFacts{LeadID: leadID, Snapshot: engine.Snapshot{"title": "CTO"}}

	if _, err := svc.Calculate(context.Background(), leadID, nil); err != nil {
		t.Fatalf("dispatch failure should not fail calculation: %v", err)
	}
	if len(store.scores[leadID]) != 1 {
		t.Fatalf("score was not persisted")
	}
}

func TestCalculateSerializesPerLead(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	seedRules(t, svc)

	leadID := uuid.New()
	leads.facts[leadID] = ports.LeadFacts{LeadID: leadID, Snapshot: engine.Snapshot{"title": "CTO"}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Calculate(context.Background(), leadID, nil); err != nil {
				t.Errorf("calculate: %v", err)
			}
		}()
	}
	wg.Wait()

	history, _ := svc.History(context.Background(), leadID)
	if len(history) != 8 {
		t.Fatalf("expected 8 history entries, got %d", len(history))
	}
}

// ---------------------------------------------------------------------------
// Bulk calculation
// ---------------------------------------------------------------------------

func TestBulkCalculatePartialFailure(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	seedRules(t, svc)

	known := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range known {
		leads.facts[id] = ports.LeadFacts{LeadID: id, Snapshot: engine.Snapshot{"title": "CTO"}}
	}
	missing := uuid.New()

	bulk, err := svc.BulkCalculate(context.Background(), append(known, missing))
	if err != nil {
		t.Fatalf("bulk calculate: %v", err)
	}
	if len(bulk.Results) != 3 {
		t.Fatalf("expected 3 successes, got %d", len(bulk.Results))
	}
	if len(bulk.Errors) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(bulk.Errors))
	}
	if bulk.Errors[0].LeadID != missing {
		t.Fatalf("wrong lead reported failed: %s", bulk.Errors[0].LeadID)
	}
	if !strings.Contains(bulk.Errors[0].Error, "not found") {
		t.Fatalf("unexpected error message %q", bulk.Errors[0].Error)
	}
}

func TestBulkCalculateAllFailed(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	seedRules(t, svc)

	_, err := svc.BulkCalculate(context.Background(), []uuid.UUID{uuid.New(), uuid.New()})
	if !apperr.Is(err, apperr.KindInternal) {
		t.Fatalf("expected internal error when every lead fails, got %v", err)
	}
}

func TestRecalculateAll(t *testing.T) {
	store := newFakeStore()
	leads := newFakeLeadReader()
	svc := newTestService(store, leads)
	seedRules(t, svc)

	for i := 0; i < 5; i++ {
		id := uuid.New()
		leads.facts[id] = ports.LeadFacts{LeadID: id, Snapshot: engine.Snapshot{"employee_count": 500}}
		leads.activeIDs = append(leads.activeIDs, id)
	}

	bulk, err := svc.RecalculateAll(context.Background())
	if err != nil {
		t.Fatalf("recalculate all: %v", err)
	}
	if len(bulk.Results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(bulk.Results))
	}
	for _, result := range bulk.Results {
		if result.Score.Score != 10 {
			t.Fatalf("expected score 10, got %d", result.Score.Score)
		}
	}
}
