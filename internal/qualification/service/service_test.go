package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadscoring_backend/internal/qualification/classifier"
	"leadscoring_backend/internal/qualification/repository"
	"leadscoring_backend/platform/apperr"
)

type fakeStore struct {
	criteria map[uuid.UUID]repository.Criteria
	writes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{criteria: make(map[uuid.UUID]repository.Criteria)}
}

func (f *fakeStore) Create(ctx context.Context, upsert repository.CriteriaUpsert) (repository.Criteria, error) {
	f.writes++
	criteria := repository.Criteria{
		ID:              uuid.New(),
		Name:            upsert.Name,
		TargetStage:     upsert.TargetStage,
		MinimumScore:    upsert.MinimumScore,
		RequiredFields:  upsert.RequiredFields,
		RequiredActions: upsert.RequiredActions,
		MinAgeDays:      upsert.MinAgeDays,
		MaxAgeDays:      upsert.MaxAgeDays,
		IsActive:        upsert.IsActive,
		CreatedAt:       time.Now(),
	}
	f.criteria[criteria.ID] = criteria
	return criteria, nil
}

func (f *fakeStore) Update(ctx context.Context, id uuid.UUID, upsert repository.CriteriaUpsert) (repository.Criteria, error) {
	f.writes++
	criteria, ok := f.criteria[id]
	if !ok {
		return repository.Criteria{}, apperr.NotFound("qualification criteria not found")
	}
	criteria.Name = upsert.Name
	criteria.TargetStage = upsert.TargetStage
	criteria.MinimumScore = upsert.MinimumScore
	criteria.IsActive = upsert.IsActive
	f.criteria[id] = criteria
	return criteria, nil
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (repository.Criteria, error) {
	criteria, ok := f.criteria[id]
	if !ok {
		return repository.Criteria{}, apperr.NotFound("qualification criteria not found")
	}
	return criteria, nil
}

func (f *fakeStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.writes++
	delete(f.criteria, id)
	return nil
}

func (f *fakeStore) List(ctx context.Context) ([]repository.Criteria, error) {
	var out []repository.Criteria
	for _, criteria := range f.criteria {
		out = append(out, criteria)
	}
	return out, nil
}

func (f *fakeStore) ListActive(ctx context.Context) ([]repository.Criteria, error) {
	var out []repository.Criteria
	for _, criteria := range f.criteria {
		if criteria.IsActive {
			out = append(out, criteria)
		}
	}
	return out, nil
}

type fakeLeadReader struct {
	facts map[uuid.UUID]classifier.Facts
	score int
}

func (f *fakeLeadReader) GetFacts(ctx context.Context, leadID uuid.UUID) (classifier.Facts, int, error) {
	facts, ok := f.facts[leadID]
	if !ok {
		return classifier.Facts{}, 0, apperr.NotFound("lead not found")
	}
	return facts, f.score, nil
}

func intPtr(v int) *int { return &v }

func TestCreateCriteriaValidation(t *testing.T) {
	svc := New(newFakeStore(), &fakeLeadReader{})

	cases := []struct {
		name   string
		upsert repository.CriteriaUpsert
	}{
		{"missing name", repository.CriteriaUpsert{TargetStage: classifier.StageMQL}},
		{"unknown stage", repository.CriteriaUpsert{Name: "c", TargetStage: "vip"}},
		{"unqualified as target", repository.CriteriaUpsert{Name: "c", TargetStage: classifier.StageUnqualified}},
		{"negative score", repository.CriteriaUpsert{Name: "c", TargetStage: classifier.StageMQL, MinimumScore: -1}},
		{"inverted age window", repository.CriteriaUpsert{Name: "c", TargetStage: classifier.StageMQL, MinAgeDays: intPtr(30), MaxAgeDays: intPtr(7)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.upsert)
			if !apperr.Is(err, apperr.KindValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCheckLeadIsDryRun(t *testing.T) {
	store := newFakeStore()
	leadID := uuid.New()
	leads := &fakeLeadReader{
		facts: map[uuid.UUID]classifier.Facts{
			leadID: {
				Snapshot:  map[string]any{"email": "lead@acme.com"},
				CreatedAt: time.Now(),
			},
		},
		score: 60,
	}
	svc := New(store, leads)

	criteria, err := svc.Create(context.Background(), repository.CriteriaUpsert{
		Name: "mql gate", TargetStage: classifier.StageMQL,
		MinimumScore:   50,
		RequiredFields: []string{"email", "company"},
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("create criteria: %v", err)
	}
	writesBefore := store.writes

	result, err := svc.CheckLead(context.Background(), criteria.ID, leadID)
	if err != nil {
		t.Fatalf("check lead: %v", err)
	}
	if result.Matched {
		t.Fatalf("company is missing, expected no match: %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Detail != "company" {
		t.Fatalf("expected company failure, got %+v", result.Failures)
	}
	if store.writes != writesBefore {
		t.Fatal("check_lead must not write")
	}

	// Repeat calls stay side-effect free.
	for i := 0; i < 3; i++ {
		if _, err := svc.CheckLead(context.Background(), criteria.ID, leadID); err != nil {
			t.Fatalf("repeat check: %v", err)
		}
	}
	if store.writes != writesBefore {
		t.Fatal("repeated check_lead wrote state")
	}
}

func TestClassifyUsesActiveCriteriaOnly(t *testing.T) {
	store := newFakeStore()
	svc := New(store, &fakeLeadReader{})

	if _, err := svc.Create(context.Background(), repository.CriteriaUpsert{
		Name: "mql", TargetStage: classifier.StageMQL, MinimumScore: 50, IsActive: true,
	}); err != nil {
		t.Fatalf("create mql: %v", err)
	}
	if _, err := svc.Create(context.Background(), repository.CriteriaUpsert{
		Name: "sql disabled", TargetStage: classifier.StageSQL, MinimumScore: 50, IsActive: false,
	}); err != nil {
		t.Fatalf("create sql: %v", err)
	}

	facts := classifier.Facts{Snapshot: map[string]any{}, CreatedAt: time.Now()}
	stage, err := svc.Classify(context.Background(), facts, 80)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if stage != string(classifier.StageMQL) {
		t.Fatalf("inactive sql criteria must not win: got %q", stage)
	}
}
