package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"leadscoring_backend/internal/enrichment/client"
	"leadscoring_backend/internal/enrichment/repository"
	"leadscoring_backend/platform/apperr"
	"leadscoring_backend/platform/logger"
)

type fakeStore struct {
	inserted []repository.Enrichment
}

func (f *fakeStore) Insert(ctx context.Context, enrichment repository.Enrichment) (repository.Enrichment, error) {
	enrichment.ID = uuid.New()
	f.inserted = append(f.inserted, enrichment)
	return enrichment, nil
}

func (f *fakeStore) GetLatestByLead(ctx context.Context, leadID uuid.UUID) (repository.Enrichment, error) {
	for i := len(f.inserted) - 1; i >= 0; i-- {
		if f.inserted[i].LeadID == leadID {
			return f.inserted[i], nil
		}
	}
	return repository.Enrichment{}, apperr.NotFound("no enrichment data for lead")
}

type fakeProvider struct {
	lookups []client.Lookup
	profile client.Profile
	err     error
}

func (f *fakeProvider) Enrich(ctx context.Context, lookup client.Lookup) (client.Profile, error) {
	f.lookups = append(f.lookups, lookup)
	if f.err != nil {
		return client.Profile{}, f.err
	}
	return f.profile, nil
}

type fakeLeads struct {
	contacts map[uuid.UUID]Contact
}

func (f *fakeLeads) GetContact(ctx context.Context, leadID uuid.UUID) (Contact, error) {
	contact, ok := f.contacts[leadID]
	if !ok {
		return Contact{}, apperr.NotFound("lead not found")
	}
	return contact, nil
}

func TestEnrichStoresProviderProfile(t *testing.T) {
	leadID := uuid.New()
	size := 250
	store := &fakeStore{}
	provider := &fakeProvider{profile: client.Profile{
		Source:       "clearbit",
		CompanySize:  &size,
		Industry:     "Technology",
		Title:        "CTO",
		Technologies: []string{"go", "postgres"},
		Confidence:   0.92,
	}}
	leads := &fakeLeads{contacts: map[uuid.UUID]Contact{
		leadID: {Email: "cto@acme.com", Phone: "(415) 555-2671", Company: "Acme"},
	}}
	svc := New(store, provider, leads, true, logger.New("development"))

	enrichment, err := svc.Enrich(context.Background(), leadID)
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if enrichment.Source != "clearbit" || enrichment.Industry == nil || *enrichment.Industry != "Technology" {
		t.Fatalf("unexpected enrichment %+v", enrichment)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 stored enrichment, got %d", len(store.inserted))
	}

	// Phone is normalized to E.164 for the provider lookup.
	if len(provider.lookups) != 1 || provider.lookups[0].Phone != "+14155552671" {
		t.Fatalf("expected normalized phone, got %+v", provider.lookups)
	}
}

func TestEnrichDisabled(t *testing.T) {
	svc := New(&fakeStore{}, &fakeProvider{}, &fakeLeads{}, false, logger.New("development"))
	_, err := svc.Enrich(context.Background(), uuid.New())
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestEnrichProviderFailureStoresNothing(t *testing.T) {
	leadID := uuid.New()
	store := &fakeStore{}
	provider := &fakeProvider{err: apperr.Unavailable("provider down")}
	leads := &fakeLeads{contacts: map[uuid.UUID]Contact{leadID: {Email: "a@b.com"}}}
	svc := New(store, provider, leads, true, logger.New("development"))

	if _, err := svc.Enrich(context.Background(), leadID); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if len(store.inserted) != 0 {
		t.Fatal("failed enrichment must not store anything")
	}
}

func TestEnrichmentSnapshotFields(t *testing.T) {
	size := 500
	revenue := 1_000_000.0
	industry := "Finance"
	enrichment := repository.Enrichment{
		Source:       "clearbit",
		CompanySize:  &size,
		Revenue:      &revenue,
		Industry:     &industry,
		Technologies: []string{"go"},
		Confidence:   0.8,
	}

	snap := enrichment.Snapshot()
	if snap["enrichment_company_size"] != 500 || snap["employee_count"] != 500 {
		t.Fatalf("company size missing from snapshot: %+v", snap)
	}
	if snap["industry"] != "Finance" {
		t.Fatalf("industry alias missing: %+v", snap)
	}
	if _, ok := snap["enrichment_technologies"].([]any); !ok {
		t.Fatalf("technologies should flatten to a list: %+v", snap)
	}
}
