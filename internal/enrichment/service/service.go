// Package service implements lead enrichment: fetch from the external
// provider, normalize, and store.
package service

import (
	"context"

	"github.com/google/uuid"

	"leadscoring_backend/internal/enrichment/client"
	"leadscoring_backend/internal/enrichment/repository"
	"leadscoring_backend/platform/apperr"
	"leadscoring_backend/platform/logger"
	"leadscoring_backend/platform/phone"
)

// Store is the persistence surface the enrichment service depends on.
type Store interface {
	Insert(ctx context.Context, enrichment repository.Enrichment) (repository.Enrichment, error)
	GetLatestByLead(ctx context.Context, leadID uuid.UUID) (repository.Enrichment, error)
}

// Provider fetches enrichment data from the external collaborator.
type Provider interface {
	Enrich(ctx context.Context, lookup client.Lookup) (client.Profile, error)
}

// Contact is what a lookup at the provider needs from the lead record.
type Contact struct {
	Email   string
	Phone   string
	Company string
}

// LeadReader provides lead contact details.
type LeadReader interface {
	GetContact(ctx context.Context, leadID uuid.UUID) (Contact, error)
}

// Service enriches leads through the external provider.
type Service struct {
	store    Store
	provider Provider
	leads    LeadReader
	enabled  bool
	log      *logger.Logger
}

// New creates a new enrichment service.
func New(store Store, provider Provider, leads LeadReader, enabled bool, log *logger.Logger) *Service {
	return &Service{store: store, provider: provider, leads: leads, enabled: enabled, log: log}
}

// Enrich fetches provider data for a lead and stores it. The lead's
// phone is normalized to E.164 before the lookup.
func (s *Service) Enrich(ctx context.Context, leadID uuid.UUID) (repository.Enrichment, error) {
	if !s.enabled {
		return repository.Enrichment{}, apperr.Unavailable("enrichment is disabled")
	}

	contact, err := s.leads.GetContact(ctx, leadID)
	if err != nil {
		return repository.Enrichment{}, err
	}

	lookup := client.Lookup{
		Email:   contact.Email,
		Phone:   phone.NormalizeE164(contact.Phone),
		Company: contact.Company,
	}

	profile, err := s.provider.Enrich(ctx, lookup)
	if err != nil {
		return repository.Enrichment{}, err
	}

	enrichment := repository.Enrichment{
		LeadID:       leadID,
		Source:       profile.Source,
		CompanySize:  profile.CompanySize,
		Revenue:      profile.Revenue,
		Technologies: profile.Technologies,
		Confidence:   profile.Confidence,
	}
	if profile.Industry != "" {
		enrichment.Industry = &profile.Industry
	}
	if profile.Title != "" {
		enrichment.Title = &profile.Title
	}
	if profile.Seniority != "" {
		enrichment.Seniority = &profile.Seniority
	}

	stored, err := s.store.Insert(ctx, enrichment)
	if err != nil {
		return repository.Enrichment{}, err
	}
	s.log.Info("lead enriched", "lead_id", leadID, "source", stored.Source, "confidence", stored.Confidence)
	return stored, nil
}

// GetLatest retrieves a lead's most recent enrichment result.
func (s *Service) GetLatest(ctx context.Context, leadID uuid.UUID) (repository.Enrichment, error) {
	return s.store.GetLatestByLead(ctx, leadID)
}
