// Package enrichment provides the lead enrichment domain module: the
// external provider client and stored enrichment data.
package enrichment

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/enrichment/client"
	"leadscoring_backend/internal/enrichment/handler"
	"leadscoring_backend/internal/enrichment/repository"
	"leadscoring_backend/internal/enrichment/service"
	apphttp "leadscoring_backend/internal/http"
	"leadscoring_backend/platform/config"
	"leadscoring_backend/platform/logger"
	"leadscoring_backend/platform/validator"
)

// Module represents the enrichment domain module.
type Module struct {
	handler    *handler.Handler
	Service    *service.Service
	Repository *repository.Repository
}

// NewModule creates a new enrichment module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, cfg config.EnrichmentConfig, leads service.LeadReader, log *logger.Logger) *Module {
	repo := repository.New(pool)
	provider := client.New(cfg.GetEnrichmentBaseURL(), cfg.GetEnrichmentAPIKey(), cfg.GetEnrichmentRatePerSecond(), log)
	svc := service.New(repo, provider, leads, cfg.IsEnrichmentEnabled(), log)
	h := handler.New(svc, val)

	return &Module{
		handler:    h,
		Service:    svc,
		Repository: repo,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "enrichment"
}

// RegisterRoutes registers the module's routes under /api/v1/enrichment.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/enrichment"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
