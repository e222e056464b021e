// Package scoring provides the lead scoring domain module: rule management
// and the score calculation pipeline.
package scoring

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/events"
	apphttp "leadscoring_backend/internal/http"
	"leadscoring_backend/internal/scoring/handler"
	"leadscoring_backend/internal/scoring/ports"
	"leadscoring_backend/internal/scoring/repository"
	"leadscoring_backend/internal/scoring/service"
	"leadscoring_backend/platform/logger"
	"leadscoring_backend/platform/validator"
)

// Module represents the scoring domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new scoring module with all dependencies wired.
// The classifier, trigger matcher, and execution dispatcher are injected
// afterwards through the Service setters, once their modules exist.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, leads ports.LeadReader, bus events.Bus, log *logger.Logger, bulkConcurrency int) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, leads, bus, log, bulkConcurrency)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "scoring"
}

// RegisterRoutes registers the module's routes under /api/v1.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRuleRoutes(ctx.V1.Group("/scoring-rules"))
	m.handler.RegisterScoreRoutes(ctx.V1.Group("/lead-scores"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
