// Package qualification provides the qualification domain module:
// criteria management and lead stage classification.
package qualification

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "leadscoring_backend/internal/http"
	"leadscoring_backend/internal/qualification/handler"
	"leadscoring_backend/internal/qualification/repository"
	"leadscoring_backend/internal/qualification/service"
	"leadscoring_backend/platform/validator"
)

// Module represents the qualification domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new qualification module with all dependencies wired.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, leads service.LeadReader) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, leads)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "qualification"
}

// RegisterRoutes registers the module's routes under /api/v1/qualification-criteria.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/qualification-criteria"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
