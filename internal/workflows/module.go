// Package workflows provides the automation workflows domain module:
// workflow management, trigger matching, and the executor.
package workflows

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/events"
	apphttp "leadscoring_backend/internal/http"
	"leadscoring_backend/internal/workflows/handler"
	"leadscoring_backend/internal/workflows/repository"
	"leadscoring_backend/internal/workflows/service"
	"leadscoring_backend/platform/logger"
	"leadscoring_backend/platform/validator"
)

// Module represents the workflows domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new workflows module with all dependencies wired.
// The stage reader for the time_based sweep is injected afterwards through
// the Service setter, once the scoring module exists.
func NewModule(pool *pgxpool.Pool, val *validator.Validator, snapshots service.SnapshotReader, performer service.ActionPerformer, bus events.Bus, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, snapshots, performer, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		Service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "workflows"
}

// RegisterRoutes registers the module's routes under /api/v1.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterWorkflowRoutes(ctx.V1.Group("/workflows"))
	m.handler.RegisterExecutionRoutes(ctx.V1.Group("/workflow-executions"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
