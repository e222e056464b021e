// Package notification provides the in-app notification module, the
// send_notification workflow action collaborator.
package notification

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"leadscoring_backend/internal/events"
	apphttp "leadscoring_backend/internal/http"
	"leadscoring_backend/internal/notification/handler"
	"leadscoring_backend/internal/notification/repository"
	"leadscoring_backend/internal/notification/service"
)

// Module represents the notification domain module.
type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule creates a new notification module and subscribes it to the
// event bus.
func NewModule(pool *pgxpool.Pool, bus events.Bus) *Module {
	repo := repository.New(pool)
	svc := service.New(repo)
	if bus != nil {
		svc.SubscribeToEvents(bus)
	}

	return &Module{
		handler: handler.New(svc),
		Service: svc,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes registers the module's routes under /api/v1/notifications.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/notifications"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
