package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadscoring_backend/internal/notification/service"
	"leadscoring_backend/platform/httpkit"
)

// Handler handles HTTP requests for in-app notifications.
type Handler struct {
	svc *service.Service
}

// New creates a new notification handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the notification routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("/:id/read", h.MarkRead)
}

// List handles GET /api/v1/notifications?lead_id=...
func (h *Handler) List(c *gin.Context) {
	leadID, err := uuid.Parse(c.Query("lead_id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "lead_id query parameter is required", nil)
		return
	}

	notifications, err := h.svc.ListByLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, notifications)
}

// MarkRead handles POST /api/v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}
