package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadscoring_backend/internal/qualification/service"
	"leadscoring_backend/internal/qualification/transport"
	"leadscoring_backend/platform/httpkit"
	"leadscoring_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler handles HTTP requests for qualification criteria.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new qualification handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the qualification criteria routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/check_lead", h.CheckLead)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// List handles GET /api/v1/qualification-criteria
func (h *Handler) List(c *gin.Context) {
	criteria, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewCriteriaResponses(criteria))
}

// Create handles POST /api/v1/qualification-criteria
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	criteria, err := h.svc.Create(c.Request.Context(), req.Upsert())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewCriteriaResponse(criteria))
}

// GetByID handles GET /api/v1/qualification-criteria/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	criteria, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewCriteriaResponse(criteria))
}

// Update handles PUT /api/v1/qualification-criteria/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.UpdateCriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	criteria, err := h.svc.Update(c.Request.Context(), id, req.Upsert())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewCriteriaResponse(criteria))
}

// Delete handles DELETE /api/v1/qualification-criteria/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckLead handles POST /api/v1/qualification-criteria/:id/check_lead
func (h *Handler) CheckLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.CheckLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CheckLead(c.Request.Context(), id, req.LeadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
