package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadscoring_backend/internal/workflows/service"
	"leadscoring_backend/internal/workflows/transport"
	"leadscoring_backend/platform/httpkit"
	"leadscoring_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler handles HTTP requests for workflows and their executions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new workflows handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterWorkflowRoutes registers the workflow management routes.
func (h *Handler) RegisterWorkflowRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.GetByID)
	rg.PUT("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	rg.POST("/:id/execute", h.Execute)
}

// RegisterExecutionRoutes registers the audit trail routes.
func (h *Handler) RegisterExecutionRoutes(rg *gin.RouterGroup) {
	rg.GET("/by_workflow", h.ByWorkflow)
	rg.GET("/by_lead", h.ByLead)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// List handles GET /api/v1/workflows
func (h *Handler) List(c *gin.Context) {
	workflows, err := h.svc.List(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewWorkflowResponses(workflows))
}

// Create handles POST /api/v1/workflows
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	workflow, err := h.svc.Create(c.Request.Context(), req.Upsert())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewWorkflowResponse(workflow))
}

// GetByID handles GET /api/v1/workflows/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	workflow, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewWorkflowResponse(workflow))
}

// Update handles PUT /api/v1/workflows/:id
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.UpdateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	workflow, err := h.svc.Update(c.Request.Context(), id, req.Upsert())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewWorkflowResponse(workflow))
}

// Delete handles DELETE /api/v1/workflows/:id
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

// Execute handles POST /api/v1/workflows/:id/execute
func (h *Handler) Execute(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	execution, err := h.svc.Execute(c.Request.Context(), id, req.LeadID, service.TriggeredByManual)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewExecutionResponse(execution))
}

// ByWorkflow handles GET /api/v1/workflow-executions/by_workflow?workflow_id=...
func (h *Handler) ByWorkflow(c *gin.Context) {
	workflowID, err := uuid.Parse(c.Query("workflow_id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "workflow_id query parameter is required", nil)
		return
	}

	executions, err := h.svc.ExecutionsByWorkflow(c.Request.Context(), workflowID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewExecutionResponses(executions))
}

// ByLead handles GET /api/v1/workflow-executions/by_lead?lead_id=...
func (h *Handler) ByLead(c *gin.Context) {
	leadID, err := uuid.Parse(c.Query("lead_id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "lead_id query parameter is required", nil)
		return
	}

	executions, err := h.svc.ExecutionsByLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewExecutionResponses(executions))
}
