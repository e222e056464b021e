package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadscoring_backend/internal/scoring/service"
	"leadscoring_backend/internal/scoring/transport"
	"leadscoring_backend/platform/httpkit"
	"leadscoring_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Handler handles HTTP requests for scoring rules and lead scores.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new scoring handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRuleRoutes registers the scoring rule routes.
func (h *Handler) RegisterRuleRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListRules)
	rg.POST("", h.CreateRule)
	rg.GET("/:id", h.GetRule)
	rg.PUT("/:id", h.UpdateRule)
	rg.DELETE("/:id", h.DeleteRule)
	rg.POST("/:id/test_rule", h.TestRule)
}

// RegisterScoreRoutes registers the lead score routes.
func (h *Handler) RegisterScoreRoutes(rg *gin.RouterGroup) {
	rg.POST("/calculate", h.Calculate)
	rg.POST("/bulk_calculate", h.BulkCalculate)
	rg.GET("/history", h.History)
	rg.GET("/distribution", h.Distribution)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

// ListRules handles GET /api/v1/scoring-rules
func (h *Handler) ListRules(c *gin.Context) {
	var req transport.ListRulesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rules, err := h.svc.ListRules(c.Request.Context(), req.Params())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewRuleResponses(rules))
}

// CreateRule handles POST /api/v1/scoring-rules
func (h *Handler) CreateRule(c *gin.Context) {
	var req transport.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.CreateRule(c.Request.Context(), req.Upsert())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.NewRuleResponse(rule))
}

// GetRule handles GET /api/v1/scoring-rules/:id
func (h *Handler) GetRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rule, err := h.svc.GetRule(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewRuleResponse(rule))
}

// UpdateRule handles PUT /api/v1/scoring-rules/:id
func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.UpdateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.UpdateRule(c.Request.Context(), id, req.Upsert())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewRuleResponse(rule))
}

// DeleteRule handles DELETE /api/v1/scoring-rules/:id
func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteRule(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// TestRule handles POST /api/v1/scoring-rules/:id/test_rule
func (h *Handler) TestRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req transport.TestRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := h.svc.TestRule(c.Request.Context(), id, req.LeadID, req.Snapshot)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// Calculate handles POST /api/v1/lead-scores/calculate
func (h *Handler) Calculate(c *gin.Context) {
	var req transport.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Calculate(c.Request.Context(), req.LeadID, req.ChangedFields)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewCalculateResponse(*result))
}

// BulkCalculate handles POST /api/v1/lead-scores/bulk_calculate
func (h *Handler) BulkCalculate(c *gin.Context) {
	var req transport.BulkCalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	bulk, err := h.svc.BulkCalculate(c.Request.Context(), req.LeadIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewBulkCalculateResponse(bulk))
}

// History handles GET /api/v1/lead-scores/history?lead_id=...
func (h *Handler) History(c *gin.Context) {
	leadID, err := uuid.Parse(c.Query("lead_id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "lead_id query parameter is required", nil)
		return
	}

	history, err := h.svc.History(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.ScoreResponse, len(history))
	for i, score := range history {
		out[i] = transport.NewScoreResponse(score)
	}
	httpkit.OK(c, out)
}

// Distribution handles GET /api/v1/lead-scores/distribution
func (h *Handler) Distribution(c *gin.Context) {
	buckets, stages, err := h.svc.Distribution(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.DistributionResponse{Buckets: buckets, Stages: stages})
}
