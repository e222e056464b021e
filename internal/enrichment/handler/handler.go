package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"leadscoring_backend/internal/enrichment/repository"
	"leadscoring_backend/internal/enrichment/service"
	"leadscoring_backend/platform/httpkit"
	"leadscoring_backend/platform/validator"
)

// Handler handles HTTP requests for lead enrichment.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new enrichment handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the enrichment routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/enrich", h.Enrich)
	rg.GET("/latest", h.Latest)
}

// EnrichRequest is the request body for enriching one lead.
type EnrichRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
}

// EnrichmentResponse is the API view of stored enrichment data.
type EnrichmentResponse struct {
	ID           uuid.UUID `json:"id"`
	LeadID       uuid.UUID `json:"leadId"`
	Source       string    `json:"source"`
	CompanySize  *int      `json:"companySize,omitempty"`
	Revenue      *float64  `json:"revenue,omitempty"`
	Industry     *string   `json:"industry,omitempty"`
	Title        *string   `json:"title,omitempty"`
	Seniority    *string   `json:"seniority,omitempty"`
	Technologies []string  `json:"technologies,omitempty"`
	Confidence   float64   `json:"confidence"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

func newEnrichmentResponse(enrichment repository.Enrichment) EnrichmentResponse {
	return EnrichmentResponse{
		ID:           enrichment.ID,
		LeadID:       enrichment.LeadID,
		Source:       enrichment.Source,
		CompanySize:  enrichment.CompanySize,
		Revenue:      enrichment.Revenue,
		Industry:     enrichment.Industry,
		Title:        enrichment.Title,
		Seniority:    enrichment.Seniority,
		Technologies: enrichment.Technologies,
		Confidence:   enrichment.Confidence,
		FetchedAt:    enrichment.FetchedAt,
	}
}

// Enrich handles POST /api/v1/enrichment/enrich
func (h *Handler) Enrich(c *gin.Context) {
	var req EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	enrichment, err := h.svc.Enrich(c.Request.Context(), req.LeadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, newEnrichmentResponse(enrichment))
}

// Latest handles GET /api/v1/enrichment/latest?lead_id=...
func (h *Handler) Latest(c *gin.Context) {
	leadID, err := uuid.Parse(c.Query("lead_id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "lead_id query parameter is required", nil)
		return
	}

	enrichment, err := h.svc.GetLatest(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, newEnrichmentResponse(enrichment))
}
