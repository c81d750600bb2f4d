package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/internal/api/middleware"
	"example.com/backstage/services/esign/internal/models"
	"example.com/backstage/services/esign/internal/service"
	"example.com/backstage/services/esign/internal/tracing"
)

// SigningHandler handles signing-request HTTP endpoints
type SigningHandler struct {
	orchestrator *service.Orchestrator
	tracer       tracing.Tracer
}

// NewSigningHandler creates a new signing handler
func NewSigningHandler(orchestrator *service.Orchestrator, tracer tracing.Tracer) *SigningHandler {
	return &SigningHandler{orchestrator: orchestrator, tracer: tracer}
}

// CreateRequestBody is the body of POST /signing-requests
type CreateRequestBody struct {
	DocumentID   uuid.UUID             `json:"document_id" binding:"required"`
	Signers      []service.SignerEntry `json:"signers" binding:"required"`
	OrderingMode string                `json:"ordering_mode"`
	Message      string                `json:"message"`
	ExpiresAt    *time.Time            `json:"expires_at"`
}

// RemindBody is the body of POST /signing-requests/:id/remind
type RemindBody struct {
	SignatoryID uuid.UUID `json:"signatory_id" binding:"required"`
}

// CreateSigningRequest handles POST /signing-requests
func (h *SigningHandler) CreateSigningRequest(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-create-signing-request")
	defer h.tracer.EndTransaction(txn)

	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warn().Err(err).Msg("Invalid create request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := models.OrderingMode(body.OrderingMode)
	if body.OrderingMode == "" {
		mode = models.OrderingSequential
	}

	h.tracer.AddAttribute(txn, "document_id", body.DocumentID.String())
	h.tracer.AddAttribute(txn, "signer_count", len(body.Signers))

	request, err := h.orchestrator.CreateRequest(c.Request.Context(), actor, service.CreateRequestInput{
		DocumentID:   body.DocumentID,
		Signers:      body.Signers,
		OrderingMode: mode,
		Message:      body.Message,
		ExpiresAt:    body.ExpiresAt,
	})
	if err != nil {
		h.tracer.RecordError(txn, err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// GetSigningRequest handles GET /signing-requests/:id
func (h *SigningHandler) GetSigningRequest(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signing request id"})
		return
	}

	request, err := h.orchestrator.GetRequest(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// CancelSigningRequest handles POST /signing-requests/:id/cancel
func (h *SigningHandler) CancelSigningRequest(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signing request id"})
		return
	}

	if err := h.orchestrator.Cancel(c.Request.Context(), actor, id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// RemindSignatory handles POST /signing-requests/:id/remind
func (h *SigningHandler) RemindSignatory(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signing request id"})
		return
	}

	var body RemindBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orchestrator.Remind(c.Request.Context(), actor, id, body.SignatoryID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reminder sent"})
}

// RetryRegistration handles POST /signing-requests/:id/retry-registration
func (h *SigningHandler) RetryRegistration(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signing request id"})
		return
	}

	if err := h.orchestrator.RetryProviderRegistration(c.Request.Context(), actor, id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

// GetProviderStatus handles GET /signing-requests/:id/provider-status
func (h *SigningHandler) GetProviderStatus(c *gin.Context) {
	actor := middleware.CurrentUser(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signing request id"})
		return
	}

	status, err := h.orchestrator.ProviderStatus(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// RegisterRoutes registers the handler's routes on the authenticated group
func (h *SigningHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/signing-requests", h.CreateSigningRequest)
	group.GET("/signing-requests/:id", h.GetSigningRequest)
	group.POST("/signing-requests/:id/cancel", h.CancelSigningRequest)
	group.POST("/signing-requests/:id/remind", h.RemindSignatory)
	group.POST("/signing-requests/:id/retry-registration", h.RetryRegistration)
	group.GET("/signing-requests/:id/provider-status", h.GetProviderStatus)
}
