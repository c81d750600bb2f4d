package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/service"
	"example.com/backstage/services/esign/internal/tracing"
	"example.com/backstage/services/esign/internal/webhook"
)

// WebhookHandler ingests provider webhook events: verify, decode, apply.
// It answers success for anything durably handled, including duplicates and
// unknown kinds, and failure only for transient processing errors so the
// provider retries exactly the deliveries that need retrying.
type WebhookHandler struct {
	orchestrator *service.Orchestrator
	verifier     *webhook.Verifier
	metrics      *metrics.Metrics
	tracer       tracing.Tracer
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(orchestrator *service.Orchestrator, verifier *webhook.Verifier, metricsCollector *metrics.Metrics, tracer tracing.Tracer) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: orchestrator,
		verifier:     verifier,
		metrics:      metricsCollector,
		tracer:       tracer,
	}
}

// HandleProviderEvent handles POST /webhooks/provider
func (h *WebhookHandler) HandleProviderEvent(c *gin.Context) {
	txn := h.tracer.StartTransaction("webhook-provider-event")
	defer h.tracer.EndTransaction(txn)

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.verifier.Verify(c.Request.Header, rawBody) {
		// Security-relevant: an unverifiable payload never reaches the
		// orchestrator.
		h.metrics.Increment(metrics.CounterWebhookAuthFailed)
		log.Warn().
			Str("client_ip", c.ClientIP()).
			Msg("Webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	event, err := webhook.Decode(rawBody)
	if err != nil {
		log.Warn().Err(err).Msg("Undecodable webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	h.tracer.AddAttribute(txn, "event_kind", string(event.Kind))
	h.tracer.AddAttribute(txn, "envelope_ref", event.EnvelopeRef)

	outcome, err := h.orchestrator.ApplyProviderEvent(c.Request.Context(), event)
	if err != nil {
		// Transient failure: signal the provider to redeliver.
		h.tracer.RecordError(txn, err)
		log.Error().Err(err).Str("event_key", event.Key()).Msg("Failed to apply provider event")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"outcome": string(outcome)})
}

// RegisterRoutes registers the webhook endpoint. No user auth; the HMAC
// signature is the authentication.
func (h *WebhookHandler) RegisterRoutes(router *gin.Engine) {
	router.POST("/webhooks/provider", h.HandleProviderEvent)
}
